package server

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"videobatch.dev/internal/batch"
)

// jobOutcome summarizes one input of a job run
type jobOutcome struct {
	Input      string `json:"input"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	OutputFile string `json:"output_file,omitempty"`
	Error      string `json:"error,omitempty"`
}

// jobRunResponse is the MCP response for run_job
type jobRunResponse struct {
	Job       string       `json:"job"`
	Success   bool         `json:"success"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Cancelled bool         `json:"cancelled,omitempty"`
	Duration  string       `json:"duration"`
	Outcomes  []jobOutcome `json:"outcomes"`
}

func (s *Server) registerJobTools() {
	s.registerRunJobTool()
}

// registerRunJobTool registers run_job. The job parameter is limited to the
// jobs visible to MCP clients, so the tool is re-registered on refresh.
func (s *Server) registerRunJobTool() {
	jobs := mcpJobs(s.settings)
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	jobSchema := map[string]interface{}{
		"type":        "string",
		"description": "Name of the configured job to run",
	}
	if len(names) > 0 {
		jobSchema["enum"] = names
	}

	tool := mcp.Tool{
		Name:        "run_job",
		Description: "Run a configured job over its inputs with bounded parallelism. Each input gets its own session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job": jobSchema,
				"inputs": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Input files or glob patterns, replacing the job's configured inputs",
				},
				"parallelism": map[string]interface{}{
					"type":        "number",
					"description": "Number of inputs processed at once (default: job or global setting)",
				},
			},
			Required: []string{"job"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunJob)
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	name, ok := args["job"].(string)
	if !ok || name == "" {
		return mcp.NewToolResultError("job is required"), nil
	}

	cfg, ok := mcpJobs(s.currentSettings())[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", name)), nil
	}
	job := batch.FromConfig(name, cfg)

	if raw, ok := args["inputs"].([]interface{}); ok && len(raw) > 0 {
		job.Inputs = nil
		for _, v := range raw {
			if in, ok := v.(string); ok && in != "" {
				job.Inputs = append(job.Inputs, in)
			}
		}
	}
	if p, ok := args["parallelism"].(float64); ok && p > 0 {
		job.Parallelism = int(p)
	}

	report, err := s.batch.RunJob(ctx, job)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := jobRunResponse{
		Job:       report.Job,
		Success:   report.Success(),
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
		Cancelled: report.Cancelled,
		Duration:  report.Duration.String(),
		Outcomes:  make([]jobOutcome, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		jo := jobOutcome{
			Input:     o.Input,
			Success:   o.Success(),
			Skipped:   o.Skipped,
			SessionID: o.SessionID,
			RunID:     o.RunID,
		}
		switch {
		case o.Err != nil:
			jo.Error = o.Err.Error()
		case o.Result != nil:
			jo.Error = o.Result.Error
			jo.OutputFile = o.Result.Context.OutputFilePath
		}
		resp.Outcomes = append(resp.Outcomes, jo)
	}

	return jsonResult(resp)
}
