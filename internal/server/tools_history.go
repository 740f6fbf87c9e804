package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"videobatch.dev/internal/store"
)

// runSummary is a history entry without its messages
type runSummary struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id,omitempty"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Input       string `json:"input,omitempty"`
	Output      string `json:"output,omitempty"`
	Success     bool   `json:"success"`
	StepsRun    int    `json:"steps_run"`
	StepsFailed int    `json:"steps_failed"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	Duration    string `json:"duration"`
}

func summarize(r store.Run) runSummary {
	return runSummary{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Name:        r.Name,
		Kind:        r.Kind,
		Input:       r.Input,
		Output:      r.Output,
		Success:     r.Success,
		StepsRun:    r.StepsRun,
		StepsFailed: r.StepsFailed,
		Error:       r.Error,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		Duration:    r.Duration().String(),
	}
}

// registerHistoryTools registers list_runs and get_run when history is enabled
func (s *Server) registerHistoryTools() {
	if s.history == nil {
		return
	}

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_runs",
		Description: "List recorded task and job runs, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Only runs of this task or job",
				},
				"failed_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Only failed runs",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of runs to return (default: 20)",
				},
			},
		},
	}, s.handleListRuns)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_run",
		Description: "Read one recorded run including its messages",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Run ID returned by run_task, run_job or list_runs",
				},
			},
			Required: []string{"run_id"},
		},
	}, s.handleGetRun)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	opts := store.ListOptions{Limit: 20}
	opts.Name, _ = args["name"].(string)
	opts.FailedOnly, _ = args["failed_only"].(bool)
	if l, ok := args["limit"].(float64); ok {
		opts.Limit = int(l)
	}

	runs, err := s.history.List(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, summarize(r))
	}
	return jsonResult(out)
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := req.GetArguments()["run_id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, err := s.history.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read run: %v", err)), nil
	}
	if run == nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %s not found", id)), nil
	}
	return jsonResult(run)
}
