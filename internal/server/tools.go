package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"videobatch.dev/internal/batch"
	"videobatch.dev/internal/task"
)

// mcpOutputMaxLines is the maximum number of message lines returned in MCP responses.
const mcpOutputMaxLines = 100

// taskRunResponse is the MCP response for a single task run.
// Messages are truncated to the last max_output_lines lines.
type taskRunResponse struct {
	Task              string                 `json:"task"`
	Input             string                 `json:"input,omitempty"`
	SessionID         string                 `json:"session_id,omitempty"`
	RunID             string                 `json:"run_id,omitempty"`
	Success           bool                   `json:"success"`
	HasError          bool                   `json:"has_error"`
	OutputFile        string                 `json:"output_file,omitempty"`
	Duration          string                 `json:"duration"`
	Error             string                 `json:"error,omitempty"`
	Messages          []string               `json:"messages,omitempty"`
	MessageLines      int                    `json:"message_lines"`
	MessageTotalLines int                    `json:"message_total_lines"`
	MessagesTruncated bool                   `json:"messages_truncated,omitempty"`
	Properties        map[string]interface{} `json:"properties,omitempty"`
}

// taskInfo describes a registered task type for list_tasks
type taskInfo struct {
	task.Descriptor
	Slug       string                    `json:"slug"`
	Properties []task.PropertyDefinition `json:"properties"`
}

// calcHasMore reports whether there are older lines beyond what was returned.
// When lines == 0 (all lines requested), there is nothing more to page through.
func calcHasMore(totalLines, lines, offset int) bool {
	return lines > 0 && totalLines > lines+offset
}

// tailLines returns the last max lines (or all if max<=0) and the total count.
func tailLines(lines []string, max int) ([]string, int) {
	total := len(lines)
	if max > 0 && total > max {
		return lines[total-max:], total
	}
	return lines, total
}

// jsonResult marshals v into a text tool result
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// registerTools registers the task, job, session and history tools
func (s *Server) registerTools() {
	s.registerListTasksTool()
	s.registerRunTaskTool()
	s.registerJobTools()
	s.registerSessionManagementTools()
	s.registerHistoryTools()
}

func (s *Server) registerListTasksTool() {
	tool := mcp.Tool{
		Name:        "list_tasks",
		Description: "List the registered task types and the properties each one accepts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: make(map[string]interface{}),
		},
	}

	s.mcpServer.AddTool(tool, s.handleListTasks)
}

func (s *Server) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var infos []taskInfo
	for _, desc := range s.registry.List() {
		t, err := s.registry.New(desc.ID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		infos = append(infos, taskInfo{
			Descriptor: desc,
			Slug:       task.Slug(desc.Name),
			Properties: t.PropertyDefinitions(),
		})
	}
	return jsonResult(infos)
}

func (s *Server) registerRunTaskTool() {
	tool := mcp.Tool{
		Name:        "run_task",
		Description: "Run a single task over one input file and record it as a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task": map[string]interface{}{
					"type":        "string",
					"description": "Task ID, name or slug (see list_tasks)",
				},
				"input": map[string]interface{}{
					"type":        "string",
					"description": "Input file path",
				},
				"properties": map[string]interface{}{
					"type":        "object",
					"description": "Task properties, e.g. {\"output_directory\": \"out\"}",
				},
				"max_output_lines": map[string]interface{}{
					"type":        "number",
					"description": "Maximum message lines to return (default 100, 0=unlimited). For CLI use.",
				},
			},
			Required: []string{"task"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunTask)
}

func (s *Server) handleRunTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	ref, ok := args["task"].(string)
	if !ok || ref == "" {
		return mcp.NewToolResultError("task is required"), nil
	}
	input, _ := args["input"].(string)

	maxLines := mcpOutputMaxLines
	if v, ok := args["max_output_lines"].(float64); ok {
		maxLines = int(v)
	}

	props := make(map[string]interface{})
	if p, ok := args["properties"].(map[string]interface{}); ok {
		for k, v := range p {
			props[k] = v
		}
	}

	t, err := s.registry.Lookup(ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := t.Descriptor().Name

	outcome := s.batch.RunInput(ctx, batch.SingleTask(name, input, props), input)
	if outcome.Err != nil {
		return mcp.NewToolResultError(outcome.Err.Error()), nil
	}

	result := outcome.Result
	final := result.Context
	messages, total := tailLines(final.Messages(), maxLines)

	return jsonResult(taskRunResponse{
		Task:              name,
		Input:             input,
		SessionID:         outcome.SessionID,
		RunID:             outcome.RunID,
		Success:           result.Success,
		HasError:          final.HasError(),
		OutputFile:        final.OutputFilePath,
		Duration:          result.Duration.String(),
		Error:             result.Error,
		Messages:          messages,
		MessageLines:      len(messages),
		MessageTotalLines: total,
		MessagesTruncated: total > len(messages),
		Properties:        final.Properties,
	})
}
