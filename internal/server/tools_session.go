package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"videobatch.dev/internal/logs"
)

// registerSessionManagementTools registers global session management tools
func (s *Server) registerSessionManagementTools() {
	if s.sessions == nil {
		return
	}
	s.registerListSessionsTool()
	s.registerReadSessionMetadataTool()
	s.registerReadSessionLogTool()
}

// registerListSessionsTool registers the list_sessions tool
func (s *Server) registerListSessionsTool() {
	inputSchema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Task or job name to list sessions for (default: all)",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Maximum number of sessions to return (default: 20)",
			},
		},
	}

	tool := mcp.Tool{
		Name:        "list_sessions",
		Description: "List recent execution sessions, newest first",
		InputSchema: inputSchema,
	}

	s.mcpServer.AddTool(tool, s.handleListSessions)
}

func (s *Server) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	name, _ := args["name"].(string)
	limit := 20
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	sessions, err := s.sessions.ListSessions(name, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	if sessions == nil {
		sessions = []logs.SessionInfo{}
	}
	return jsonResult(sessions)
}

// registerReadSessionMetadataTool registers the read_session_metadata tool
func (s *Server) registerReadSessionMetadataTool() {
	inputSchema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session ID to read metadata for",
			},
		},
		Required: []string{"session_id"},
	}

	tool := mcp.Tool{
		Name:        "read_session_metadata",
		Description: "Read metadata and the file list of a specific execution session",
		InputSchema: inputSchema,
	}

	s.mcpServer.AddTool(tool, s.handleReadSessionMetadata)
}

func (s *Server) handleReadSessionMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, ok := req.GetArguments()["session_id"].(string)
	if !ok || sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	metadata, err := s.sessions.ReadMetadata(sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read session metadata: %v", err)), nil
	}
	files, err := s.sessions.Files(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"metadata": metadata,
		"files":    files,
	})
}

// sessionLogInputSchema returns the input schema for the read_session_log tool.
func sessionLogInputSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session ID to read logs for",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Task or job name; reads its latest session when session_id is omitted",
			},
			"file": map[string]interface{}{
				"type":        "string",
				"description": "File inside the session, e.g. a tool's stderr log (default: session.log)",
			},
			"lines": map[string]interface{}{
				"type":        "number",
				"description": "Number of lines to tail (default: 100)",
			},
			"filter": map[string]interface{}{
				"type":        "string",
				"description": "Regex pattern to filter logs",
			},
			"offset": map[string]interface{}{
				"type":        "number",
				"description": "Skip the last N lines (for paging backwards through history)",
			},
		},
	}
}

// registerReadSessionLogTool registers the read_session_log tool
func (s *Server) registerReadSessionLogTool() {
	tool := mcp.Tool{
		Name:        "read_session_log",
		Description: "Read the message log or a tool output file of an execution session",
		InputSchema: sessionLogInputSchema(),
	}

	s.mcpServer.AddTool(tool, s.handleReadSessionLog)
}

func (s *Server) handleReadSessionLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		name, _ := args["name"].(string)
		if name == "" {
			return mcp.NewToolResultError("session_id or name is required"), nil
		}
		latest, err := s.sessions.LatestSessionID(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("no sessions for %s: %v", name, err)), nil
		}
		sessionID = latest
	}

	opts := logs.ReadOptions{
		Lines: mcpOutputMaxLines,
	}
	if lines, ok := args["lines"].(float64); ok {
		opts.Lines = int(lines)
	}
	if filter, ok := args["filter"].(string); ok {
		opts.Filter = filter
	}
	if offset, ok := args["offset"].(float64); ok {
		opts.Offset = int(offset)
	}
	if file, ok := args["file"].(string); ok {
		opts.File = file
	}

	logLines, totalLines, err := s.sessions.ReadLog(sessionID, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read session log: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"session_id":  sessionID,
		"lines":       logLines,
		"count":       len(logLines),
		"total_lines": totalLines,
		"has_more":    calcHasMore(totalLines, opts.Lines, opts.Offset),
	})
}
