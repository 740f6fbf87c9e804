package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"videobatch.dev/internal/config"
)

// registerRefreshConfigTool registers the refresh_config tool that reloads
// configuration from disk while the server is running.
func (s *Server) registerRefreshConfigTool() {
	tool := mcp.Tool{
		Name:        "refresh_config",
		Description: "Reload the settings file and its jobs from disk. Re-registers tools and resources without restarting the server.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: make(map[string]interface{}),
		},
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := s.Refresh(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())), nil
		}

		settings := s.currentSettings()
		return jsonResult(map[string]interface{}{
			"success":  true,
			"message":  "Configuration reloaded successfully",
			"config":   s.configPath,
			"jobs":     len(settings.Jobs),
			"mcp_jobs": len(mcpJobs(settings)),
		})
	}

	s.mcpServer.AddTool(tool, handler)
}

// Refresh reloads the settings and re-registers every tool and resource.
// Tool paths and runner tuning only change on restart; jobs and their
// visibility change immediately.
func (s *Server) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, path, err := config.Load(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	if path == "" {
		return fmt.Errorf("no config found (searched %v)", config.SearchPaths(s.configPath))
	}

	oldToolNames := s.collectToolNames()

	s.settings = settings
	s.configPath = path
	s.configLoaded = true

	if len(oldToolNames) > 0 {
		s.mcpServer.DeleteTools(oldToolNames...)
	}

	s.registerTools()
	s.registerResources()

	return nil
}

// collectToolNames returns the names of the tools Refresh re-registers.
// refresh_config itself is never removed.
func (s *Server) collectToolNames() []string {
	names := []string{"list_tasks", "run_task", "run_job"}

	if s.sessions != nil {
		names = append(names, "list_sessions", "read_session_metadata", "read_session_log")
	}
	if s.history != nil {
		names = append(names, "list_runs", "get_run")
	}

	// Built-in tools
	if !s.configLoaded {
		names = append(names, "init")
	}

	return names
}
