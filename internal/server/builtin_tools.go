package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
)

// ExampleConfig is written by init when no settings file exists yet
const ExampleConfig = `version: "1.0"

tools:
  ffmpeg_path: ffmpeg
  ffprobe_path: ffprobe
  timeout: 600

state_dir: .videobatch_state
log_level: info
parallelism: 2

retention:
  max_sessions: 100
  max_age_days: 7

# Jobs chain tasks and run them over every matching input
jobs:
  extract-audio:
    description: "Extract the audio track of every video"
    inputs:
      - "videos/*.mp4"
    output_dir: audio
    parallelism: 4
    steps:
      - task: probe-media-ffprobe
        continue_on_failure: true
      - task: extract-audio-ffmpeg
        properties:
          output_extension: aac
`

// registerBuiltInTools registers tools that are only useful before a
// settings file exists
func (s *Server) registerBuiltInTools() {
	s.registerInitTool()
}

// registerInitTool registers the init tool for creating settings files
func (s *Server) registerInitTool() {
	tool := mcp.Tool{
		Name:        "init",
		Description: "Initialize a new videobatch.yaml settings file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Target path for the settings file (default: ./videobatch.yaml)",
				},
				"overwrite": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether to overwrite an existing file (default: false)",
				},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleInit)
}

func (s *Server) handleInit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	targetPath := "./videobatch.yaml"
	if path, ok := args["path"].(string); ok && path != "" {
		targetPath = path
	}
	overwrite, _ := args["overwrite"].(bool)

	absPath, err := WriteExampleConfig(targetPath, overwrite)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"success": true,
		"path":    absPath,
		"message": "Successfully created settings file. Call refresh_config or restart the server to load it.",
	})
}

// WriteExampleConfig writes ExampleConfig to path and returns its absolute
// path. An existing file is only replaced when overwrite is set.
func WriteExampleConfig(path string, overwrite bool) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if _, err := os.Stat(absPath); err == nil && !overwrite {
		return "", fmt.Errorf("file already exists at %s (use overwrite to replace)", absPath)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(absPath, []byte(ExampleConfig), 0644); err != nil {
		return "", fmt.Errorf("failed to write settings file: %w", err)
	}
	return absPath, nil
}
