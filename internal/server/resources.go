package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	tasksResourceURI   = "videobatch://tasks"
	jobsResourceURI    = "videobatch://jobs"
	jobsDocURI         = "videobatch://docs/jobs"
	sessionURIPrefix   = "videobatch://sessions/"
	sessionURITemplate = sessionURIPrefix + "{session_id}"
)

// jobInfo is the MCP view of a configured job
type jobInfo struct {
	Description string   `json:"description"`
	Inputs      []string `json:"inputs,omitempty"`
	OutputDir   string   `json:"output_dir,omitempty"`
	Timeout     int      `json:"timeout,omitempty"`
	Parallelism int      `json:"parallelism,omitempty"`
	Steps       []string `json:"steps"`
}

// registerResources registers MCP resources for tasks, jobs and sessions
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcp.NewResource(
			tasksResourceURI,
			"Tasks",
			mcp.WithResourceDescription("Registered task types with their property definitions"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			result, _ := s.handleListTasks(ctx, mcp.CallToolRequest{})
			if result == nil || result.IsError || len(result.Content) == 0 {
				return nil, fmt.Errorf("failed to list tasks")
			}
			tc, ok := mcp.AsTextContent(result.Content[0])
			if !ok {
				return nil, fmt.Errorf("failed to list tasks")
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: tasksResourceURI, MIMEType: "application/json", Text: tc.Text},
			}, nil
		},
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			jobsResourceURI,
			"Jobs",
			mcp.WithResourceDescription("Configured jobs visible to MCP clients"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			data, err := json.MarshalIndent(s.jobInfos(), "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal jobs: %w", err)
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: jobsResourceURI, MIMEType: "application/json", Text: string(data)},
			}, nil
		},
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			jobsDocURI,
			"Job Configuration",
			mcp.WithResourceDescription("How jobs, steps and properties are configured"),
			mcp.WithMIMEType("text/markdown"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: jobsDocURI, MIMEType: "text/markdown", Text: jobsDoc},
			}, nil
		},
	)

	if s.sessions != nil {
		s.mcpServer.AddResourceTemplate(
			mcp.NewResourceTemplate(
				sessionURITemplate,
				"Session",
				mcp.WithTemplateDescription("Metadata of one execution session"),
				mcp.WithTemplateMIMEType("application/json"),
			),
			func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				id := strings.TrimPrefix(req.Params.URI, sessionURIPrefix)
				meta, err := s.sessions.ReadMetadata(id)
				if err != nil {
					return nil, err
				}
				data, err := json.MarshalIndent(meta, "", "  ")
				if err != nil {
					return nil, fmt.Errorf("failed to marshal session: %w", err)
				}
				return []mcp.ResourceContents{
					mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
				}, nil
			},
		)
	}
}

func (s *Server) jobInfos() map[string]jobInfo {
	out := make(map[string]jobInfo)
	for name, j := range mcpJobs(s.currentSettings()) {
		info := jobInfo{
			Description: j.Description,
			Inputs:      j.Inputs,
			OutputDir:   j.OutputDir,
			Timeout:     j.Timeout,
			Parallelism: j.Parallelism,
		}
		for _, step := range j.Steps {
			info.Steps = append(info.Steps, step.Task)
		}
		out[name] = info
	}
	return out
}

const jobsDoc = `# videobatch jobs

A job is a chain of task steps applied to every file its ` + "`inputs`" + ` globs match.
Each input runs through its own copy of the pipeline: the output file of one
step becomes the input of the next, and a failing input never stops the others.

` + "```yaml" + `
jobs:
  podcast-audio:
    description: "Audio tracks for the podcast feed"
    inputs: ["recordings/*.mov"]
    output_dir: feed
    timeout: 900        # seconds per input
    parallelism: 2
    properties:         # shared by every step
      output_extension: mp3
    steps:
      - task: probe-media-ffprobe
      - task: extract-audio-ffmpeg
        properties:
          timeout_seconds: 600
` + "```" + `

Steps name a task by ID, display name or slug (see ` + "`list_tasks`" + `).
Step properties override job properties for that step only. Set
` + "`continue_on_failure: true`" + ` to keep going after a failed step.

Every input is recorded as a session. Use ` + "`read_session_log`" + ` with the
returned session_id to read the task messages, or pass ` + "`file`" + ` to read a
tool's stdout/stderr log, and ` + "`list_runs`" + ` to browse history.
`
