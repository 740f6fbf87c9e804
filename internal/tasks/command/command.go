// Package command provides a task that runs an arbitrary executable with
// templated arguments.
package command

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"videobatch.dev/internal/process"
	"videobatch.dev/internal/task"
	"videobatch.dev/internal/tasks/toolrun"
	"videobatch.dev/internal/template"
)

const (
	propExecutable       = "executable"
	propArgs             = "args"
	propOutputFile       = "output_file"
	propWorkingDirectory = "working_directory"
	propTimeoutSeconds   = "timeout_seconds"
)

var commandID = uuid.MustParse("3c9e6f1a-7d24-4b8e-a5f3-2e6d8c1b9a70")

// Command runs any executable against the input file
type Command struct {
	runner toolrun.Runner
}

// New creates the task
func New(r toolrun.Runner) *Command {
	return &Command{runner: r}
}

func (c *Command) Descriptor() task.Descriptor {
	return task.Descriptor{
		ID:          commandID,
		Name:        "Run Command",
		Description: "Runs an executable with templated arguments ({{.Input}}, {{.Output}}, {{.Props.name}}). When output_file is set the file must exist after a successful run.",
		Version:     "1.0",
	}
}

func (c *Command) PropertyDefinitions() []task.PropertyDefinition {
	return []task.PropertyDefinition{
		{Name: propExecutable, Type: task.PropertyPath, Description: "Executable to run; bare names are looked up on PATH.", Required: true},
		{Name: propArgs, Type: task.PropertyString, Description: "Arguments, split with shell quoting rules, each word expanded as a template."},
		{Name: propOutputFile, Type: task.PropertyString, Description: "Template for the produced file, e.g. {{dir .Input}}/{{stem .Input}}.wav."},
		{Name: propWorkingDirectory, Type: task.PropertyPath, Description: "Working directory; defaults to the current one."},
		{Name: propTimeoutSeconds, Type: task.PropertyDuration, Description: "Kill the command after this many seconds. 0 disables the timeout.", Default: 0},
	}
}

func (c *Command) Execute(ctx context.Context, ec *task.ExecutionContext) *task.ExecutionContext {
	desc := c.Descriptor()
	ec.Logf("[%s v%s] Starting execution.", desc.Name, desc.Version)
	defer ec.Logf("[%s] Execution finished.", desc.Name)

	exe := ec.String(propExecutable)
	if exe == "" {
		ec.Failf("[ERROR] Property '%s' is missing.", propExecutable)
		return ec
	}
	timeout, err := ec.Duration(propTimeoutSeconds, 0)
	if err != nil {
		ec.Failf("[ERROR] %v", err)
		return ec
	}

	data := template.Data{Input: ec.InputFilePath, Props: ec.Properties}
	output := ""
	if tmpl := ec.String(propOutputFile); tmpl != "" {
		output, err = template.Expand(tmpl, data)
		if err != nil {
			ec.Failf("[ERROR] Invalid %s: %v", propOutputFile, err)
			return ec
		}
		data.Output = output
	}

	args, err := template.ExpandArgs(ec.String(propArgs), data)
	if err != nil {
		ec.Failf("[ERROR] Invalid %s: %v", propArgs, err)
		return ec
	}

	if ec.InputFilePath != "" {
		ec.Logf("Input: %s", ec.InputFilePath)
	}
	if output != "" {
		ec.Logf("Output: %s", output)
	}
	ec.Logf("Command: %s", template.CommandLine(exe, args))

	if ctx.Err() != nil {
		ec.Fail("[CANCELLED] Task cancelled before the command was started.")
		return ec
	}
	if output != "" {
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			ec.Failf("[ERROR] Could not create output directory: %v", err)
			return ec
		}
	}

	res, ok := toolrun.Run(ctx, c.runner, ec, "command", process.Spec{
		Path:    exe,
		Args:    args,
		Dir:     ec.String(propWorkingDirectory),
		Timeout: timeout,
	})
	if !ok {
		return ec
	}

	if !res.Success() {
		toolrun.ReportFailure(ec, "command", res)
		toolrun.RemovePartial(ec, output)
		return ec
	}

	if output == "" {
		return ec
	}
	if !toolrun.RequireOutput(ec, "command", output) {
		return ec
	}
	ec.OutputFilePath = output
	return ec
}
