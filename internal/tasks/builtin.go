// Package tasks wires the built-in task types into a registry.
package tasks

import (
	"videobatch.dev/internal/task"
	"videobatch.dev/internal/tasks/command"
	"videobatch.dev/internal/tasks/ffmpeg"
	"videobatch.dev/internal/tasks/samplelog"
	"videobatch.dev/internal/tasks/toolrun"
)

// Deps are the collaborators built-in tasks need
type Deps struct {
	Runner toolrun.Runner
	FFmpeg ffmpeg.Config
	// OutputDir is where tasks without an explicit output directory write.
	OutputDir string
}

// RegisterBuiltins registers every built-in task type with reg
func RegisterBuiltins(reg *task.Registry, deps Deps) error {
	ffcfg := deps.FFmpeg
	if ffcfg.OutputDir == "" {
		ffcfg.OutputDir = deps.OutputDir
	}

	factories := []task.Factory{
		func() task.Task { return ffmpeg.NewExtractAudio(deps.Runner, ffcfg) },
		func() task.Task { return ffmpeg.NewProbeMedia(deps.Runner, ffcfg) },
		func() task.Task { return command.New(deps.Runner) },
		func() task.Task { return samplelog.New(deps.OutputDir) },
	}
	for _, f := range factories {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in tasks
func NewRegistry(deps Deps) (*task.Registry, error) {
	reg := task.NewRegistry()
	if err := RegisterBuiltins(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}
