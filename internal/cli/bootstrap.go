package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"videobatch.dev/internal/batch"
	"videobatch.dev/internal/config"
	"videobatch.dev/internal/dirs"
	"videobatch.dev/internal/logs"
	"videobatch.dev/internal/process"
	"videobatch.dev/internal/store"
	"videobatch.dev/internal/task"
	"videobatch.dev/internal/tasks"
	"videobatch.dev/internal/tasks/ffmpeg"
)

// app holds everything a local command needs
type app struct {
	settings   *config.Settings
	configPath string
	runner     *process.Runner
	registry   *task.Registry
	sessions   *logs.Manager
	history    *store.Store
	batch      *batch.Runner
}

// loadSettings applies the working directory, loads settings and sets up
// the global logger.
func loadSettings() (*config.Settings, string, error) {
	if err := applyWorkingDir(); err != nil {
		return nil, "", err
	}

	settings, path, err := config.Load(globalConfig)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	if globalLogLevel != "" {
		settings.LogLevel = globalLogLevel
	}
	if err := logs.SetupLogger(settings.LogLevel, os.Stderr); err != nil {
		return nil, "", err
	}
	return settings, path, nil
}

// newRunner builds the process runner from the runner settings
func newRunner(settings *config.Settings) *process.Runner {
	policy := process.RetainTempFiles
	if settings.Runner.RemoveTempFiles {
		policy = process.RemoveTempFiles
	}
	return process.NewRunner(
		process.WithTempDir(settings.Runner.TempDir),
		process.WithTempPolicy(policy),
		process.WithDrainGrace(settings.DrainGrace()),
		process.WithKillGrace(settings.KillGrace()),
		process.WithLogger(log.Logger),
	)
}

// bootstrap loads settings and wires the runner, task registry, sessions,
// run history and batch runner.
func bootstrap() (*app, error) {
	settings, path, err := loadSettings()
	if err != nil {
		return nil, err
	}

	a := &app{
		settings:   settings,
		configPath: path,
		runner:     newRunner(settings),
	}

	a.registry, err = tasks.NewRegistry(tasks.Deps{
		Runner: a.runner,
		FFmpeg: ffmpeg.Config{
			FFmpegPath:  settings.Tools.FFmpegPath,
			FFprobePath: settings.Tools.FFprobePath,
			Timeout:     settings.ToolTimeout(),
		},
		OutputDir: settings.Runner.TempDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register tasks: %w", err)
	}

	a.sessions = logs.NewManager(settings.StateDir)
	if err := a.sessions.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup sessions: %w", err)
	}

	a.history, err = store.New(filepath.Join(settings.StateDir, dirs.HistoryDB))
	if err != nil {
		// sessions still work without history
		log.Warn().Err(err).Msg("run history disabled")
		a.history = nil
	}

	opts := []batch.Option{
		batch.WithSessions(a.sessions),
		batch.WithParallelism(settings.Parallelism),
		batch.WithRetention(logs.SessionRetention{
			MaxSessions: settings.Retention.MaxSessions,
			MaxAge:      settings.Retention.MaxAge(),
		}),
		batch.WithLogger(log.Logger),
	}
	if a.history != nil {
		opts = append(opts, batch.WithHistory(a.history))
	}
	a.batch = batch.New(a.registry, opts...)

	return a, nil
}

// Close releases the history database
func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close run history")
		}
	}
}
