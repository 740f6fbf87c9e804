package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. VIDEOBATCH_FFMPEG_PATH
const EnvPrefix = "VIDEOBATCH"

// envOverrides are the settings that can be set from the environment.
// Unset variables leave the file values alone.
type envOverrides struct {
	FFmpegPath  string `envconfig:"FFMPEG_PATH"`
	FFprobePath string `envconfig:"FFPROBE_PATH"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	StateDir    string `envconfig:"STATE_DIR"`
	TempDir     string `envconfig:"TEMP_DIR"`
	Parallelism int    `envconfig:"PARALLELISM"`
}

// ApplyEnv overlays VIDEOBATCH_* environment variables onto settings
func ApplyEnv(settings *Settings) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.FFmpegPath != "" {
		settings.Tools.FFmpegPath = env.FFmpegPath
	}
	if env.FFprobePath != "" {
		settings.Tools.FFprobePath = env.FFprobePath
	}
	if env.LogLevel != "" {
		settings.LogLevel = env.LogLevel
	}
	if env.StateDir != "" {
		settings.StateDir = env.StateDir
	}
	if env.TempDir != "" {
		settings.Runner.TempDir = env.TempDir
	}
	if env.Parallelism != 0 {
		settings.Parallelism = env.Parallelism
	}
	return nil
}
