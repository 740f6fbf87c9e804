package config

import (
	"fmt"
	"os"
	"path/filepath"

	"videobatch.dev/internal/dirs"
)

// Default returns the settings used when no settings file exists
func Default() *Settings {
	return &Settings{
		Version:     "1.0",
		StateDir:    dirs.StateDir,
		LogLevel:    "info",
		Parallelism: 2,
		Tools: Tools{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Retention: Retention{
			MaxSessions: 100,
			MaxAgeDays:  7,
		},
		Jobs: make(map[string]Job),
	}
}

// SearchPaths returns the settings locations in priority order
func SearchPaths(customPath string) []string {
	return []string{
		customPath,
		filepath.Join(".", dirs.SettingsFile),
		filepath.Join(".", dirs.ConfigDir, "config.yaml"),
	}
}

// Load loads settings, applies local overrides and environment variables,
// and validates the result.
// It searches for the settings file in the following priority order:
// 1. Custom path (if provided; it must exist)
// 2. ./videobatch.yaml
// 3. ./.videobatch/config.yaml
// Without a settings file the defaults are used. The second return value is
// the path that was loaded, or "" for defaults.
func Load(customPath string) (*Settings, string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err != nil {
			return nil, "", fmt.Errorf("settings file %s: %w", customPath, err)
		}
	}

	settings := Default()
	loadedFrom := ""

	for _, path := range SearchPaths(customPath) {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		parsed, err := ParseSettings(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse settings at %s: %w", path, err)
		}
		settings = parsed
		loadedFrom = path
		break
	}

	overrides, err := LoadOverrides(dirs.OverridesFile)
	if err != nil {
		return nil, "", err
	}
	if overrides != nil {
		ApplyOverrides(settings, overrides)
	}

	if err := ApplyEnv(settings); err != nil {
		return nil, "", err
	}

	if err := Validate(settings); err != nil {
		if loadedFrom == "" {
			return nil, "", fmt.Errorf("invalid settings: %w", err)
		}
		return nil, "", fmt.Errorf("invalid settings at %s: %w", loadedFrom, err)
	}

	return settings, loadedFrom, nil
}
