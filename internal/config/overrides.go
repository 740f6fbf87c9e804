package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadOverrides reads and parses the overrides YAML file at path.
// Returns nil if the file does not exist.
// Returns an error if the file exists but cannot be read or parsed.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read overrides file %s: %w", path, err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse overrides file %s: %w", path, err)
	}

	return &overrides, nil
}

// ApplyOverrides applies visibility overrides to the jobs in place.
// Glob patterns (e.g. "nightly-*") are supported.
// Flags are additive: once set to true, they stay true.
func ApplyOverrides(settings *Settings, overrides *Overrides) {
	for pattern, override := range overrides.Jobs {
		for name, job := range settings.Jobs {
			if matchesPattern(pattern, name) {
				if override.Disabled {
					job.Disabled = true
				}
				if override.DisableMCP {
					job.DisableMCP = true
				}
				settings.Jobs[name] = job
			}
		}
	}
}

// matchesPattern checks whether name matches pattern using filepath.Match glob syntax.
func matchesPattern(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}
