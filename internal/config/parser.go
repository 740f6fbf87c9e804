package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseWithImports recursively parses a settings file and the job files it
// imports. visited tracks files already processed to detect circular imports
func parseWithImports(path string, visited map[string]bool) (*Settings, []*Settings, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve absolute path for %s: %w", path, err)
	}

	if err := detectCircularDependency(absPath, visited); err != nil {
		return nil, nil, err
	}

	visited[absPath] = true
	defer delete(visited, absPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}

	if len(settings.Imports) == 0 {
		return &settings, nil, nil
	}

	importPaths, err := resolveImports(filepath.Dir(path), settings.Imports)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve imports in %s: %w", path, err)
	}

	var imported []*Settings
	for _, importPath := range importPaths {
		child, nested, err := parseWithImports(importPath, visited)
		if err != nil {
			return nil, nil, err
		}
		imported = append(imported, child)
		imported = append(imported, nested...)
	}

	return &settings, imported, nil
}

// resolveImports expands glob patterns and resolves relative paths
func resolveImports(baseDir string, imports []string) ([]string, error) {
	var resolved []string
	seen := make(map[string]bool)

	for _, importPattern := range imports {
		pattern := importPattern
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern '%s': %w", importPattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("import pattern '%s' matched no files", importPattern)
		}

		for _, match := range matches {
			absMatch, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", match, err)
			}
			if !seen[absMatch] {
				resolved = append(resolved, absMatch)
				seen[absMatch] = true
			}
		}
	}

	return resolved, nil
}

// detectCircularDependency checks if a file is already being processed
func detectCircularDependency(path string, visited map[string]bool) error {
	if visited[path] {
		var chain []string
		for p := range visited {
			chain = append(chain, p)
		}
		chain = append(chain, path)
		return fmt.Errorf("circular import detected: %s", strings.Join(chain, " -> "))
	}
	return nil
}

// ParseSettings parses a YAML settings file.
// Jobs from imported files are merged in; everything else comes from the
// top-level file.
func ParseSettings(path string) (*Settings, error) {
	visited := make(map[string]bool)
	main, imported, err := parseWithImports(path, visited)
	if err != nil {
		return nil, err
	}

	settings := main
	if len(imported) > 0 {
		settings, err = mergeSettings(main, imported)
		if err != nil {
			return nil, fmt.Errorf("failed to merge settings: %w", err)
		}
	}

	applyDefaults(settings)
	return settings, nil
}

// applyDefaults fills unset values with built-in defaults and merges the
// settings-level job defaults into each job. Job values take precedence.
func applyDefaults(s *Settings) {
	def := Default()

	if s.Version == "" {
		s.Version = def.Version
	}
	if s.StateDir == "" {
		s.StateDir = def.StateDir
	}
	if s.LogLevel == "" {
		s.LogLevel = def.LogLevel
	}
	if s.Parallelism == 0 {
		s.Parallelism = def.Parallelism
	}
	if s.Tools.FFmpegPath == "" {
		s.Tools.FFmpegPath = def.Tools.FFmpegPath
	}
	if s.Tools.FFprobePath == "" {
		s.Tools.FFprobePath = def.Tools.FFprobePath
	}
	if s.Retention.MaxSessions == 0 {
		s.Retention.MaxSessions = def.Retention.MaxSessions
	}
	if s.Retention.MaxAgeDays == 0 {
		s.Retention.MaxAgeDays = def.Retention.MaxAgeDays
	}
	if s.Jobs == nil {
		s.Jobs = make(map[string]Job)
	}

	for name, job := range s.Jobs {
		if job.Timeout == 0 && s.Defaults.Timeout > 0 {
			job.Timeout = s.Defaults.Timeout
		}
		if job.Parallelism == 0 {
			job.Parallelism = s.Defaults.Parallelism
		}
		if job.Parallelism == 0 {
			job.Parallelism = s.Parallelism
		}

		if len(s.Defaults.Properties) > 0 {
			if job.Properties == nil {
				job.Properties = make(map[string]interface{})
			}
			for key, value := range s.Defaults.Properties {
				if _, exists := job.Properties[key]; !exists {
					job.Properties[key] = value
				}
			}
		}

		s.Jobs[name] = job
	}
}
