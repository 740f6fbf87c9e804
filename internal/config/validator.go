package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate performs validation on parsed settings
func Validate(s *Settings) error {
	var errors []string

	if s.Version == "" {
		errors = append(errors, "version is required")
	}

	for i, importPath := range s.Imports {
		if importPath == "" {
			errors = append(errors, fmt.Sprintf("import at index %d cannot be empty", i))
		}
	}

	if !logLevels[strings.ToLower(s.LogLevel)] {
		errors = append(errors, fmt.Sprintf("invalid log_level '%s' (must be one of trace, debug, info, warn, error)", s.LogLevel))
	}
	if s.Parallelism < 0 {
		errors = append(errors, "parallelism cannot be negative")
	}
	if s.Tools.Timeout < 0 {
		errors = append(errors, "tools.timeout cannot be negative")
	}
	if s.Runner.DrainGrace < 0 || s.Runner.KillGrace < 0 {
		errors = append(errors, "runner grace periods cannot be negative")
	}
	if s.Retention.MaxSessions < 0 || s.Retention.MaxAgeDays < 0 {
		errors = append(errors, "retention limits cannot be negative")
	}

	if s.Jobs == nil {
		errors = append(errors, "jobs map must be initialized")
	}

	for name, job := range s.Jobs {
		if err := validateJob(name, job); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateJob(name string, job Job) error {
	var errors []string

	if job.Description == "" {
		errors = append(errors, fmt.Sprintf("job '%s': description is required", name))
	}

	if len(job.Steps) == 0 {
		errors = append(errors, fmt.Sprintf("job '%s': must contain at least one step", name))
	}

	for i, step := range job.Steps {
		if strings.TrimSpace(step.Task) == "" {
			errors = append(errors, fmt.Sprintf("job '%s': step %d must name a task", name, i))
		}
	}

	for _, pattern := range job.Inputs {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errors = append(errors, fmt.Sprintf("job '%s': invalid input pattern '%s'", name, pattern))
		}
	}

	if job.Timeout < 0 {
		errors = append(errors, fmt.Sprintf("job '%s': timeout cannot be negative", name))
	}
	if job.Parallelism < 0 {
		errors = append(errors, fmt.Sprintf("job '%s': parallelism cannot be negative", name))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
