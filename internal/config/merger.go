package config

import (
	"fmt"
)

// mergeSettings combines the top-level settings with imported job files.
// The top-level file provides everything except jobs; imported files only
// contribute jobs. Returns an error if duplicate job names are found
func mergeSettings(base *Settings, imports []*Settings) (*Settings, error) {
	result := *base
	result.Jobs = make(map[string]Job)

	if err := mergeJobs(result.Jobs, base.Jobs); err != nil {
		return nil, err
	}
	for _, imported := range imports {
		if err := mergeJobs(result.Jobs, imported.Jobs); err != nil {
			return nil, err
		}
	}

	return &result, nil
}

// mergeJobs merges source jobs into destination
// Returns error if duplicate job names are found
func mergeJobs(dst, src map[string]Job) error {
	for name, job := range src {
		if _, exists := dst[name]; exists {
			return fmt.Errorf("duplicate job name '%s' found during merge", name)
		}
		dst[name] = job
	}
	return nil
}
