package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PropertyType names the value type a property expects
type PropertyType string

const (
	PropertyString   PropertyType = "string"
	PropertyInt      PropertyType = "int"
	PropertyBool     PropertyType = "bool"
	PropertyDuration PropertyType = "duration"
	PropertyPath     PropertyType = "path"
)

// PropertyDefinition declares one configurable input of a task type
type PropertyDefinition struct {
	Name        string       `json:"name"`
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Default     interface{}  `json:"default,omitempty"`
	Required    bool         `json:"required"`
}

// Descriptor is the static metadata of a task type
type Descriptor struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
}

// Task is a pluggable unit of work.
//
// Execute reports every expected failure through the returned context
// (HasError plus a diagnostic message) instead of an error value. It must
// check ctx before expensive work and again before producing files.
type Task interface {
	Descriptor() Descriptor
	PropertyDefinitions() []PropertyDefinition
	Execute(ctx context.Context, ec *ExecutionContext) *ExecutionContext
}

// StepResult represents the outcome of a single pipeline step
type StepResult struct {
	StepIndex  int           `json:"step_index"`
	TaskName   string        `json:"task_name"`
	TaskID     string        `json:"task_id,omitempty"`
	Skipped    bool          `json:"skipped"`
	Failed     bool          `json:"failed"`
	OutputFile string        `json:"output_file,omitempty"`
	Duration   time.Duration `json:"duration"`
	// Messages[FirstMessage:LastMessage] of the shared context were written by this step.
	FirstMessage int `json:"first_message"`
	LastMessage  int `json:"last_message"`
}

// PipelineResult represents the aggregated result of a pipeline run
type PipelineResult struct {
	Success     bool              `json:"success"`
	Steps       []StepResult      `json:"steps"`
	Duration    time.Duration     `json:"duration"`
	Error       string            `json:"error,omitempty"`
	StepsRun    int               `json:"steps_run"`
	StepsFailed int               `json:"steps_failed"`
	Context     *ExecutionContext `json:"context"`
}
