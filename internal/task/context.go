package task

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ExecutionContext is the state a task works on. One logical owner at a
// time: the caller builds it, the executing task mutates it, and the caller
// inspects it afterward. Messages are append-only and the error flag, once
// set, cannot be cleared.
type ExecutionContext struct {
	InputFilePath  string
	OutputFilePath string
	Properties     map[string]interface{}

	// SessionDir, when set, is where tasks keep tool output logs.
	SessionDir string

	mu       sync.Mutex
	messages []string
	hasError bool
	failures int
}

// NewExecutionContext creates a context for one task invocation
func NewExecutionContext(inputFilePath string, properties map[string]interface{}) *ExecutionContext {
	if properties == nil {
		properties = make(map[string]interface{})
	}
	return &ExecutionContext{
		InputFilePath: inputFilePath,
		Properties:    properties,
	}
}

// Log appends a message
func (ec *ExecutionContext) Log(msg string) {
	ec.mu.Lock()
	ec.messages = append(ec.messages, msg)
	ec.mu.Unlock()
}

// Logf appends a formatted message
func (ec *ExecutionContext) Logf(format string, args ...interface{}) {
	ec.Log(fmt.Sprintf(format, args...))
}

// Fail marks the context as failed and appends msg
func (ec *ExecutionContext) Fail(msg string) {
	ec.mu.Lock()
	ec.messages = append(ec.messages, msg)
	ec.hasError = true
	ec.failures++
	ec.mu.Unlock()
}

// Failf marks the context as failed and appends a formatted message
func (ec *ExecutionContext) Failf(format string, args ...interface{}) {
	ec.Fail(fmt.Sprintf(format, args...))
}

func (ec *ExecutionContext) markFailed() {
	ec.mu.Lock()
	ec.hasError = true
	ec.failures++
	ec.mu.Unlock()
}

// failureCount lets a pipeline tell whether a step failed even when the
// sticky flag was already set.
func (ec *ExecutionContext) failureCount() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.failures
}

// HasError reports whether any stage has failed
func (ec *ExecutionContext) HasError() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.hasError
}

// Messages returns a copy of the log so far
func (ec *ExecutionContext) Messages() []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]string, len(ec.messages))
	copy(out, ec.messages)
	return out
}

// MessageCount returns the number of messages logged so far
func (ec *ExecutionContext) MessageCount() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.messages)
}

type contextSnapshot struct {
	InputFilePath  string                 `json:"input_file_path,omitempty"`
	OutputFilePath string                 `json:"output_file_path,omitempty"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
	SessionDir     string                 `json:"session_dir,omitempty"`
	Messages       []string               `json:"messages"`
	HasError       bool                   `json:"has_error"`
}

// MarshalJSON encodes a point-in-time snapshot of the context
func (ec *ExecutionContext) MarshalJSON() ([]byte, error) {
	ec.mu.Lock()
	snap := contextSnapshot{
		InputFilePath:  ec.InputFilePath,
		OutputFilePath: ec.OutputFilePath,
		Properties:     ec.Properties,
		SessionDir:     ec.SessionDir,
		Messages:       append([]string{}, ec.messages...),
		HasError:       ec.hasError,
	}
	ec.mu.Unlock()
	return json.Marshal(snap)
}
