package process

import (
	"errors"
	"time"
)

// Sentinel exit codes reported in Result.ExitCode when the process did not
// produce a status of its own.
const (
	// ExitCodeLaunchFailed means the process never started or was never spawned.
	ExitCodeLaunchFailed = -1
	// ExitCodeKilled means the process tree was forcibly terminated after a
	// timeout or cancellation.
	ExitCodeKilled = -99
	// ExitCodeUnknown means the process ended but its status could not be read,
	// or termination was attempted and failed.
	ExitCodeUnknown = -999
)

var (
	// ErrExecutableNotFound is returned by Run when the executable does not exist.
	ErrExecutableNotFound = errors.New("executable not found")
	// ErrWorkingDirNotFound is returned by Run when the working directory does not exist.
	ErrWorkingDirNotFound = errors.New("working directory not found")
	// ErrExitCodeUnavailable is recorded when the process exited but no exit
	// status could be retrieved.
	ErrExitCodeUnavailable = errors.New("process exited but exit code could not be retrieved")
	// ErrStreamDrainTimeout is recorded when stdout/stderr did not reach
	// end-of-stream within the grace period.
	ErrStreamDrainTimeout = errors.New("timed out waiting for output streams to drain")
)

// Result is the outcome of a single Run. It is not modified after Run returns.
type Result struct {
	ExitCode   int           `json:"exit_code"`
	StdoutPath string        `json:"stdout_path,omitempty"`
	StderrPath string        `json:"stderr_path,omitempty"`
	TimedOut   bool          `json:"timed_out"`
	Cancelled  bool          `json:"cancelled"`
	Err        error         `json:"-"`
	PID        int           `json:"pid,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Success reports whether the process ran to natural completion with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Err == nil && !r.TimedOut && !r.Cancelled
}
