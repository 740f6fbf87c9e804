// Package toolrun holds what every tool-backed task does around a process
// run: stream tool output into the execution log, keep tee files in the
// session directory, and translate a process result into diagnostics.
package toolrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"videobatch.dev/internal/process"
	"videobatch.dev/internal/task"
)

// Runner runs one external process. *process.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, spec process.Spec) (*process.Result, error)
}

// TeePaths returns stdout/stderr log paths for one invocation of tool
// inside dir.
func TeePaths(dir, tool string) (string, string) {
	prefix := fmt.Sprintf("%s-%s", tool, uuid.NewString()[:8])
	return filepath.Join(dir, prefix+".stdout.log"), filepath.Join(dir, prefix+".stderr.log")
}

// Run invokes the tool and logs its lifecycle into ec. Lines are logged as
// "[TOOL_OUT] ..." and "[TOOL_ERR] ..." unless spec already has callbacks.
// The bool is false when the run could not even start; ec has already been
// marked failed in that case.
func Run(ctx context.Context, r Runner, ec *task.ExecutionContext, tool string, spec process.Spec) (*process.Result, bool) {
	tag := strings.ToUpper(tool)
	if spec.Stdout == nil {
		spec.Stdout = func(line string) { ec.Logf("[%s_OUT] %s", tag, line) }
	}
	if spec.Stderr == nil {
		spec.Stderr = func(line string) { ec.Logf("[%s_ERR] %s", tag, line) }
	}
	if ec.SessionDir != "" && spec.StdoutPath == "" && spec.StderrPath == "" {
		spec.StdoutPath, spec.StderrPath = TeePaths(ec.SessionDir, tool)
	}

	ec.Logf("Starting %s process...", tool)
	started := time.Now()

	res, err := r.Run(ctx, spec)
	if err != nil {
		ec.Failf("[ERROR] Could not run %s: %v", tool, err)
		return nil, false
	}

	ec.Logf("%s process finished in %d ms.", tool, time.Since(started).Milliseconds())
	ec.Logf("Exit Code: %d", res.ExitCode)
	return res, true
}

// ReportFailure marks ec failed and explains why res is not a success
func ReportFailure(ec *task.ExecutionContext, tool string, res *process.Result) {
	if res.Cancelled {
		ec.Failf("[CANCELLED] Task execution was cancelled after %d ms.", res.Duration.Milliseconds())
		if res.Err != nil {
			ec.Logf("Reason: Exception - %v", res.Err)
		}
		return
	}

	ec.Failf("[ERROR] %s process failed.", tool)
	if res.TimedOut {
		ec.Log("Reason: Process timed out.")
	}
	if res.Err != nil {
		ec.Logf("Reason: Exception - %v", res.Err)
	}
	if res.ExitCode != 0 {
		ec.Logf("Check %s error output above for details (Exit Code: %d).", tool, res.ExitCode)
	}
}

// RequireOutput verifies that a successful run left its output file behind
func RequireOutput(ec *task.ExecutionContext, tool, path string) bool {
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return true
	}
	ec.Failf("[ERROR] %s reported success (ExitCode 0), but the output file was not found!", tool)
	ec.Logf("Expected file: %s", path)
	return false
}

// RemovePartial deletes a possibly incomplete output file after a failure
func RemovePartial(ec *task.ExecutionContext, path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		ec.Logf("[WARN] Could not delete potentially incomplete output file %s: %v", path, err)
		return
	}
	ec.Logf("Removed incomplete output file: %s", path)
}

// CheckInput validates the context's input file
func CheckInput(ec *task.ExecutionContext) bool {
	if ec.InputFilePath == "" {
		ec.Fail("[ERROR] Input file path is missing.")
		return false
	}
	info, err := os.Stat(ec.InputFilePath)
	if err != nil || info.IsDir() {
		ec.Failf("[ERROR] Input file not found: %s", ec.InputFilePath)
		return false
	}
	return true
}
