// Package cli implements the videobatch command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Global flags shared by every subcommand
var (
	globalConfig     string
	globalWorkingDir string
	globalRemote     string
	globalLogLevel   string
)

// exitError carries a process exit code through cobra's error return
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// exitCode maps a command error to a process exit code, printing it unless
// it is a bare exitError.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "%s %v\n", styleError.Render("Error:"), err)
	return 1
}

// Execute runs the command line and returns the process exit code.
// args should be os.Args[1:].
func Execute(args []string, version string) int {
	cmd := newRootCmd(version)
	cmd.SetArgs(args)
	return exitCode(cmd.Execute(), os.Stderr)
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "videobatch",
		Short:         "Run ffmpeg-backed media tasks and batch jobs",
		Long:          "videobatch runs media tasks (ffmpeg, ffprobe, arbitrary commands) over single files or\nconfigured batch jobs, recording every run as a session with its tool output.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&globalConfig, "config", "", "Path to the settings file")
	root.PersistentFlags().StringVarP(&globalWorkingDir, "working-dir", "C", "", "Change to this directory before doing anything")
	root.PersistentFlags().StringVar(&globalRemote, "remote", "", "Address of a running 'videobatch serve --http' to route commands through")
	root.PersistentFlags().StringVar(&globalLogLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")

	root.AddCommand(
		newTasksCmd(),
		newRunCmd(),
		newExecCmd(),
		newBatchCmd(),
		newHistoryCmd(),
		newLogsCmd(),
		newInitCmd(),
		newServeCmd(version),
	)

	return root
}

// applyWorkingDir changes into --working-dir when it is set
func applyWorkingDir() error {
	if globalWorkingDir == "" {
		return nil
	}
	if err := os.Chdir(globalWorkingDir); err != nil {
		return fmt.Errorf("failed to change to working directory %s: %w", globalWorkingDir, err)
	}
	return nil
}
