package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"videobatch.dev/internal/process"
)

func newExecCmd() *cobra.Command {
	var (
		timeout    time.Duration
		dir        string
		stdoutPath string
		stderrPath string
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- <executable> [args...]",
		Short: "Run an executable through the process runner",
		Long: "Run an executable directly through the process runner, streaming its output line by line.\n" +
			"The command exits with the process's own exit code, 124 when it was killed after --timeout,\n" +
			"130 when it was interrupted, and 1 when it could not be run or its status is unknown.",
		Example: `  videobatch exec --timeout 30s -- ffprobe -hide_banner clip.mp4`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := loadSettings()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			spec := process.Spec{
				Path:       args[0],
				Args:       args[1:],
				Dir:        dir,
				Timeout:    timeout,
				StdoutPath: stdoutPath,
				StderrPath: stderrPath,
				Stdout:     lineWriter(cmd.OutOrStdout()),
				Stderr:     lineWriter(cmd.ErrOrStderr()),
			}

			res, err := newRunner(settings).Run(ctx, spec)
			if err != nil {
				return err
			}
			printProcessResult(cmd.ErrOrStderr(), res)

			if !res.Success() {
				return &exitError{code: shellExitCode(res)}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the process tree after this long (0 = no timeout)")
	cmd.Flags().StringVar(&dir, "dir", "", "Working directory for the process")
	cmd.Flags().StringVar(&stdoutPath, "stdout-file", "", "Copy stdout to this file (default: temp file)")
	cmd.Flags().StringVar(&stderrPath, "stderr-file", "", "Copy stderr to this file (default: temp file)")

	return cmd
}

// Exit codes for runs the runner ended itself, following timeout(1) and the
// shell's 128+SIGINT.
const (
	exitTimedOut    = 124
	exitInterrupted = 130
)

// shellExitCode maps a failed result to a code the shell can show. The
// runner's negative sentinels would otherwise wrap around (-99 becomes 157).
func shellExitCode(res *process.Result) int {
	switch {
	case res.TimedOut:
		return exitTimedOut
	case res.Cancelled:
		return exitInterrupted
	case res.ExitCode <= 0:
		return 1
	default:
		return res.ExitCode
	}
}

// lineWriter returns a line callback printing to w
func lineWriter(w io.Writer) process.LineFunc {
	return func(line string) {
		fmt.Fprintln(w, line)
	}
}

func printProcessResult(w io.Writer, res *process.Result) {
	fmt.Fprintln(w)
	switch {
	case res.TimedOut:
		fmt.Fprintf(w, "%s  exit code %d  %s\n", styleWarn.Render("[TIMEOUT]"), res.ExitCode, styleDim.Render(formatDuration(res.Duration)))
	case res.Cancelled:
		fmt.Fprintf(w, "%s  exit code %d  %s\n", styleWarn.Render("[CANCELLED]"), res.ExitCode, styleDim.Render(formatDuration(res.Duration)))
	case res.Success():
		fmt.Fprintf(w, "%s  %s\n", styleOK.Render("[OK]"), styleDim.Render(formatDuration(res.Duration)))
	default:
		fmt.Fprintf(w, "%s  exit code %d  %s\n", styleFail.Render("[FAIL]"), res.ExitCode, styleDim.Render(formatDuration(res.Duration)))
	}
	if res.Err != nil {
		fmt.Fprintf(w, "%s %v\n", styleError.Render("Error:"), res.Err)
	}
	if res.StdoutPath != "" {
		fmt.Fprintf(w, "%s %s\n", styleDim.Render("Stdout:"), res.StdoutPath)
	}
	if res.StderrPath != "" {
		fmt.Fprintf(w, "%s %s\n", styleDim.Render("Stderr:"), res.StderrPath)
	}
}
