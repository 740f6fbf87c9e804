package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"videobatch.dev/internal/batch"
	"videobatch.dev/internal/task"
)

// signalContext is cancelled on SIGINT/SIGTERM so running tools are killed
// and the session still gets finished.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	var (
		input     string
		sets      []string
		outputDir string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a single task over one input file",
		Example: `  videobatch run extract-audio-ffmpeg --input clip.mp4 --set output_extension=mp3
  videobatch run probe-media-ffprobe --input clip.mp4 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := task.ParseAssignments(sets)
			if err != nil {
				return err
			}
			if outputDir != "" {
				props[batch.OutputDirProperty] = outputDir
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if globalRemote != "" {
				return remoteCall(ctx, globalRemote, "run_task", map[string]any{
					"task":       args[0],
					"input":      input,
					"properties": props,
				}, cmd.OutOrStdout())
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.registry.Lookup(args[0])
			if err != nil {
				return err
			}
			name := t.Descriptor().Name

			outcome := a.batch.RunInput(ctx, batch.SingleTask(name, input, props), input)

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), outcome); err != nil {
					return err
				}
			} else {
				printPipelineResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), outcome)
			}

			if outcome.Err != nil {
				return outcome.Err
			}
			if !outcome.Success() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Task property as key=value (repeatable)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory for tasks that write files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcome as JSON")

	return cmd
}
