package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"videobatch.dev/internal/batch"
	"videobatch.dev/internal/config"
)

func newBatchCmd() *cobra.Command {
	var (
		inputs      []string
		parallelism int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "batch [job]",
		Short: "Run a configured job over its inputs, or list jobs",
		Example: `  videobatch batch                      # list jobs
  videobatch batch extract-audio
  videobatch batch extract-audio --input 'incoming/*.mov' --parallelism 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalRemote != "" {
				if len(args) == 0 {
					return fmt.Errorf("a job name is required with --remote")
				}
				params := map[string]any{"job": args[0]}
				if len(inputs) > 0 {
					params["inputs"] = inputs
				}
				if parallelism > 0 {
					params["parallelism"] = parallelism
				}
				ctx, stop := signalContext(cmd.Context())
				defer stop()
				return remoteCall(ctx, globalRemote, "run_job", params, cmd.OutOrStdout())
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				listJobs(cmd, a.settings)
				return nil
			}

			name := args[0]
			cfg, ok := a.settings.Jobs[name]
			if !ok || cfg.Disabled {
				return fmt.Errorf("job '%s' not found", name)
			}
			job := batch.FromConfig(name, cfg)
			if len(inputs) > 0 {
				job.Inputs = inputs
			}
			if parallelism > 0 {
				job.Parallelism = parallelism
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			report, err := a.batch.RunJob(ctx, job)
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printReport(cmd.ErrOrStderr(), report)
			}

			if !report.Success() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Input file or glob, replacing the job's inputs (repeatable)")
	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "Inputs processed at once (default: job or global setting)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func listJobs(cmd *cobra.Command, settings *config.Settings) {
	var names []string
	for name, j := range settings.Jobs {
		if !j.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No jobs defined.")
		return
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		j := settings.Jobs[name]
		steps := make([]string, len(j.Steps))
		for i, s := range j.Steps {
			steps[i] = s.Task
		}
		rows = append(rows, []string{name, strings.Join(steps, " > "), j.Description})
	}
	printTable(cmd.OutOrStdout(), []string{"JOB", "STEPS", "DESCRIPTION"}, rows)
}
