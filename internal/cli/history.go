package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"videobatch.dev/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		name       string
		failedOnly bool
		limit      int
		pruneDays  int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs, or one run with its messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalRemote != "" {
				if len(args) == 1 {
					return remoteCall(cmd.Context(), globalRemote, "get_run", map[string]any{"run_id": args[0]}, cmd.OutOrStdout())
				}
				return remoteCall(cmd.Context(), globalRemote, "list_runs", map[string]any{
					"name":        name,
					"failed_only": failedOnly,
					"limit":       limit,
				}, cmd.OutOrStdout())
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.history == nil {
				return fmt.Errorf("run history is not available")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if pruneDays > 0 {
				n, err := a.history.Prune(ctx, time.Now().AddDate(0, 0, -pruneDays))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d runs older than %d days.\n", n, pruneDays)
				return nil
			}

			if len(args) == 1 {
				run, err := a.history.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				if asJSON {
					return writeJSON(out, run)
				}
				printRun(out, run)
				return nil
			}

			runs, err := a.history.List(ctx, store.ListOptions{Name: name, FailedOnly: failedOnly, Limit: limit})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				status := "ok"
				if !r.Success {
					status = "failed"
				}
				rows = append(rows, []string{
					shortID(r.ID),
					r.StartedAt.Format("2006-01-02 15:04:05"),
					status,
					formatDuration(r.Duration()),
					r.Name,
					r.Input,
				})
			}
			printTable(out, []string{"RUN", "STARTED", "STATUS", "DURATION", "NAME", "INPUT"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Only runs of this task or job")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only failed runs")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Delete runs older than this many days instead of listing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

func printRun(w io.Writer, r *store.Run) {
	status := styleOK.Render("[OK]")
	if !r.Success {
		status = styleFail.Render("[FAIL]")
	}
	fmt.Fprintf(w, "%s %s  %s\n", status, r.Name, styleDim.Render(formatDuration(r.Duration())))
	fmt.Fprintf(w, "%s %s\n", styleDim.Render("Run:"), r.ID)
	if r.SessionID != "" {
		fmt.Fprintf(w, "%s %s\n", styleDim.Render("Session:"), r.SessionID)
	}
	if r.Input != "" {
		fmt.Fprintf(w, "%s %s\n", styleDim.Render("Input:"), r.Input)
	}
	if r.Output != "" {
		fmt.Fprintf(w, "%s %s\n", styleDim.Render("Output:"), r.Output)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "%s %s\n", styleError.Render("Error:"), r.Error)
	}
	fmt.Fprintln(w)
	for _, msg := range r.Messages {
		fmt.Fprintln(w, msg)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortID abbreviates a uuid for tables
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
