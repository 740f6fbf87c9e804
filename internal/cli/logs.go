package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"videobatch.dev/internal/config"
	"videobatch.dev/internal/logs"
)

func newLogsCmd() *cobra.Command {
	var (
		logsLines  int
		logsFilter string
		logsOffset int
		logsFile   string
		listFiles  bool
		listLimit  int
	)

	cmd := &cobra.Command{
		Use:   "logs [session-id | task-or-job]",
		Short: "Show session logs, or list recent sessions",
		Long: "With a session ID, print that session's message log. With a task or job name, print the\n" +
			"log of its latest session. Without arguments, list recent sessions.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs always read locally (even when a server is running).
			settings, _, err := loadSettings()
			if err != nil {
				return err
			}
			m := logs.NewManager(settings.StateDir)

			if len(args) == 0 {
				return listSessions(cmd, m, listLimit)
			}

			sessionID, err := resolveSession(m, settings, args[0])
			if err != nil {
				return err
			}

			if listFiles {
				files, err := m.Files(sessionID)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			}

			lines, total, err := m.ReadLog(sessionID, logs.ReadOptions{
				Lines:  logsLines,
				Filter: logsFilter,
				Offset: logsOffset,
				File:   logsFile,
			})
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No log output found.")
				return nil
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if logsLines > 0 && total > logsLines+logsOffset {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", styleDim.Render(fmt.Sprintf("(%d of %d lines, use --offset to page back)", len(lines), total)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&logsLines, "lines", 0, "Number of lines to tail (0 = all)")
	cmd.Flags().StringVar(&logsFilter, "filter", "", "Regex pattern to filter lines")
	cmd.Flags().IntVar(&logsOffset, "offset", 0, "Skip last N lines (for paging backwards through history)")
	cmd.Flags().StringVar(&logsFile, "file", "", "File inside the session to read, e.g. a tool's stderr log")
	cmd.Flags().BoolVar(&listFiles, "files", false, "List the files of the session instead of printing a log")
	cmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Number of sessions to list")

	return cmd
}

// resolveSession treats ref as a session ID when such a session exists,
// otherwise as a task or job name whose latest session is used.
func resolveSession(m *logs.Manager, settings *config.Settings, ref string) (string, error) {
	if _, err := m.ReadMetadata(ref); err == nil {
		return ref, nil
	}
	id, err := m.LatestSessionID(ref)
	if err != nil {
		if _, isJob := settings.Jobs[ref]; isJob {
			return "", fmt.Errorf("job '%s' has no sessions yet", ref)
		}
		return "", fmt.Errorf("no session or sessions named '%s'", ref)
	}
	return id, nil
}

func listSessions(cmd *cobra.Command, m *logs.Manager, limit int) error {
	sessions, err := m.ListSessions("", limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No sessions recorded.")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		status := "running"
		if s.Success != nil {
			status = "ok"
			if !*s.Success {
				status = "failed"
			}
		}
		rows = append(rows, []string{s.SessionID, s.StartTime.Format("2006-01-02 15:04:05"), s.Kind, status, s.Name})
	}
	printTable(cmd.OutOrStdout(), []string{"SESSION", "STARTED", "KIND", "STATUS", "NAME"}, rows)
	return nil
}
