package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"videobatch.dev/internal/batch"
	"videobatch.dev/internal/task"
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	styleFail   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleDim    = lipgloss.NewStyle().Faint(true)
	styleHeader = lipgloss.NewStyle().Bold(true)
)

const colGap = 2

// printTable writes rows under bold headers. Column widths come from the
// plain text so styling never shifts the columns.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	last := len(headers) - 1
	for i, h := range headers {
		if i == last {
			fmt.Fprintln(w, styleHeader.Render(h))
			break
		}
		fmt.Fprint(w, styleHeader.Render(h)+strings.Repeat(" ", widths[i]-len(h)+colGap))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i == last || i == len(row)-1 {
				fmt.Fprintln(w, cell)
				break
			}
			fmt.Fprintf(w, "%-*s", widths[i]+colGap, cell)
		}
	}
}

// printPipelineResult prints one input's run. Task messages go to out
// (pipeable), the summary goes to errOut.
func printPipelineResult(out, errOut io.Writer, o batch.Outcome) {
	if o.Err != nil {
		fmt.Fprintf(errOut, "%s %v\n", styleFail.Render("[ERROR]"), o.Err)
		return
	}
	result := o.Result
	for _, msg := range result.Context.Messages() {
		fmt.Fprintln(out, msg)
	}

	fmt.Fprintln(errOut)
	for _, step := range result.Steps {
		printStep(errOut, step)
	}
	if len(result.Steps) > 1 {
		fmt.Fprintln(errOut)
	}

	switch {
	case result.Success:
		fmt.Fprintf(errOut, "%s  %s\n", styleOK.Render("[OK]"), styleDim.Render(formatDuration(result.Duration)))
	default:
		fmt.Fprintf(errOut, "%s  %d/%d steps failed  %s\n",
			styleFail.Render("[FAIL]"),
			result.StepsFailed, result.StepsRun,
			styleDim.Render(formatDuration(result.Duration)))
	}
	if result.Error != "" {
		fmt.Fprintf(errOut, "%s %s\n", styleError.Render("Error:"), result.Error)
	}
	if path := result.Context.OutputFilePath; path != "" {
		fmt.Fprintf(errOut, "%s %s\n", styleDim.Render("Output:"), path)
	}
	if o.SessionID != "" {
		fmt.Fprintf(errOut, "%s %s\n", styleDim.Render("Session:"), o.SessionID)
	}
}

func printStep(w io.Writer, step task.StepResult) {
	switch {
	case step.Skipped:
		fmt.Fprintf(w, "  %s %s\n", styleDim.Render("[SKIP]"), step.TaskName)
	case step.Failed:
		fmt.Fprintf(w, "  %s %s  %s\n", styleFail.Render("[FAIL]"), step.TaskName, styleDim.Render(formatDuration(step.Duration)))
	default:
		fmt.Fprintf(w, "  %s %s  %s\n", styleOK.Render("[OK]"), step.TaskName, styleDim.Render(formatDuration(step.Duration)))
	}
}

// printReport prints a job report: one line per input and a summary
func printReport(w io.Writer, r *batch.Report) {
	for _, o := range r.Outcomes {
		input := o.Input
		if input == "" {
			input = "<no input>"
		}
		switch {
		case o.Skipped:
			fmt.Fprintf(w, "  %s %s\n", styleDim.Render("[SKIP]"), input)
		case o.Success():
			fmt.Fprintf(w, "  %s %s  %s\n", styleOK.Render("[OK]"), input,
				styleDim.Render(o.Result.Context.OutputFilePath))
		default:
			reason := ""
			if o.Err != nil {
				reason = o.Err.Error()
			} else if o.Result != nil {
				reason = o.Result.Error
			}
			fmt.Fprintf(w, "  %s %s  %s\n", styleFail.Render("[FAIL]"), input, reason)
		}
	}

	fmt.Fprintln(w)
	summary := fmt.Sprintf("%d succeeded, %d failed, %d skipped", r.Succeeded, r.Failed, r.Skipped)
	switch {
	case r.Cancelled:
		fmt.Fprintf(w, "%s  %s  %s\n", styleWarn.Render("[CANCELLED]"), summary, styleDim.Render(formatDuration(r.Duration)))
	case r.Success():
		fmt.Fprintf(w, "%s  %s  %s\n", styleOK.Render("[OK]"), summary, styleDim.Render(formatDuration(r.Duration)))
	default:
		fmt.Fprintf(w, "%s  %s  %s\n", styleFail.Render("[FAIL]"), summary, styleDim.Render(formatDuration(r.Duration)))
	}
}

// formatDuration formats a duration for human display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
