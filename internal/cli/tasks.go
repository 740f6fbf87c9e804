package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"videobatch.dev/internal/task"
)

func newTasksCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the registered task types and their properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalRemote != "" {
				return remoteCall(cmd.Context(), globalRemote, "list_tasks", nil, cmd.OutOrStdout())
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			return listTasks(cmd, a.registry, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print task descriptors as JSON")
	return cmd
}

type taskListing struct {
	task.Descriptor
	Properties []task.PropertyDefinition `json:"properties"`
}

func listTasks(cmd *cobra.Command, reg *task.Registry, asJSON bool) error {
	out := cmd.OutOrStdout()

	var listings []taskListing
	for _, desc := range reg.List() {
		t, err := reg.New(desc.ID)
		if err != nil {
			return err
		}
		listings = append(listings, taskListing{Descriptor: desc, Properties: t.PropertyDefinitions()})
	}

	if asJSON {
		return writeJSON(out, listings)
	}

	if len(listings) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No tasks registered.")
		return nil
	}

	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, []string{task.Slug(l.Name), l.Version, l.Description})
	}
	printTable(out, []string{"TASK", "VERSION", "DESCRIPTION"}, rows)

	for _, l := range listings {
		if len(l.Properties) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s %s\n", styleHeader.Render(l.Name), styleDim.Render(l.ID.String()))
		for _, p := range l.Properties {
			var notes []string
			notes = append(notes, string(p.Type))
			if p.Required {
				notes = append(notes, "required")
			}
			if p.Default != nil {
				notes = append(notes, fmt.Sprintf("default %v", p.Default))
			}
			fmt.Fprintf(out, "  %-20s %s  %s\n", p.Name, styleDim.Render("("+strings.Join(notes, ", ")+")"), p.Description)
		}
	}
	return nil
}
