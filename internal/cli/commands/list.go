package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/state"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var limit int
	var showTables bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded generation runs",
		Long: `List the recorded generate and apply runs of this project, newest
first, from the run-history database.`,
		Example: `  # Show recent runs
  tmdlgen list

  # Show the table hashes of the latest run
  tmdlgen list --tables`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := RuntimeFrom(cmd)
			if err != nil {
				return err
			}
			store, err := rt.OpenHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			if showTables {
				return listTables(cmd, rt, store)
			}
			return listRuns(cmd, rt, store, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&showTables, "tables", false, "Show the table hashes of the latest run")
	return cmd
}

func listRuns(cmd *cobra.Command, rt *Runtime, store *state.Store, limit int) error {
	runs, err := store.ListRuns(rt.Config.Project, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Action", "Mode", "Status", "Started", "Error"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID[:8], run.Action, run.Mode, run.Status,
			run.StartedAt.Format("2006-01-02 15:04:05"), run.Error,
		})
	}
	t.Render()
	return nil
}

func listTables(cmd *cobra.Command, rt *Runtime, store *state.Store) error {
	run, err := store.LatestRun(rt.Config.Project)
	if err != nil {
		return err
	}
	records, err := store.TableRecords(run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s (%s, %s)\n", run.ID[:8], run.Action, run.StartedAt.Format("2006-01-02 15:04:05"))
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "File", "Hash"})
	for _, r := range records {
		t.AppendRow(table.Row{r.LogicalName, r.File, r.ContentHash[:12]})
	}
	t.Render()
	return nil
}
