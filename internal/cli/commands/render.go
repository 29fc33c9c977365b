package commands

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/engine"
	"github.com/modelstack-labs/tmdlgen/internal/reconcile"
)

// printNotices writes build notices to stderr.
func printNotices(cmd *cobra.Command, report *engine.Report) {
	for _, n := range report.Notices {
		target := n.Table
		if n.Attribute != "" {
			target += "." + n.Attribute
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "notice (%s): %s: %s\n", n.Stage, target, n.Message)
	}
}

// renderPlan writes the change plan as a table, followed by per-type counts.
func renderPlan(w io.Writer, plan *reconcile.Plan, showDetail bool) {
	visible := make([]reconcile.Change, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		if c.Type != reconcile.ChangePreserve {
			visible = append(visible, c)
		}
	}
	if len(visible) == 0 {
		if preserved := len(plan.Changes); preserved > 0 {
			fmt.Fprintf(w, "No changes. The project matches the generated model (%d objects preserved).\n", preserved)
		} else {
			fmt.Fprintln(w, "No changes. The project matches the generated model.")
		}
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Change", "Impact", "Object", "Table", "Name", "Description"})
	for _, c := range visible {
		t.AppendRow(table.Row{c.Type, c.Impact, c.Object, c.Table, c.Name, c.Description})
	}
	t.Render()

	counts := plan.Counts()
	fmt.Fprintf(w, "\n%d new, %d updated, %d preserved, %d warnings\n",
		counts[reconcile.ChangeNew], counts[reconcile.ChangeUpdate],
		counts[reconcile.ChangePreserve], counts[reconcile.ChangeWarning])
	if plan.HasDestructive() {
		fmt.Fprintln(w, "Plan contains destructive changes: apply requires --accept-destructive and will back up the project first.")
	}

	if !showDetail {
		return
	}
	for _, c := range plan.Changes {
		if c.Detail == "" {
			continue
		}
		fmt.Fprintf(w, "\n--- %s %s\n%s", c.Object, c.Name, c.Detail)
	}
}
