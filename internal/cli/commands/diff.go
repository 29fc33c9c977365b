package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/reconcile"
)

// ErrChangesPending is returned by diff when the existing project differs
// from the generated model, so scripted callers get a non-zero exit code.
var ErrChangesPending = errors.New("changes pending")

// NewDiffCommand creates the diff command.
func NewDiffCommand() *cobra.Command {
	var detail bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show changes between the generated model and the existing project",
		Long: `Regenerate the model in memory and compare it against the project on
disk. Every difference is classified by kind (new, update, preserve,
warning) and impact (safe, additive, moderate, destructive).

Exits non-zero when applying would modify any file, so diff can gate CI.`,
		Example: `  # Show the change plan
  tmdlgen diff

  # Include unified diffs for updated objects
  tmdlgen diff --detail`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := RuntimeFrom(cmd)
			if err != nil {
				return err
			}
			eng, err := rt.Engine()
			if err != nil {
				return err
			}

			project, report, err := eng.Build(cmd.Context())
			if err != nil {
				return err
			}
			printNotices(cmd, report)

			existing, err := reconcile.LoadProjectFiles(rt.OutputDir())
			if err != nil {
				return err
			}
			plan, err := reconcile.Diff(project, existing)
			if err != nil {
				return err
			}

			renderPlan(cmd.OutOrStdout(), plan, detail)
			if plan.HasWork() {
				return ErrChangesPending
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&detail, "detail", false, "Show unified diffs for updated objects")
	return cmd
}
