package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/reconcile"
	"github.com/modelstack-labs/tmdlgen/internal/state"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand() *cobra.Command {
	var acceptDestructive bool
	var removeOrphans bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the generated model into the existing project",
		Long: `Regenerate the model and write it into the output directory, preserving
customization: hand-edited measures win over generated ones, and custom
columns, tables, and relationships are kept.

Destructive changes (storage mode or connection mode switches, orphan
removal) are refused unless --accept-destructive is given; a full backup
of the project directory is taken before any destructive write.`,
		Example: `  # Apply safe and additive changes
  tmdlgen apply

  # Apply everything, including destructive changes (takes a backup)
  tmdlgen apply --accept-destructive

  # Also delete tables that are no longer generated
  tmdlgen apply --accept-destructive --remove-orphans`,
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

			store, err := rt.OpenHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.CreateRun(rt.Config.Project, "apply", rt.Config.Connection.Mode)
			if err != nil {
				return err
			}

			opts := reconcile.Options{
				AcceptDestructive: acceptDestructive,
				RemoveOrphans:     removeOrphans,
			}
			result, plan, err := reconcile.Apply(cmd.Context(), rt.OutputDir(), project, opts, rt.Logger)
			if err != nil {
				_ = store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
				if plan != nil {
					renderPlan(cmd.OutOrStdout(), plan, false)
				}
				return err
			}

			renderPlan(cmd.OutOrStdout(), plan, false)
			if result.BackupDir != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Backup: %s\n", result.BackupDir)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied: %d files written, %d removed\n",
				len(result.Written), len(result.Deleted))

			return recordRun(store, run.ID, project)
		},
	}

	cmd.Flags().BoolVar(&acceptDestructive, "accept-destructive", false, "Apply destructive changes after backing up the project")
	cmd.Flags().BoolVar(&removeOrphans, "remove-orphans", false, "Delete generated tables that are no longer configured")
	return cmd
}
