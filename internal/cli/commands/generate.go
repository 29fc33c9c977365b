package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/engine"
	"github.com/modelstack-labs/tmdlgen/internal/reconcile"
	"github.com/modelstack-labs/tmdlgen/internal/state"
	"github.com/modelstack-labs/tmdlgen/internal/tmdl"
)

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the semantic model project",
		Long: `Generate the TMDL semantic model from the configured metadata snapshot
and write it to the output directory.

Generation is deterministic: unchanged metadata and configuration produce
byte-identical files. Existing customization (hand-edited measures, custom
columns and tables) is preserved; changes that would lose data are refused
unless applied with --accept-destructive via the apply command.`,
		Example: `  # Generate into the configured output directory
  tmdlgen generate

  # Show what would be generated without writing
  tmdlgen generate --dry-run`,
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

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Would write %d files to %s:\n", len(project.Files), rt.OutputDir())
				for _, path := range project.Paths() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", path)
				}
				return nil
			}

			store, err := rt.OpenHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.CreateRun(rt.Config.Project, "generate", rt.Config.Connection.Mode)
			if err != nil {
				return err
			}

			result, plan, err := reconcile.Apply(cmd.Context(), rt.OutputDir(), project, reconcile.Options{}, rt.Logger)
			if err != nil {
				_ = store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
				if plan != nil && plan.HasDestructive() {
					return fmt.Errorf("%w; review with `tmdlgen diff` and apply with `tmdlgen apply --accept-destructive`", err)
				}
				return err
			}

			if err := recordRun(store, run.ID, project); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s: %d files written\n", rt.OutputDir(), len(result.Written))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the files that would be written without writing them")
	return cmd
}

// recordRun stores the emitted table hashes and completes the run.
func recordRun(store *state.Store, runID string, project *tmdl.Project) error {
	hashes := engine.TableHashes(project)
	records := make([]state.TableRecord, 0, len(hashes))
	for logical, file := range project.TableFiles {
		records = append(records, state.TableRecord{
			LogicalName: logical,
			File:        file,
			ContentHash: hashes[logical],
		})
	}
	if err := store.RecordTables(runID, records); err != nil {
		return err
	}
	return store.CompleteRun(runID, state.RunStatusCompleted, "")
}
