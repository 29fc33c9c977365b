package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/config"
)

const configTemplate = `# tmdlgen project configuration
project: %s

# Connection mode: "tds" (Dataverse TDS endpoint) or "fabric" (Fabric link).
connection:
  mode: tds
  server: yourorg.crm.dynamics.com
  database: yourorg

# Unique name of the solution whose tables are modeled.
solution: your_solution

# Selected tables. Exactly one table may have role "fact".
tables:
  opportunity:
    role: fact
    view: Open Opportunities
    form: Information
  account:
    role: dimension

# Generated calendar dimension.
date_table:
  enabled: true
  primary_table: opportunity
  primary_field: createdon
  timezone: UTC
  utc_offset_hours: 0
  start_year: 2023
  end_year: 2026
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new tmdlgen project",
		Long: `Create a tmdlgen.yaml configuration skeleton in the given directory
(default: current directory). Edit the skeleton to point at your
environment and metadata snapshot, then run generate.`,
		Example: `  # Initialize in the current directory
  tmdlgen init

  # Initialize a new project directory
  tmdlgen init sales-model`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			path := filepath.Join(dir, config.ConfigFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			name := filepath.Base(absOr(dir))
			content := fmt.Sprintf(configTemplate, name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Next: edit the configuration, export a metadata snapshot, then run `tmdlgen generate --metadata <snapshot.json>`.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	return cmd
}

func absOr(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}
