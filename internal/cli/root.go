// Package cli provides the command-line interface for tmdlgen.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/cli/commands"
	"github.com/modelstack-labs/tmdlgen/internal/config"

	_ "github.com/modelstack-labs/tmdlgen/pkg/dialects/fabric"
	_ "github.com/modelstack-labs/tmdlgen/pkg/dialects/tds"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile      string
		metadataFile string
		verbose      bool
	)

	rootCmd := &cobra.Command{
		Use:   "tmdlgen",
		Short: "tmdlgen - Power BI semantic model generator for Dataverse",
		Long: `tmdlgen generates Power BI semantic models (TMDL) from Dataverse
metadata: star-schema relationships inferred from lookups, partition
queries translated from saved views, and a calendar dimension with
timezone normalization. Regeneration reconciles against the existing
project, preserving customization.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "__complete", "init", "version":
				return nil
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			path := cfgFile
			if path == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				root := config.FindProjectRoot(wd)
				if root == "" {
					return fmt.Errorf("no %s found in %s or any parent (run `tmdlgen init` first)", config.ConfigFileName, wd)
				}
				path = filepath.Join(root, config.ConfigFileName)
			}

			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			if verbose {
				logger.Debug("configuration loaded", slog.String("path", path))
			}

			rt := &commands.Runtime{
				Config:       cfg,
				Logger:       logger,
				ProjectDir:   filepath.Dir(path),
				MetadataPath: metadataFile,
			}
			cmd.SetContext(commands.WithRuntime(cmd.Context(), rt))
			return nil
		},
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tmdlgen.yaml, searched upward)")
	rootCmd.PersistentFlags().StringVarP(&metadataFile, "metadata", "m", "metadata.json", "metadata snapshot file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("output-dir", "", "Override the configured output directory")
	rootCmd.PersistentFlags().String("solution", "", "Override the configured solution unique name")

	rootCmd.AddCommand(commands.NewGenerateCommand())
	rootCmd.AddCommand(commands.NewDiffCommand())
	rootCmd.AddCommand(commands.NewApplyCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
