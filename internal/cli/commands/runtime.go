// Package commands implements the tmdlgen subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modelstack-labs/tmdlgen/internal/config"
	"github.com/modelstack-labs/tmdlgen/internal/engine"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/internal/state"
)

// Runtime carries the loaded configuration and shared collaborators from
// the root command to subcommands.
type Runtime struct {
	Config *config.ProjectConfig
	Logger *slog.Logger

	// ProjectDir is the directory containing the config file; relative
	// paths in the configuration resolve against it.
	ProjectDir string
	// MetadataPath is the metadata snapshot file the build reads from.
	MetadataPath string
}

type runtimeKey struct{}

// WithRuntime stores the runtime in a command context.
func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFrom extracts the runtime set up by the root command.
func RuntimeFrom(cmd *cobra.Command) (*Runtime, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*Runtime)
	if !ok || rt == nil {
		return nil, fmt.Errorf("no project configuration loaded (missing %s?)", config.ConfigFileName)
	}
	return rt, nil
}

// OutputDir resolves the project output directory.
func (rt *Runtime) OutputDir() string {
	out := rt.Config.OutputDir
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(rt.ProjectDir, out)
}

// Engine builds the generation engine over the metadata snapshot.
func (rt *Runtime) Engine() (*engine.Engine, error) {
	if rt.MetadataPath == "" {
		return nil, fmt.Errorf("no metadata snapshot configured (use --metadata)")
	}
	src, err := metadata.OpenFileSource(rt.metadataPath())
	if err != nil {
		return nil, err
	}
	return engine.New(rt.Config, src, rt.Logger), nil
}

// OpenHistory opens the run-history store. The caller closes it.
func (rt *Runtime) OpenHistory() (*state.Store, error) {
	path := rt.Config.HistoryDB
	if path != ":memory:" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(rt.ProjectDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	return state.Open(path, rt.Logger)
}

func (rt *Runtime) metadataPath() string {
	if filepath.IsAbs(rt.MetadataPath) {
		return rt.MetadataPath
	}
	return filepath.Join(rt.ProjectDir, rt.MetadataPath)
}
