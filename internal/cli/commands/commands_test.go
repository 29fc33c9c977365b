package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstack-labs/tmdlgen/internal/config"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, NewVersionCommand("1.2.3"))
	require.NoError(t, err)
	assert.Contains(t, out, "tmdlgen v1.2.3")
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sales-model")
	out, err := execute(t, NewInitCommand(), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Created")

	content, err := os.ReadFile(filepath.Join(dir, config.ConfigFileName))
	require.NoError(t, err)
	assert.Contains(t, string(content), "project: sales-model")
	assert.Contains(t, string(content), "mode: tds")
}

func TestInitCommandRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, NewInitCommand(), dir)
	require.NoError(t, err)

	_, err = execute(t, NewInitCommand(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, NewInitCommand(), dir, "--force")
	require.NoError(t, err)
}
