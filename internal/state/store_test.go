package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstack-labs/tmdlgen/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)

	run, err := store.CreateRun("Sales", "generate", "tds")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, store.CompleteRun(run.ID, RunStatusCompleted, ""))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
}

func TestCompleteRunWithError(t *testing.T) {
	store := openTestStore(t)

	run, err := store.CreateRun("Sales", "apply", "fabric")
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(run.ID, RunStatusFailed, "metadata fetch failed"))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "metadata fetch failed", got.Error)
}

func TestCompleteUnknownRun(t *testing.T) {
	store := openTestStore(t)
	err := store.CompleteRun("nope", RunStatusCompleted, "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestGetUnknownRun(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRun("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = store.LatestRun("ghost")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	first, err := store.CreateRun("Sales", "generate", "tds")
	require.NoError(t, err)
	second, err := store.CreateRun("Sales", "apply", "tds")
	require.NoError(t, err)
	_, err = store.CreateRun("Other", "generate", "tds")
	require.NoError(t, err)

	runs, err := store.ListRuns("Sales", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// started_at has second resolution in SQLite, the id breaks ties
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	latest, err := store.LatestRun("Other")
	require.NoError(t, err)
	assert.Equal(t, "generate", latest.Action)
}

func TestRecordTables(t *testing.T) {
	store := openTestStore(t)

	run, err := store.CreateRun("Sales", "generate", "tds")
	require.NoError(t, err)

	records := []TableRecord{
		{LogicalName: "opportunity", File: "definition/tables/Opportunity.tmdl", ContentHash: "aaa"},
		{LogicalName: "account", File: "definition/tables/Account.tmdl", ContentHash: "bbb"},
	}
	require.NoError(t, store.RecordTables(run.ID, records))

	got, err := store.TableRecords(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "account", got[0].LogicalName)
	assert.Equal(t, "opportunity", got[1].LogicalName)

	// re-recording replaces
	records[0].ContentHash = "ccc"
	require.NoError(t, store.RecordTables(run.ID, records[:1]))
	got, err = store.TableRecords(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ccc", got[1].ContentHash)
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	_, err = store.CreateRun("Sales", "generate", "tds")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer reopened.Close()
	runs, err := reopened.ListRuns("Sales", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
