package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
)

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state"))

	h, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, Version, h.Version)
	assert.Empty(t, h.Runs)
	assert.Nil(t, h.Last())
}

func TestStore_Append(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store := NewStore(dir)

	require.NoError(t, store.Append(Run{ID: "a", Status: StatusSucceeded}))
	require.NoError(t, store.Append(Run{ID: "b", Status: StatusFailed, Error: "boom"}))

	h, err := NewStore(dir).Load()
	require.NoError(t, err)
	require.Len(t, h.Runs, 2)
	assert.Equal(t, "a", h.Runs[0].ID)
	assert.Equal(t, "b", h.Last().ID)

	// Verify temp file was cleaned up
	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_EnforcesLimit(t *testing.T) {
	store := NewStore(t.TempDir())

	for i := 0; i < MaxRuns+5; i++ {
		require.NoError(t, store.Append(Run{ID: string(rune('a' + i%26)), Duration: time.Duration(i)}))
	}

	h, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, h.Runs, MaxRuns)
	assert.Equal(t, time.Duration(5), h.Runs[0].Duration, "oldest runs are dropped")
	assert.Equal(t, time.Duration(MaxRuns+4), h.Last().Duration)
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0644))

	_, err := store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse history file")

	assert.Error(t, store.Append(Run{ID: "x"}), "corrupt history is not overwritten")
}

func TestRunFromReport(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	report := &provision.Report{
		RunID:    "3f1c",
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Results: []provision.Result{
			{VMID: 9000, Name: "ubuntu-noble", Outcome: provision.OutcomeSkipped},
			{VMID: 9001, Name: "debian-12", Outcome: provision.OutcomeFailed, Step: provision.StepCommand, Bytes: 42},
		},
		Err: errors.New("template 9001 (debian-12): command failed: exit 1"),
	}

	run := RunFromReport("/srv/templates.yaml", "local-lvm", report)

	assert.Equal(t, "3f1c", run.ID)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 90*time.Second, run.Duration)
	assert.Equal(t, "template 9001 (debian-12): command failed: exit 1", run.Error)
	require.Len(t, run.Templates, 2)
	assert.Equal(t, "skipped", run.Templates[0].Outcome)
	assert.Equal(t, "command", run.Templates[1].Step)
	assert.Equal(t, int64(42), run.Templates[1].Bytes)
}
