package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/pkg/proto"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	watermark := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	err = store.Save(Checkpoint{
		State:          proto.StateMonitoring,
		FetchWatermark: watermark,
		KnownItemIDs:   []string{"e1", "c1"},
	})
	require.NoError(t, err)

	cp, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, proto.StateMonitoring, cp.State)
	assert.True(t, cp.FetchWatermark.Equal(watermark))
	assert.Equal(t, []string{"e1", "c1"}, cp.KnownItemIDs)
	assert.False(t, cp.SavedAt.IsZero())
}

func TestLoadMissingCheckpointIsFirstRun(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	cp, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, cp.FetchWatermark.IsZero())
}

func TestLoadCorruptCheckpointFails(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte("{not json"), 0644))

	_, _, err = store.Load()
	assert.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Delete())
	require.NoError(t, store.Save(Checkpoint{State: proto.StateIdle}))
	require.NoError(t, store.Delete())

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}
