package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlify/crawlify/internal/dip"
)

func TestCursorStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewFileCursorStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Load("vorgang")
	require.NoError(t, err)
	assert.False(t, ok, "fresh store must have no state")

	saved := dip.CursorState{
		Cursor:    "abc123",
		LastPage:  7,
		UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save("vorgang", saved))

	got, ok, err := store.Load("vorgang")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved, got)
}

func TestCursorStoreStreamsAreIndependent(t *testing.T) {
	t.Parallel()
	store, err := NewFileCursorStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("vorgang", dip.CursorState{Cursor: "a", LastPage: 1}))
	require.NoError(t, store.Save("drucksache", dip.CursorState{Cursor: "b", LastPage: 2}))

	got, ok, err := store.Load("vorgang")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.Cursor)
}

func TestCursorStoreReset(t *testing.T) {
	t.Parallel()
	store, err := NewFileCursorStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("vorgang", dip.CursorState{Cursor: "a", LastPage: 1}))
	require.NoError(t, store.Reset("vorgang"))

	_, ok, err := store.Load("vorgang")
	require.NoError(t, err)
	assert.False(t, ok)

	// Resetting absent state is not an error.
	require.NoError(t, store.Reset("vorgang"))
}

func TestCursorStoreRejectsBadStreamNames(t *testing.T) {
	t.Parallel()
	store, err := NewFileCursorStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape", "Upper", "white space"} {
		_, _, err := store.Load(name)
		assert.Error(t, err, "stream name %q must be rejected", name)
	}
}
