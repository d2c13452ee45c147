package state

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/vclock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := Open(ctx, ":memory:", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func TestStore_GetMissingReturnsNotOk(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, ok, err := store.Get(context.Background(), "sync1", "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SetExistsThenGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	meta := FileMetadata{
		ContentHash: "abc123",
		ModTime:     time.Now().Truncate(time.Second),
		CreateTime:  time.Now().Truncate(time.Second),
		VectorClock: vclock.New().Increment("peerA"),
	}

	require.NoError(t, store.SetExists(ctx, "sync1", "a.txt", meta))

	fs, ok, err := store.Get(ctx, "sync1", "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusExists, fs.Status)
	assert.Equal(t, "abc123", fs.Meta.ContentHash)
	assert.Equal(t, uint64(1), fs.Meta.VectorClock.Get("peerA"))
}

func TestStore_SetDeletedThenIsDeleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	rec := DeletionRecord{
		DeletedAt:   time.Now().Truncate(time.Second),
		DeletedBy:   "peerA",
		VectorClock: vclock.New().Increment("peerA"),
	}

	require.NoError(t, store.SetDeleted(ctx, "sync1", "a.txt", rec))

	deleted, err := store.IsDeleted(ctx, "sync1", "a.txt")
	require.NoError(t, err)
	assert.True(t, deleted)

	fs, ok, err := store.Get(ctx, "sync1", "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusDeleted, fs.Status)
	assert.Equal(t, "peerA", fs.Deletion.DeletedBy)
}

func TestStore_SetExistsThenSetDeletedReplacesAtomically(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SetExists(ctx, "sync1", "a.txt", FileMetadata{ContentHash: "h1"}))
	require.NoError(t, store.SetDeleted(ctx, "sync1", "a.txt", DeletionRecord{DeletedBy: "peerA"}))

	fs, ok, err := store.Get(ctx, "sync1", "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusDeleted, fs.Status)
	assert.Nil(t, fs.Meta)
}

func TestStore_Remove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SetDeleted(ctx, "sync1", "a.txt", DeletionRecord{DeletedBy: "peerA"}))
	require.NoError(t, store.Remove(ctx, "sync1", "a.txt"))

	_, ok, err := store.Get(ctx, "sync1", "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_AllStatesAndDeletedPaths(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SetExists(ctx, "sync1", "a.txt", FileMetadata{ContentHash: "h1"}))
	require.NoError(t, store.SetDeleted(ctx, "sync1", "b.txt", DeletionRecord{DeletedBy: "peerA"}))

	all, err := store.AllStates(ctx, "sync1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deleted, err := store.DeletedPaths(ctx, "sync1")
	require.NoError(t, err)
	assert.Contains(t, deleted, "b.txt")
	assert.NotContains(t, deleted, "a.txt")
}

func TestStore_ReplaceAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SetExists(ctx, "sync1", "stale.txt", FileMetadata{ContentHash: "old"}))

	fresh := map[string]FileState{
		"new.txt": Exists(FileMetadata{ContentHash: "new"}),
	}
	require.NoError(t, store.ReplaceAll(ctx, "sync1", fresh))

	all, err := store.AllStates(ctx, "sync1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "new.txt")
}

func TestStore_IsolatesBySyncID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SetExists(ctx, "sync1", "a.txt", FileMetadata{ContentHash: "h1"}))

	_, ok, err := store.Get(ctx, "sync2", "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_AckTracking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.RecordAck(ctx, "sync1", "a.txt", "peerB"))
	require.NoError(t, store.RecordAck(ctx, "sync1", "a.txt", "peerC"))

	peers, err := store.AckingPeers(ctx, "sync1", "a.txt")
	require.NoError(t, err)
	assert.Len(t, peers, 2)
	assert.Contains(t, peers, "peerB")
	assert.Contains(t, peers, "peerC")
}
