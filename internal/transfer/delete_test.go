package transfer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/vclock"
)

func newTestStoreForDelete(t *testing.T) *state.Store {
	t.Helper()

	store, err := state.Open(context.Background(), ":memory:", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestAtomicDelete_RemovesFileAndRecordsTombstone(t *testing.T) {
	ctx := context.Background()
	store := newTestStoreForDelete(t)

	root := t.TempDir()
	fsPath := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(fsPath, []byte("x"), 0o644))

	vc := vclock.New().Increment("peer1")
	require.NoError(t, store.SetExists(ctx, "sync1", "a.txt", state.FileMetadata{
		ContentHash: "h", ModTime: time.Now(), CreateTime: time.Now(), VectorClock: vc,
	}))

	require.NoError(t, AtomicDelete(ctx, store, "sync1", "a.txt", fsPath, "peer1", vc))

	_, err := os.Stat(fsPath)
	assert.True(t, os.IsNotExist(err))

	fs, ok, err := store.Get(ctx, "sync1", "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fs.IsDeleted())
	assert.Equal(t, uint64(2), fs.Deletion.VectorClock.Get("peer1"))
}

func TestAtomicDelete_CompensatesOnFilesystemFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStoreForDelete(t)

	vc := vclock.New().Increment("peer1")
	meta := state.FileMetadata{ContentHash: "h", ModTime: time.Now(), CreateTime: time.Now(), VectorClock: vc}
	require.NoError(t, store.SetExists(ctx, "sync1", "a.txt", meta))

	// A path that cannot exist (parent is not a directory) forces os.Remove
	// to fail with something other than ErrNotExist.
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	badPath := filepath.Join(blocker, "a.txt")

	err := AtomicDelete(ctx, store, "sync1", "a.txt", badPath, "peer1", vc)
	require.Error(t, err)
	var notExist *os.PathError
	assert.False(t, errors.As(err, &notExist) && os.IsNotExist(notExist))

	fs, ok, getErr := store.Get(ctx, "sync1", "a.txt")
	require.NoError(t, getErr)
	require.True(t, ok)
	assert.False(t, fs.IsDeleted())
	assert.Equal(t, "h", fs.Meta.ContentHash)
}

func TestAtomicDelete_MissingFileIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStoreForDelete(t)

	vc := vclock.New().Increment("peer1")
	require.NoError(t, store.SetExists(ctx, "sync1", "a.txt", state.FileMetadata{
		ContentHash: "h", ModTime: time.Now(), CreateTime: time.Now(), VectorClock: vc,
	}))

	root := t.TempDir()
	fsPath := filepath.Join(root, "already-gone.txt")

	require.NoError(t, AtomicDelete(ctx, store, "sync1", "a.txt", fsPath, "peer1", vc))
}
