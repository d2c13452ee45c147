package chunker

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BlockStore {
	t.Helper()

	store, err := NewBlockStore(t.TempDir(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	return store
}

func TestBlockStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	data := []byte("hello chunk")
	hash := HashBytes(data)

	require.NoError(t, store.Put(hash, data))

	got, err := store.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBlockStore_GetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Get(HashBytes([]byte("never stored")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockStore_PutIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	data := []byte("repeat me")
	hash := HashBytes(data)

	require.NoError(t, store.Put(hash, data))
	require.NoError(t, store.Put(hash, data))

	got, err := store.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBlockStore_PutRejectsHashMismatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	err := store.Put(HashBytes([]byte("other bytes")), []byte("actual bytes"))
	assert.Error(t, err)
}

func TestBlockStore_PutRejectsDivergentBytesForExistingHash(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewBlockStore(dir, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	data := []byte("original")
	hash := HashBytes(data)
	require.NoError(t, store.Put(hash, data))

	path := filepath.Join(dir, hash[:2], hash[2:])
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	store2, err := NewBlockStore(dir, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	err = store2.Put(hash, data)
	assert.Error(t, err)
}

func TestBlockStore_Exists(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	data := []byte("check me")
	hash := HashBytes(data)

	exists, err := store.Exists(hash)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(hash, data))

	exists, err = store.Exists(hash)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBlockStore_Reader(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	data := []byte("streamed")
	hash := HashBytes(data)
	require.NoError(t, store.Put(hash, data))

	r, err := store.Reader(hash)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
