package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/monitor"
)

func testEngineWithStore(t *testing.T) *Engine {
	t.Helper()

	return &Engine{
		localPeerID: "device-a",
		store:       openTestStore(t),
		logger:      testLogger(),
	}
}

func TestApplyLocalEvent_CreateRecordsHashAndIncrementsClock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o644))

	e := testEngineWithStore(t)
	folder := config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a", Path: dir}}

	err := e.ApplyLocalEvent(ctx, folder, monitor.Event{Kind: monitor.Created, Path: "note.txt"})
	require.NoError(t, err)

	fs, ok, err := e.store.Get(ctx, "sync-a", "note.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, fs.Meta)
	require.NotEmpty(t, fs.Meta.ContentHash)
	require.Equal(t, uint64(1), fs.Meta.VectorClock.Get("device-a"))
}

func TestApplyLocalEvent_ModifyIncrementsClockAgain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	e := testEngineWithStore(t)
	folder := config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a", Path: dir}}

	require.NoError(t, e.ApplyLocalEvent(ctx, folder, monitor.Event{Kind: monitor.Created, Path: "note.txt"}))

	require.NoError(t, os.WriteFile(path, []byte("v2, longer content"), 0o644))
	require.NoError(t, e.ApplyLocalEvent(ctx, folder, monitor.Event{Kind: monitor.Modified, Path: "note.txt"}))

	fs, ok, err := e.store.Get(ctx, "sync-a", "note.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), fs.Meta.VectorClock.Get("device-a"))
}

func TestApplyLocalEvent_DeleteRecordsTombstone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	e := testEngineWithStore(t)
	folder := config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a", Path: dir}}

	err := e.ApplyLocalEvent(ctx, folder, monitor.Event{Kind: monitor.Deleted, Path: "gone.txt"})
	require.NoError(t, err)

	fs, ok, err := e.store.Get(ctx, "sync-a", "gone.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, fs.Deletion)
	require.Equal(t, "device-a", fs.Deletion.DeletedBy)
}

func TestApplyLocalEvent_RenameDeletesOldAndCreatesNew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("content"), 0o644))

	e := testEngineWithStore(t)
	folder := config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a", Path: dir}}

	err := e.ApplyLocalEvent(ctx, folder, monitor.Event{Kind: monitor.Renamed, Path: "new.txt", OldPath: "old.txt"})
	require.NoError(t, err)

	oldState, ok, err := e.store.Get(ctx, "sync-a", "old.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, oldState.Deletion)

	newState, ok, err := e.store.Get(ctx, "sync-a", "new.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, newState.Meta)
}

func TestApplyLocalEvent_CreateOfMissingFileRecordsDeletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	e := testEngineWithStore(t)
	folder := config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a", Path: dir}}

	// Created/Modified events can race a fast delete; ApplyLocalEvent must
	// fall back to recording a deletion rather than failing the stat.
	err := e.ApplyLocalEvent(ctx, folder, monitor.Event{Kind: monitor.Modified, Path: "vanished.txt"})
	require.NoError(t, err)

	fs, ok, err := e.store.Get(ctx, "sync-a", "vanished.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, fs.Deletion)
}
