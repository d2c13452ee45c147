package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, root string) *Monitor {
	t.Helper()

	cfg := Config{
		Root:                 root,
		DebounceWindow:       50 * time.Millisecond,
		StabilitySampleDelay: 50 * time.Millisecond,
		PollInterval:         10 * time.Millisecond,
	}

	m := New(cfg, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = m.Stop()
	})

	require.NoError(t, m.Start(ctx))

	return m
}

func waitForEvent(t *testing.T, m *Monitor, timeout time.Duration) Event {
	t.Helper()

	select {
	case ev := <-m.Events():
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMonitor_DetectsCreatedFileAfterStabilizing(t *testing.T) {
	root := t.TempDir()
	m := newTestMonitor(t, root)

	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ev := waitForEvent(t, m, 5*time.Second)
	assert.Equal(t, Created, ev.Kind)
	assert.Equal(t, "a.txt", ev.Path)
}

func TestMonitor_DetectsDeleteImmediately(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	m := newTestMonitor(t, root)

	ev := waitForEvent(t, m, 5*time.Second)
	require.Equal(t, Created, ev.Kind)

	require.NoError(t, os.Remove(path))

	ev = waitForEvent(t, m, 5*time.Second)
	assert.Equal(t, Deleted, ev.Kind)
	assert.Equal(t, "a.txt", ev.Path)
}

func TestMonitor_DetectsRenameByContentHash(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("same content"), 0o644))

	m := newTestMonitor(t, root)

	ev := waitForEvent(t, m, 5*time.Second)
	require.Equal(t, Created, ev.Kind)

	newPath := filepath.Join(root, "new.txt")
	require.NoError(t, os.Rename(oldPath, newPath))

	// Drain until we observe the Renamed event; order vs. any transient
	// Deleted event is not guaranteed across platforms.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-m.Events():
			if ev.Kind == Renamed {
				assert.Equal(t, "old.txt", ev.OldPath)
				assert.Equal(t, "new.txt", ev.Path)
				return
			}
		case <-time.After(100 * time.Millisecond):
		}
	}

	t.Fatal("did not observe a Renamed event")
}

func TestMonitor_ExcludesConflictSiblings(t *testing.T) {
	root := t.TempDir()
	m := newTestMonitor(t, root)

	path := filepath.Join(root, "a.txt.conflict.peer1.1700000000")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	select {
	case ev := <-m.Events():
		t.Fatalf("expected no event for conflict sibling, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestMonitor_RecursivelyWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	m := newTestMonitor(t, root)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	path := filepath.Join(sub, "b.txt")
	time.Sleep(50 * time.Millisecond) // allow the new watch to register
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	ev := waitForEvent(t, m, 5*time.Second)
	assert.Equal(t, Created, ev.Kind)
	assert.Equal(t, filepath.Join("sub", "b.txt"), ev.Path)
}
