package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/driftsync/driftsync/internal/chunker"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/monitor"
	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/vclock"
)

// ApplyLocalEvent folds a gated filesystem event into the state database,
// bumping this device's vector-clock entry, before any session can see it
// (spec.md §4.6 LocalMonitor -> StateStore). A Renamed event is applied as
// a delete of OldPath plus a create of Path, since the state schema has no
// rename primitive — both sides converge on the same (path -> hash)
// binding regardless, just via two transitions instead of one.
func (e *Engine) ApplyLocalEvent(ctx context.Context, folder config.ResolvedFolder, ev monitor.Event) error {
	switch ev.Kind {
	case monitor.Deleted:
		return e.applyLocalDelete(ctx, folder, ev.Path)
	case monitor.Renamed:
		if err := e.applyLocalDelete(ctx, folder, ev.OldPath); err != nil {
			return err
		}
		return e.applyLocalUpsert(ctx, folder, ev.Path)
	default: // Created, Modified
		return e.applyLocalUpsert(ctx, folder, ev.Path)
	}
}

func (e *Engine) applyLocalUpsert(ctx context.Context, folder config.ResolvedFolder, relPath string) error {
	fsPath := filepath.Join(folder.Path, relPath)

	info, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return e.applyLocalDelete(ctx, folder, relPath)
		}
		return fmt.Errorf("stat %s: %w", fsPath, err)
	}

	clock := e.nextClock(ctx, folder.SyncID, relPath)

	meta := state.FileMetadata{
		ModTime:     info.ModTime(),
		VectorClock: clock,
		IsDirectory: info.IsDir(),
	}

	if !info.IsDir() {
		hash, err := hashFile(fsPath)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", fsPath, err)
		}
		meta.ContentHash = hash
	}

	if err := e.store.SetExists(ctx, folder.SyncID, relPath, meta); err != nil {
		return fmt.Errorf("recording local state for %s: %w", relPath, err)
	}

	e.logger.Debug("local event applied", slog.String("sync_id", folder.SyncID), slog.String("path", relPath))

	return nil
}

func (e *Engine) applyLocalDelete(ctx context.Context, folder config.ResolvedFolder, relPath string) error {
	clock := e.nextClock(ctx, folder.SyncID, relPath)

	rec := state.DeletionRecord{
		DeletedAt:   time.Now(),
		DeletedBy:   e.localPeerID,
		VectorClock: clock,
	}

	if err := e.store.SetDeleted(ctx, folder.SyncID, relPath, rec); err != nil {
		return fmt.Errorf("recording local deletion for %s: %w", relPath, err)
	}

	return nil
}

// nextClock loads the existing vector clock for (syncID, path), if any, and
// increments this device's entry. A brand new path starts from an empty
// clock.
func (e *Engine) nextClock(ctx context.Context, syncID, path string) *vclock.Clock {
	base := vclock.New()

	if fs, ok, err := e.store.Get(ctx, syncID, path); err == nil && ok {
		switch {
		case fs.Meta != nil && fs.Meta.VectorClock != nil:
			base = fs.Meta.VectorClock
		case fs.Deletion != nil && fs.Deletion.VectorClock != nil:
			base = fs.Deletion.VectorClock
		}
	}

	return base.Increment(e.localPeerID)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return chunker.HashReader(f)
}
