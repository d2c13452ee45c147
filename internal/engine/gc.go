package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftsync/driftsync/internal/config"
)

// gcTombstones purges tombstones that every currently known peer for the
// sync-folder has acknowledged and that have outlived the configured
// retention period, so the state database does not grow unbounded
// (spec.md §4.4 tombstone lifecycle; retention avoids purging a tombstone
// before a slow or offline peer has had a chance to see it).
func (e *Engine) gcTombstones(ctx context.Context, folder config.ResolvedFolder, knownPeerIDs []string) {
	retention := time.Duration(folder.Safety.TombstoneRetentionDays) * 24 * time.Hour
	if retention <= 0 || len(knownPeerIDs) == 0 {
		return
	}

	deleted, err := e.store.DeletedPaths(ctx, folder.SyncID)
	if err != nil {
		e.logger.Warn("gc: failed to list tombstones", slog.String("sync_id", folder.SyncID), slog.String("error", err.Error()))
		return
	}

	cutoff := time.Now().Add(-retention)

	for path := range deleted {
		fs, ok, err := e.store.Get(ctx, folder.SyncID, path)
		if err != nil || !ok || fs.Deletion == nil {
			continue
		}

		if fs.Deletion.DeletedAt.After(cutoff) {
			continue
		}

		acked, err := e.store.AckingPeers(ctx, folder.SyncID, path)
		if err != nil {
			e.logger.Warn("gc: failed to read acks", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		if !allAcked(knownPeerIDs, acked) {
			continue
		}

		if err := e.store.Remove(ctx, folder.SyncID, path); err != nil {
			e.logger.Warn("gc: failed to purge tombstone", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		e.logger.Debug("gc: purged acknowledged tombstone", slog.String("sync_id", folder.SyncID), slog.String("path", path))
	}
}

func allAcked(peerIDs []string, acked map[string]struct{}) bool {
	for _, id := range peerIDs {
		if _, ok := acked[id]; !ok {
			return false
		}
	}

	return true
}
