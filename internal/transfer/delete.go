package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/syncerr"
	"github.com/driftsync/driftsync/internal/vclock"
)

// nowFunc is overridden in tests.
var nowFunc = time.Now

// AtomicDelete removes the local file at fsPath and records its tombstone,
// compensating the StateStore write if the filesystem removal fails so
// that no partial state is observable by other sessions (spec.md §4.8):
// increment this device's VC entry, build the DeletionRecord, persist the
// tombstone, then remove the file; on removal failure, the prior state is
// restored.
func AtomicDelete(ctx context.Context, store *state.Store, syncID, path, fsPath, peerID string, priorClock *vclock.Clock) error {
	prior, existed, err := store.Get(ctx, syncID, path)
	if err != nil {
		return syncerr.Transient("atomic_delete", path, err)
	}

	newClock := priorClock.Increment(peerID)
	rec := state.DeletionRecord{
		DeletedAt:   nowFunc(),
		DeletedBy:   peerID,
		VectorClock: newClock,
	}

	if err := store.SetDeleted(ctx, syncID, path, rec); err != nil {
		return syncerr.Transient("atomic_delete", path, err)
	}

	if err := os.Remove(fsPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		if compErr := compensate(ctx, store, syncID, path, prior, existed); compErr != nil {
			return syncerr.Fatal("atomic_delete", path, fmt.Errorf("remove failed (%w) and compensation failed: %v", err, compErr))
		}

		return syncerr.Transient("atomic_delete", path, err)
	}

	return nil
}

func compensate(ctx context.Context, store *state.Store, syncID, path string, prior state.FileState, existed bool) error {
	if !existed {
		return store.Remove(ctx, syncID, path)
	}

	if prior.IsDeleted() {
		return store.SetDeleted(ctx, syncID, path, *prior.Deletion)
	}

	return store.SetExists(ctx, syncID, path, *prior.Meta)
}
