package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/monitor"
	"github.com/driftsync/driftsync/internal/state"
)

// StalePaths reports every tracked, non-deleted path in folder that the
// folder's current exclude patterns would now skip. A path landing here
// means the exclude list changed (or was tightened) after the path was
// already synced; driftsync never deletes it on account of the new
// pattern, it only flags it for the operator via `driftsync status` so
// they can decide whether to remove it from the folder or relax the
// pattern (spec.md §6, teacher's OneDrive selective-sync StaleRecord
// behavior for skip-pattern changes).
//
// Takes a *state.Store directly rather than hanging off Engine, since
// `driftsync status` computes this from the CLI without a running
// engine.
func StalePaths(ctx context.Context, store *state.Store, folder config.ResolvedFolder) ([]string, error) {
	states, err := store.AllStates(ctx, folder.SyncID)
	if err != nil {
		return nil, fmt.Errorf("loading tracked states for %s: %w", folder.SyncID, err)
	}

	filter := monitor.NewExcludeFilter(folder.Exclude)

	var stale []string
	for path, fs := range states {
		if fs.IsDeleted() {
			continue
		}

		if filter.Excluded(path, strings.HasSuffix(path, "/")) {
			stale = append(stale, path)
		}
	}

	sort.Strings(stale)

	return stale, nil
}
