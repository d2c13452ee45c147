// Package decision implements the pure function mapping a path's local and
// remote FileState to the action the sync engine should take.
package decision

import (
	"time"

	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/vclock"
)

// Action is the outcome of a decision for one path.
type Action int

// Possible Actions (spec.md §4.5).
const (
	Skip Action = iota
	Download
	Upload
	DeleteLocal
	DeleteRemote
	Conflict
	// Uncertain means the caller must fetch the remote state for this
	// path including tombstones and re-decide; see ResolveUncertain.
	Uncertain
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case Download:
		return "download"
	case Upload:
		return "upload"
	case DeleteLocal:
		return "delete_local"
	case DeleteRemote:
		return "delete_remote"
	case Conflict:
		return "conflict"
	case Uncertain:
		return "uncertain"
	default:
		return "unknown"
	}
}

// resurrectionThreshold absorbs filesystem mtime granularity when
// distinguishing a resurrected file from a stale copy of a deleted one.
const resurrectionThreshold = time.Second

// Decide maps local and remote FileState (nil meaning "never observed") to
// an Action. It is pure: no I/O, no mutation, safe to call without
// suspension.
func Decide(local, remote *state.FileState, path string) Action {
	switch {
	case local == nil && remote == nil:
		return Skip
	case local == nil && remote != nil:
		return decideLocalAbsent(*remote)
	case local != nil && remote == nil:
		return decideRemoteAbsent(*local)
	default:
		return decideBothPresent(*local, *remote)
	}
}

func decideLocalAbsent(remote state.FileState) Action {
	if remote.IsDeleted() {
		// A tombstone-only remote with nothing local is already
		// converged; nothing to fetch or delete.
		return Skip
	}

	return Download
}

func decideRemoteAbsent(local state.FileState) Action {
	if local.IsDeleted() {
		return Skip
	}

	// Local exists with no remote record at all: the remote side may
	// simply never have seen this path, or may hold a tombstone that a
	// stateless response omitted. The caller must query explicitly.
	return Uncertain
}

func decideBothPresent(local, remote state.FileState) Action {
	switch {
	case !local.IsDeleted() && !remote.IsDeleted():
		return decideExistsExists(*local.Meta, *remote.Meta)
	case local.IsDeleted() && !remote.IsDeleted():
		return decideDeletedExists(*local.Deletion, *remote.Meta)
	case !local.IsDeleted() && remote.IsDeleted():
		return decideExistsDeleted(*local.Meta, *remote.Deletion)
	default:
		return Skip
	}
}

func decideExistsExists(local, remote state.FileMetadata) Action {
	sameHash := local.ContentHash == remote.ContentHash

	if sameHash {
		return Skip
	}

	if local.VectorClock == nil || remote.VectorClock == nil {
		// One side has no vector clock, so causality cannot be
		// established; a legacy record needs
		// the orchestrator's tombstone-aware follow-up query.
		return Uncertain
	}

	switch vclock.Compare(local.VectorClock, remote.VectorClock) {
	case vclock.Ancestor:
		return Download
	case vclock.Descendant:
		return Upload
	case vclock.Equal:
		// Equal clocks but differing hashes: no causal record
		// distinguishes the two, so this is treated the same as the
		// legacy equal-clock, differing-hash row.
		return Uncertain
	default: // Concurrent
		return Conflict
	}
}

func decideDeletedExists(deletion state.DeletionRecord, remote state.FileMetadata) Action {
	if deletion.VectorClock == nil || remote.VectorClock == nil {
		return resurrectionTieBreak(remote.ModTime, deletion.DeletedAt, Download, DeleteRemote)
	}

	switch vclock.Compare(deletion.VectorClock, remote.VectorClock) {
	case vclock.Descendant:
		return DeleteRemote
	case vclock.Ancestor:
		return Download
	default: // Concurrent or Equal
		return resurrectionTieBreak(remote.ModTime, deletion.DeletedAt, Download, DeleteRemote)
	}
}

func decideExistsDeleted(local state.FileMetadata, deletion state.DeletionRecord) Action {
	if local.VectorClock == nil || deletion.VectorClock == nil {
		return resurrectionTieBreak(local.ModTime, deletion.DeletedAt, Upload, DeleteLocal)
	}

	switch vclock.Compare(local.VectorClock, deletion.VectorClock) {
	case vclock.Descendant:
		return Upload
	case vclock.Ancestor:
		return DeleteLocal
	default: // Concurrent or Equal
		return resurrectionTieBreak(local.ModTime, deletion.DeletedAt, Upload, DeleteLocal)
	}
}

// resurrectionTieBreak distinguishes a file recreated after deletion
// (resurrection: mtime strictly after the deletion plus the threshold)
// from a stale copy of a deleted file (mtime at or before it).
func resurrectionTieBreak(mtime, deletedAt time.Time, onResurrection, onStale Action) Action {
	if mtime.After(deletedAt.Add(resurrectionThreshold)) {
		return onResurrection
	}

	return onStale
}
