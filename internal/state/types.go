// Package state persists per-(syncID, path) FileState in SQLite: a tagged
// union of Exists (a live file's metadata) and Deleted (a tombstone), with
// atomic transitions and tombstone lifecycle tracking.
package state

import (
	"time"

	"github.com/driftsync/driftsync/internal/vclock"
)

// Status discriminates the two FileState variants.
type Status int

// FileState variants (spec.md §3).
const (
	StatusExists Status = iota
	StatusDeleted
)

func (s Status) String() string {
	if s == StatusDeleted {
		return "deleted"
	}

	return "exists"
}

// FileMetadata describes a live file or directory.
type FileMetadata struct {
	ContentHash string // hex SHA-256 of the whole file; empty for directories
	ModTime     time.Time
	CreateTime  time.Time
	VectorClock *vclock.Clock // nil for legacy records predating causal tracking
	IsDirectory bool
}

// DeletionRecord is a tombstone: an active claim that a path no longer
// exists, carrying the causal information needed to resolve races with
// concurrent recreation.
type DeletionRecord struct {
	DeletedAt   time.Time
	DeletedBy   string // peer-id that performed the deletion
	VectorClock *vclock.Clock
}

// FileState is the tagged union persisted per (syncID, path). Exactly one
// of Meta or Deletion is populated, selected by Status.
type FileState struct {
	Status   Status
	Meta     *FileMetadata
	Deletion *DeletionRecord
}

// Exists builds an Exists FileState.
func Exists(meta FileMetadata) FileState {
	return FileState{Status: StatusExists, Meta: &meta}
}

// Deleted builds a Deleted FileState.
func Deleted(rec DeletionRecord) FileState {
	return FileState{Status: StatusDeleted, Deletion: &rec}
}

// IsDeleted reports whether the state is the Deleted variant.
func (f FileState) IsDeleted() bool {
	return f.Status == StatusDeleted
}
