// Package protocol defines the peer-to-peer wire messages exchanged during
// a sync session: requests for state and file data, and the responses or
// rejections they provoke (spec.md §4.9).
package protocol

import (
	"encoding/json"
	"time"

	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/vclock"
)

// Kind identifies the shape of a message's Payload.
type Kind string

// Message kinds. Every request kind has exactly one successful response
// kind, except GetFile which may return either FileWhole or FileChunks
// depending on whether the file was chunked (spec.md §4.9).
const (
	KindGetStates     Kind = "get_states"
	KindStates        Kind = "states"
	KindGetMST        Kind = "get_mst"
	KindMSTRoot       Kind = "mst_root"
	KindGetSubtree    Kind = "get_subtree"
	KindSubtreeEntries Kind = "subtree_entries"
	KindGetFile       Kind = "get_file"
	KindFileWhole     Kind = "file_whole"
	KindFileChunks    Kind = "file_chunks"
	KindGetChunk      Kind = "get_chunk"
	KindChunkBytes    Kind = "chunk_bytes"
	KindNotFound      Kind = "not_found"
	KindPutFile       Kind = "put_file"
	KindPutChunk      Kind = "put_chunk"
	KindDelete        Kind = "delete"
	KindAck           Kind = "ack"
	KindReject        Kind = "reject"

	// KindFiles is the legacy stateless request/response pair, superseded
	// by KindGetStates/KindStates but still accepted (spec.md §4.9).
	KindFiles Kind = "files"
)

// Envelope frames a single request or response. ID correlates a response to
// the request that produced it; requests mint a fresh ID, responses echo
// the request's ID.
type Envelope struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GetStatesRequest asks for the full FileState map of a sync-id.
type GetStatesRequest struct {
	SyncID string `json:"sync_id"`
}

// StatesResponse carries the responder's FileState map, including
// tombstones.
type StatesResponse struct {
	SyncID string                      `json:"sync_id"`
	States map[string]WireFileState    `json:"states"`
}

// WireFileState is the wire encoding of state.FileState: a tagged union
// flattened into optional fields, mirroring the StateStore's own
// variant-column persistence.
type WireFileState struct {
	Status         string         `json:"status"`
	ContentHash    string         `json:"content_hash,omitempty"`
	ModTime        *time.Time     `json:"mod_time,omitempty"`
	CreateTime     *time.Time     `json:"create_time,omitempty"`
	IsDirectory    bool           `json:"is_directory,omitempty"`
	VectorClock    *vclock.Clock  `json:"vector_clock,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy      string         `json:"deleted_by,omitempty"`
}

// ToFileState converts the wire representation to a state.FileState.
func (w WireFileState) ToFileState() state.FileState {
	if w.Status == "deleted" {
		return state.Deleted(state.DeletionRecord{
			DeletedAt:   derefTime(w.DeletedAt),
			DeletedBy:   w.DeletedBy,
			VectorClock: w.VectorClock,
		})
	}

	return state.Exists(state.FileMetadata{
		ContentHash: w.ContentHash,
		ModTime:     derefTime(w.ModTime),
		CreateTime:  derefTime(w.CreateTime),
		VectorClock: w.VectorClock,
		IsDirectory: w.IsDirectory,
	})
}

// FromFileState builds the wire representation of fs.
func FromFileState(fs state.FileState) WireFileState {
	if fs.IsDeleted() {
		rec := fs.Deletion
		return WireFileState{
			Status:      "deleted",
			DeletedAt:   &rec.DeletedAt,
			DeletedBy:   rec.DeletedBy,
			VectorClock: rec.VectorClock,
		}
	}

	meta := fs.Meta
	return WireFileState{
		Status:      "exists",
		ContentHash: meta.ContentHash,
		ModTime:     &meta.ModTime,
		CreateTime:  &meta.CreateTime,
		IsDirectory: meta.IsDirectory,
		VectorClock: meta.VectorClock,
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}

// GetMSTRequest asks for the Merkle Search Tree root hash of a sync-id.
type GetMSTRequest struct {
	SyncID string `json:"sync_id"`
}

// MSTRootResponse carries the responder's root hash, or an empty Hash for
// an empty tree.
type MSTRootResponse struct {
	SyncID string `json:"sync_id"`
	Hash   string `json:"hash"`
}

// GetSubtreeRequest asks for entries under a path prefix, for diff
// refinement without a full state transfer.
type GetSubtreeRequest struct {
	SyncID string `json:"sync_id"`
	Prefix string `json:"prefix"`
}

// SubtreeEntriesResponse carries the matching entries.
type SubtreeEntriesResponse struct {
	SyncID  string                   `json:"sync_id"`
	Entries map[string]WireFileState `json:"entries"`
}

// GetFileRequest asks for one file's content and metadata.
type GetFileRequest struct {
	SyncID string `json:"sync_id"`
	Path   string `json:"path"`
}

// FileWholeResponse carries a file transferred in one piece (below the
// chunking threshold).
type FileWholeResponse struct {
	Bytes []byte        `json:"bytes"`
	Meta  WireFileState `json:"meta"`
}

// FileChunksResponse carries a file transferred as a chunk-hash manifest;
// the caller fetches any hashes it does not already hold via GetChunk.
type FileChunksResponse struct {
	ChunkHashes []string      `json:"chunk_hashes"`
	Meta        WireFileState `json:"meta"`
}

// GetChunkRequest asks for one content-addressed chunk's bytes.
type GetChunkRequest struct {
	ChunkHash string `json:"chunk_hash"`
}

// ChunkBytesResponse carries a chunk's bytes.
type ChunkBytesResponse struct {
	Bytes []byte `json:"bytes"`
}

// PutFileRequest pushes a file, whole or as a chunk manifest, to the peer.
type PutFileRequest struct {
	SyncID      string        `json:"sync_id"`
	Path        string        `json:"path"`
	Bytes       []byte        `json:"bytes,omitempty"`
	ChunkHashes []string      `json:"chunk_hashes,omitempty"`
	Meta        WireFileState `json:"meta"`
}

// PutChunkRequest pushes one content-addressed chunk's bytes.
type PutChunkRequest struct {
	ChunkHash string `json:"chunk_hash"`
	Bytes     []byte `json:"bytes"`
}

// DeleteRequest propagates a deletion.
type DeleteRequest struct {
	SyncID    string                `json:"sync_id"`
	Path      string                `json:"path"`
	Deletion  WireFileState         `json:"deletion"`
}

// AckResponse is the generic success response.
type AckResponse struct{}

// RejectResponse is the generic failure response, carrying a human-readable
// reason.
type RejectResponse struct {
	Reason string `json:"reason"`
}

// FilesRequest is the legacy stateless request for a sync-id's files.
type FilesRequest struct {
	SyncID string `json:"sync_id"`
}

// FilesResponse is the legacy stateless response: metadata for live files
// plus a flat list of deleted paths carrying no vector clock.
type FilesResponse struct {
	SyncID       string                          `json:"sync_id"`
	Entries      map[string]FilesEntryMetadata   `json:"entries"`
	DeletedPaths []string                        `json:"deleted_paths"`
}

// FilesEntryMetadata is the legacy (pre-vector-clock) per-file metadata
// shape.
type FilesEntryMetadata struct {
	ContentHash string    `json:"content_hash"`
	ModTime     time.Time `json:"mod_time"`
	IsDirectory bool      `json:"is_directory"`
}
