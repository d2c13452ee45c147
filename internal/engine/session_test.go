package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/peerset"
	"github.com/driftsync/driftsync/internal/protocol"
	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/vclock"
)

func TestNewSession_ParsesBlockThreshold(t *testing.T) {
	t.Parallel()

	e := &Engine{logger: testLogger()}
	folder := config.ResolvedFolder{
		Folder:   config.Folder{SyncID: "sync-a"},
		Transfer: config.TransferConfig{BlockThreshold: "1MiB"},
	}

	s, err := newSession(e, folder, peerset.Peer{ID: "peer-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), s.blockThresholdBytes)
	assert.NotZero(t, s.chunkParams.Avg)
}

func TestNewSession_RejectsUnparsableThreshold(t *testing.T) {
	t.Parallel()

	e := &Engine{logger: testLogger()}
	folder := config.ResolvedFolder{
		Folder:   config.Folder{SyncID: "sync-a"},
		Transfer: config.TransferConfig{BlockThreshold: "not-a-size"},
	}

	_, err := newSession(e, folder, peerset.Peer{ID: "peer-1"}, nil)
	require.Error(t, err)
}

func tombstone(deletedBy string) state.FileState {
	return state.FileState{
		Status: state.StatusDeleted,
		Deletion: &state.DeletionRecord{
			DeletedBy:   deletedBy,
			VectorClock: vclock.New().Increment(deletedBy),
		},
	}
}

func TestRecordConvergedAcks_PeerOmitsTombstonePath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	s := &session{
		engine: &Engine{store: store, logger: testLogger()},
		folder: config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a"}},
		peer:   peerset.Peer{ID: "peer-1"},
	}

	local := map[string]state.FileState{"gone.txt": tombstone("device-a")}
	remote := map[string]protocol.WireFileState{} // peer's exchange never mentioned the path

	s.recordConvergedAcks(ctx, local, remote)

	acked, err := store.AckingPeers(ctx, "sync-a", "gone.txt")
	require.NoError(t, err)
	assert.Contains(t, acked, "peer-1", "omitting a tombstoned path from the peer's states counts as acknowledgment")
}

func TestRecordConvergedAcks_PeerShowsSameTombstone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	s := &session{
		engine: &Engine{store: store, logger: testLogger()},
		folder: config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a"}},
		peer:   peerset.Peer{ID: "peer-1"},
	}

	local := map[string]state.FileState{"gone.txt": tombstone("device-a")}
	remote := map[string]protocol.WireFileState{"gone.txt": protocol.FromFileState(tombstone("peer-1"))}

	s.recordConvergedAcks(ctx, local, remote)

	acked, err := store.AckingPeers(ctx, "sync-a", "gone.txt")
	require.NoError(t, err)
	assert.Contains(t, acked, "peer-1", "a peer independently showing the same path deleted has acknowledged it")
}

func TestRecordConvergedAcks_PeerStillHasFileDoesNotAck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	s := &session{
		engine: &Engine{store: store, logger: testLogger()},
		folder: config.ResolvedFolder{Folder: config.Folder{SyncID: "sync-a"}},
		peer:   peerset.Peer{ID: "peer-1"},
	}

	local := map[string]state.FileState{"gone.txt": tombstone("device-a")}
	remote := map[string]protocol.WireFileState{
		"gone.txt": protocol.FromFileState(state.Exists(state.FileMetadata{ContentHash: "abc"})),
	}

	s.recordConvergedAcks(ctx, local, remote)

	acked, err := store.AckingPeers(ctx, "sync-a", "gone.txt")
	require.NoError(t, err)
	assert.NotContains(t, acked, "peer-1", "a peer still showing the file as existing has not acknowledged the deletion")
}
