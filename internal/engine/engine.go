// Package engine implements the per-(peer, sync-folder) session state
// machine that drives MST exchange, decision batching, and transfer
// execution (spec.md §4.7).
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftsync/driftsync/internal/chunker"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/peerset"
	"github.com/driftsync/driftsync/internal/protocol"
	"github.com/driftsync/driftsync/internal/state"
)

// PeerConnector dials or otherwise obtains a protocol.Client for a
// reachable peer. Defined at this consumer, not the transport package,
// since the engine only needs a correlated request/response channel
// (spec.md §1 Non-goals: the transport itself is an external collaborator).
type PeerConnector interface {
	Connect(ctx context.Context, peer peerset.Peer) (*protocol.Peer, error)
}

// Engine drives sync sessions for every configured folder against every
// registered peer, subject to per-(peer, folder) and per-folder cooldowns.
type Engine struct {
	localPeerID string
	store       *state.Store
	blocks      *chunker.BlockStore
	peers       *peerset.Registry
	connector   PeerConnector
	logger      *slog.Logger

	cooldowns *cooldownTracker

	mu       sync.Mutex
	sessions map[string]struct{} // key: peerID+"/"+syncID, active sessions
}

// New constructs an Engine. localPeerID identifies this device in vector
// clocks and conflict filenames.
func New(localPeerID string, store *state.Store, blocks *chunker.BlockStore, peers *peerset.Registry, connector PeerConnector, logger *slog.Logger) *Engine {
	return &Engine{
		localPeerID: localPeerID,
		store:       store,
		blocks:      blocks,
		peers:       peers,
		connector:   connector,
		logger:      logger,
		cooldowns:   newCooldownTracker(),
		sessions:    make(map[string]struct{}),
	}
}

func sessionKey(peerID, syncID string) string {
	return peerID + "/" + syncID
}

// tryAcquire reports whether a session for (peerID, syncID) may start: no
// session is already running for that pair and it is not in cooldown. On
// success the session is marked active until release is called.
func (e *Engine) tryAcquire(peerID, syncID string, now time.Time) (release func(), ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := sessionKey(peerID, syncID)
	if _, running := e.sessions[key]; running {
		return nil, false
	}

	if e.cooldowns.inCooldown(key, now) {
		return nil, false
	}

	e.sessions[key] = struct{}{}

	return func() {
		e.mu.Lock()
		delete(e.sessions, key)
		e.mu.Unlock()
	}, true
}
