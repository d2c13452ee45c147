// Package peerset tracks currently reachable peers and the sync-ids they
// share, and persists known peers across restarts (spec.md §6 peers.json).
// LAN discovery and the transport itself are external collaborators
// (spec.md §1 Non-goals); this package only holds the resulting registry.
package peerset

import (
	"sync"
	"time"
)

// Peer is one reachable device: a stable peer-id, the sync-ids it shares
// with this device, its last-known dial address, and when its identity
// handshake completed.
type Peer struct {
	ID           string
	SyncIDs      []string
	Address      string // opaque to this package; ws://host:port form, owned by the transport collaborator
	RegisteredAt time.Time
}

// sharesSync reports whether p participates in syncID.
func (p Peer) sharesSync(syncID string) bool {
	for _, id := range p.SyncIDs {
		if id == syncID {
			return true
		}
	}

	return false
}

// Registry is a thread-safe set of currently reachable peers. It satisfies
// the engine's consumer-defined peer-set interface.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// Register records peerID as reachable at address, sharing syncIDs, as of
// now. Re-registering an already-known peer refreshes its address,
// sync-id list, and RegisteredAt.
func (r *Registry) Register(peerID, address string, syncIDs []string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[peerID] = Peer{ID: peerID, Address: address, SyncIDs: append([]string(nil), syncIDs...), RegisteredAt: now}
}

// Unregister removes peerID, typically on disconnect.
func (r *Registry) Unregister(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.peers, peerID)
}

// Peers returns a snapshot of all currently reachable peers.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}

	return out
}

// PeersForSync returns the currently reachable peers that share syncID,
// for multi-peer fan-out (spec.md §4.7).
func (r *Registry) PeersForSync(syncID string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p.sharesSync(syncID) {
			out = append(out, p)
		}
	}

	return out
}

// Get returns the registered peer by id.
func (r *Registry) Get(peerID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[peerID]
	return p, ok
}
