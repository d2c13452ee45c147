package engine

import (
	"context"
	"fmt"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/peerset"
)

// SyncFolderOnce runs one session against every currently registered peer
// for folder and waits for all of them to finish, bypassing cooldown (used
// by the one-shot `driftsync sync` CLI command, which needs a result before
// exiting rather than fire-and-forget fan-out). Returns one error per peer
// that failed to connect or complete a session; a nil slice means every
// peer converged cleanly.
func (e *Engine) SyncFolderOnce(ctx context.Context, folder config.ResolvedFolder) []error {
	peers := e.peers.PeersForSync(folder.SyncID)
	if len(peers) == 0 {
		return nil
	}

	results := make(chan error, len(peers))

	for _, peer := range peers {
		peer := peer
		go func() {
			results <- e.syncOnceAgainst(ctx, folder, peer)
		}()
	}

	var errs []error
	for range peers {
		if err := <-results; err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// syncOnceAgainst connects to peer and runs a single session, skipping the
// cooldown/in-flight gate the background trigger paths use — a one-shot CLI
// invocation has no other session competing for the (peer, folder) slot.
func (e *Engine) syncOnceAgainst(ctx context.Context, folder config.ResolvedFolder, peer peerset.Peer) error {
	client, err := e.connector.Connect(ctx, peer)
	if err != nil {
		return fmt.Errorf("connecting to peer %s: %w", peer.ID, err)
	}
	defer client.Close()

	sess, err := newSession(e, folder, peer, client)
	if err != nil {
		return fmt.Errorf("initializing session with peer %s: %w", peer.ID, err)
	}

	if err := sess.run(ctx); err != nil {
		return fmt.Errorf("session with peer %s: %w", peer.ID, err)
	}

	knownPeerIDs := make([]string, 0)
	for _, p := range e.peers.PeersForSync(folder.SyncID) {
		knownPeerIDs = append(knownPeerIDs, p.ID)
	}
	e.gcTombstones(ctx, folder, knownPeerIDs)

	return nil
}
