package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/peerset"
)

// TriggerLocalChange starts sessions against every currently registered
// peer sharing folder.SyncID, in parallel, honoring the local-event
// cooldown and per-pair cooldowns (spec.md §4.7 Trigger, Multi-peer
// fan-out).
func (e *Engine) TriggerLocalChange(ctx context.Context, folder config.ResolvedFolder) {
	now := time.Now()

	if e.cooldowns.localEventSuppressed(folder.SyncID, now) {
		e.logger.Debug("local event suppressed by cooldown", slog.String("sync_id", folder.SyncID))
		return
	}

	for _, peer := range e.peers.PeersForSync(folder.SyncID) {
		go e.runSession(ctx, folder, peer)
	}
}

// TriggerPeerConnect starts a session for every folder the newly
// registered peer shares, after a settling delay to let the peer-identity
// handshake complete (spec.md §4.7 Trigger).
func (e *Engine) TriggerPeerConnect(ctx context.Context, folders []config.ResolvedFolder, peer peerset.Peer, startupDelay time.Duration) {
	if startupDelay <= 0 {
		startupDelay = 2500 * time.Millisecond
	}

	go func() {
		select {
		case <-time.After(startupDelay):
		case <-ctx.Done():
			return
		}

		for _, folder := range folders {
			if !sharesSyncID(peer, folder.SyncID) {
				continue
			}

			e.runSession(ctx, folder, peer)
		}
	}()
}

func sharesSyncID(peer peerset.Peer, syncID string) bool {
	for _, id := range peer.SyncIDs {
		if id == syncID {
			return true
		}
	}

	return false
}

// TriggerManual starts a session against every registered peer for
// folder, bypassing the local-event cooldown (user-initiated per spec.md
// §4.7 Trigger). The per-pair cooldown and in-flight gate that runSession
// checks still apply.
func (e *Engine) TriggerManual(ctx context.Context, folder config.ResolvedFolder) {
	for _, peer := range e.peers.PeersForSync(folder.SyncID) {
		go e.runSession(ctx, folder, peer)
	}
}

// runSession acquires the (peer, folder) session slot, connects, runs one
// session, and arms the post-session cooldowns regardless of outcome.
func (e *Engine) runSession(ctx context.Context, folder config.ResolvedFolder, peer peerset.Peer) {
	now := time.Now()

	release, ok := e.tryAcquire(peer.ID, folder.SyncID, now)
	if !ok {
		return
	}
	defer release()

	logger := e.logger.With(slog.String("sync_id", folder.SyncID), slog.String("peer", peer.ID))

	client, err := e.connector.Connect(ctx, peer)
	if err != nil {
		logger.Warn("failed to connect to peer", slog.String("error", err.Error()))
		return
	}
	defer client.Close()

	sess, err := newSession(e, folder, peer, client)
	if err != nil {
		logger.Warn("failed to initialize session", slog.String("error", err.Error()))
		return
	}

	runErr := sess.run(ctx)
	if runErr != nil {
		logger.Warn("session failed", slog.String("error", runErr.Error()))
	} else {
		knownPeerIDs := make([]string, 0, len(e.peers.PeersForSync(folder.SyncID)))
		for _, p := range e.peers.PeersForSync(folder.SyncID) {
			knownPeerIDs = append(knownPeerIDs, p.ID)
		}
		e.gcTombstones(ctx, folder, knownPeerIDs)
	}

	completedAt := time.Now()

	sessionCooldown, parseErr := time.ParseDuration(folder.Sync.SessionCooldown)
	if parseErr != nil {
		sessionCooldown = 30 * time.Second
	}
	e.cooldowns.startPairCooldown(sessionKey(peer.ID, folder.SyncID), completedAt, sessionCooldown)

	// Only a successful session justifies holding off other peers' local-
	// change-triggered resync on this folder; a failed/timed-out session
	// (e.g. peer unreachable) carries no new information worth suppressing
	// on (spec.md §4.7 step 5).
	if runErr == nil {
		localEventCooldown, parseErr := time.ParseDuration(folder.Sync.LocalEventCooldown)
		if parseErr != nil {
			localEventCooldown = 5 * time.Second
		}
		e.cooldowns.startLocalEventCooldown(folder.SyncID, completedAt, localEventCooldown)
	}
}
