package engine

import (
	"sync"
	"time"
)

// cooldownTracker suppresses re-sync for a (peer, sync-folder) pair for
// sessionCooldown after a session completes, and suppresses
// local-event-triggered re-sync for a sync-folder for localEventCooldown
// (spec.md §4.7).
type cooldownTracker struct {
	mu              sync.Mutex
	pairUntil       map[string]time.Time // key: peerID+"/"+syncID
	localEventUntil map[string]time.Time // key: syncID
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{
		pairUntil:       make(map[string]time.Time),
		localEventUntil: make(map[string]time.Time),
	}
}

func (c *cooldownTracker) inCooldown(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.pairUntil[key]
	return ok && now.Before(until)
}

func (c *cooldownTracker) startPairCooldown(key string, now time.Time, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pairUntil[key] = now.Add(d)
}

func (c *cooldownTracker) startLocalEventCooldown(syncID string, now time.Time, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.localEventUntil[syncID] = now.Add(d)
}

func (c *cooldownTracker) localEventSuppressed(syncID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.localEventUntil[syncID]
	return ok && now.Before(until)
}
