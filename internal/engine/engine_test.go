package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquire_BlocksConcurrentSessionForSamePair(t *testing.T) {
	t.Parallel()

	e := &Engine{cooldowns: newCooldownTracker(), sessions: make(map[string]struct{})}
	now := time.Now()

	release, ok := e.tryAcquire("peer-1", "sync-a", now)
	assert.True(t, ok)
	assert.NotNil(t, release)

	_, ok = e.tryAcquire("peer-1", "sync-a", now)
	assert.False(t, ok, "a second acquire for the same pair must be rejected while the first is active")

	release()

	_, ok = e.tryAcquire("peer-1", "sync-a", now)
	assert.True(t, ok, "releasing must free the slot for a subsequent acquire")
}

func TestTryAcquire_DifferentPairsDoNotContend(t *testing.T) {
	t.Parallel()

	e := &Engine{cooldowns: newCooldownTracker(), sessions: make(map[string]struct{})}
	now := time.Now()

	_, ok := e.tryAcquire("peer-1", "sync-a", now)
	assert.True(t, ok)

	_, ok = e.tryAcquire("peer-2", "sync-a", now)
	assert.True(t, ok, "a different peer for the same folder must not be blocked")

	_, ok = e.tryAcquire("peer-1", "sync-b", now)
	assert.True(t, ok, "the same peer for a different folder must not be blocked")
}

func TestTryAcquire_RespectsCooldown(t *testing.T) {
	t.Parallel()

	e := &Engine{cooldowns: newCooldownTracker(), sessions: make(map[string]struct{})}
	now := time.Now()

	e.cooldowns.startPairCooldown(sessionKey("peer-1", "sync-a"), now, time.Minute)

	_, ok := e.tryAcquire("peer-1", "sync-a", now)
	assert.False(t, ok)

	_, ok = e.tryAcquire("peer-1", "sync-a", now.Add(2*time.Minute))
	assert.True(t, ok)
}

func TestSessionKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "peer-1/sync-a", sessionKey("peer-1", "sync-a"))
}
