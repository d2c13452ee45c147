package monitor

import (
	"sync"
	"time"
)

// StabilityGate implements the write-stability rule: a newly created or
// modified regular file is not reported until its size has been observed
// unchanged across two successive samples sampleDelay apart.
type StabilityGate struct {
	sampleDelay time.Duration

	mu      sync.Mutex
	pending map[string]pendingSample
}

type pendingSample struct {
	size int64
	at   time.Time
}

// NewStabilityGate returns a gate requiring sampleDelay between the two
// confirming samples.
func NewStabilityGate(sampleDelay time.Duration) *StabilityGate {
	return &StabilityGate{sampleDelay: sampleDelay, pending: make(map[string]pendingSample)}
}

// Sample records an observed size for path at time now and reports
// whether the gate is now satisfied: the same size was previously
// recorded at least sampleDelay ago. A size change resets the gate.
func (g *StabilityGate) Sample(path string, size int64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, ok := g.pending[path]
	if !ok || prev.size != size {
		g.pending[path] = pendingSample{size: size, at: now}
		return false
	}

	if now.Sub(prev.at) >= g.sampleDelay {
		delete(g.pending, path)
		return true
	}

	return false
}

// Forget discards any pending sample for path, used when a path is
// deleted or renamed before stabilizing.
func (g *StabilityGate) Forget(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.pending, path)
}
