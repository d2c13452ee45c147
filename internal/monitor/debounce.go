package monitor

import (
	"sync"
	"time"
)

// debouncer collapses multiple events for the same path within window into
// one, delivering the batch once the window has passed without further
// activity on any pending path.
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	flush   func([]Event)
}

func newDebouncer(window time.Duration, flush func([]Event)) *debouncer {
	return &debouncer{window: window, pending: make(map[string]Event), flush: flush}
}

// Add registers ev, collapsing it with any pending event for the same
// path, and (re)arms the flush timer.
func (d *debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[ev.Path] = ev

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.window, d.flushNow)
}

func (d *debouncer) flushNow() {
	d.mu.Lock()
	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	d.pending = make(map[string]Event)
	d.mu.Unlock()

	if len(batch) > 0 {
		d.flush(batch)
	}
}

// Stop cancels any pending flush without delivering it.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
}
