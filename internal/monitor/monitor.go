package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"

	"github.com/driftsync/driftsync/internal/chunker"
)

// Config configures a Monitor instance.
type Config struct {
	Root                 string
	Exclude              []string
	DebounceWindow       time.Duration
	StabilitySampleDelay time.Duration
	PollInterval         time.Duration
}

// Monitor watches Config.Root recursively and delivers gated, filtered,
// debounced Events to the channel returned by Start.
type Monitor struct {
	cfg     Config
	exclude *ExcludeFilter
	gate    *StabilityGate
	logger  *slog.Logger

	watcher FsWatcher
	out     chan Event
	debounce *debouncer

	mu            sync.Mutex
	pendingSize   map[string]bool // paths awaiting stability confirmation
	lastKnownHash map[string]string
	recentDeletes map[string]recentDelete
}

type recentDelete struct {
	hash string
	at   time.Time
}

// New constructs a Monitor. Call Start to begin watching.
func New(cfg Config, logger *slog.Logger) *Monitor {
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 2 * time.Second
	}
	if cfg.StabilitySampleDelay == 0 {
		cfg.StabilitySampleDelay = 3 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}

	m := &Monitor{
		cfg:           cfg,
		exclude:       NewExcludeFilter(cfg.Exclude),
		gate:          NewStabilityGate(cfg.StabilitySampleDelay),
		logger:        logger,
		out:           make(chan Event, 256),
		pendingSize:   make(map[string]bool),
		lastKnownHash: make(map[string]string),
		recentDeletes: make(map[string]recentDelete),
	}
	m.debounce = newDebouncer(cfg.DebounceWindow, m.deliverBatch)

	return m
}

// Events returns the channel events are delivered on.
func (m *Monitor) Events() <-chan Event {
	return m.out
}

// Start begins watching the root recursively. Returns once the initial
// watch tree is established; the event loop runs in the background until
// ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	watcher, err := newFsnotifyWatcher()
	if err != nil {
		return fmt.Errorf("monitor: creating watcher: %w", err)
	}
	m.watcher = watcher

	if err := m.addRecursive(m.cfg.Root); err != nil {
		watcher.Close()
		return fmt.Errorf("monitor: watching %s: %w", m.cfg.Root, err)
	}

	go m.loop(ctx)
	go m.pollStability(ctx)

	return nil
}

// Stop cancels any pending debounced batch and closes the underlying
// watcher; the Events channel is left open.
func (m *Monitor) Stop() error {
	m.debounce.Stop()
	if m.watcher != nil {
		return m.watcher.Close()
	}

	return nil
}

func (m *Monitor) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(m.cfg.Root, path)
		if relErr == nil && rel != "." && m.exclude.Excluded(rel, true) {
			return filepath.SkipDir
		}

		return m.watcher.Add(path)
	})
}

func (m *Monitor) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.watcher.Events():
			if !ok {
				return
			}
			m.handleFsEvent(ev)
		case err, ok := <-m.watcher.Errors():
			if !ok {
				return
			}
			m.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// relPath returns path relative to the sync root, NFC-normalized so that
// peers on filesystems with differing Unicode normalization (notably
// macOS's NFD-preserving HFS+/APFS) agree on a path's identity.
func (m *Monitor) relPath(path string) string {
	rel, err := filepath.Rel(m.cfg.Root, path)
	if err != nil {
		rel = path
	}

	return norm.NFC.String(rel)
}

func (m *Monitor) handleFsEvent(ev fsnotify.Event) {
	rel := m.relPath(ev.Name)

	info, statErr := os.Lstat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if m.exclude.Excluded(rel, isDir) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			if err := m.addRecursive(ev.Name); err != nil {
				m.logger.Warn("failed to watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			return
		}

		m.trackForStability(rel)
	case ev.Op&fsnotify.Write != 0:
		if !isDir {
			m.trackForStability(rel)
		}
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		m.handleDelete(rel)
	}
}

func (m *Monitor) trackForStability(rel string) {
	m.mu.Lock()
	m.pendingSize[rel] = true
	m.mu.Unlock()
}

func (m *Monitor) handleDelete(rel string) {
	m.mu.Lock()
	hash := m.lastKnownHash[rel]
	delete(m.lastKnownHash, rel)
	delete(m.pendingSize, rel)
	if hash != "" {
		m.recentDeletes[rel] = recentDelete{hash: hash, at: time.Now()}
	}
	m.mu.Unlock()

	m.gate.Forget(rel)

	m.out <- Event{Kind: Deleted, Path: rel, At: time.Now()}
}

// pollStability periodically samples pending files' sizes and emits
// Created/Modified (or Renamed, if a matching recent delete is found) once
// each stabilizes.
func (m *Monitor) pollStability(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.checkPending(now)
			m.expireRecentDeletes(now)
		}
	}
}

func (m *Monitor) checkPending(now time.Time) {
	m.mu.Lock()
	paths := make([]string, 0, len(m.pendingSize))
	for p := range m.pendingSize {
		paths = append(paths, p)
	}
	m.mu.Unlock()

	for _, rel := range paths {
		full := filepath.Join(m.cfg.Root, rel)

		info, err := os.Stat(full)
		if err != nil {
			// Disappeared before stabilizing; treat as handled elsewhere.
			m.mu.Lock()
			delete(m.pendingSize, rel)
			m.mu.Unlock()
			m.gate.Forget(rel)
			continue
		}

		if !m.gate.Sample(rel, info.Size(), now) {
			continue
		}

		m.mu.Lock()
		delete(m.pendingSize, rel)
		m.mu.Unlock()

		m.onStabilized(rel, full)
	}
}

func (m *Monitor) onStabilized(rel, full string) {
	hash, err := hashFile(full)
	if err != nil {
		m.logger.Warn("failed to hash stabilized file", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	_, wasKnown := m.lastKnownHash[rel]

	m.mu.Lock()
	m.lastKnownHash[rel] = hash
	oldPath, renamed := m.matchRecentDelete(hash)
	m.mu.Unlock()

	if renamed {
		m.out <- Event{Kind: Renamed, OldPath: oldPath, Path: rel, At: time.Now()}
		return
	}

	kind := Created
	if wasKnown {
		kind = Modified
	}

	m.debounce.Add(Event{Kind: kind, Path: rel, At: time.Now()})
}

// matchRecentDelete must be called with m.mu held.
func (m *Monitor) matchRecentDelete(hash string) (string, bool) {
	for path, del := range m.recentDeletes {
		if del.hash == hash {
			delete(m.recentDeletes, path)
			return path, true
		}
	}

	return "", false
}

func (m *Monitor) expireRecentDeletes(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, del := range m.recentDeletes {
		if now.Sub(del.at) > m.cfg.DebounceWindow {
			delete(m.recentDeletes, path)
		}
	}
}

func (m *Monitor) deliverBatch(batch []Event) {
	for _, ev := range batch {
		m.out <- ev
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return chunker.HashReader(f)
}
