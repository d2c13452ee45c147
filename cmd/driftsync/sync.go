package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/chunker"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/monitor"
	"github.com/driftsync/driftsync/internal/peerset"
	"github.com/driftsync/driftsync/internal/state"
	"github.com/driftsync/driftsync/internal/transport"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [sync-id]",
		Short: "Synchronize configured folders with known peers",
		Long: `Synchronize one or all configured sync-folders against every currently
known peer that shares them.

By default this is a one-shot run: it connects to each known peer, exchanges
state, transfers what's needed, and exits. Use --watch to run as a daemon
instead, watching the local filesystem and accepting inbound peer connections
until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSync,
	}

	cmd.Flags().Bool("watch", false, "run continuously: watch the filesystem and accept inbound connections")
	cmd.Flags().Bool("confirm-deletes", false, "bypass the big-delete safety gate for this run")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	confirmDeletes, err := cmd.Flags().GetBool("confirm-deletes")
	if err != nil {
		return err
	}

	folders, err := selectFolders(cc.Cfg, args)
	if err != nil {
		return err
	}

	if len(folders) == 0 {
		fmt.Println("No enabled folders to sync.")
		return nil
	}

	rt, err := newRuntime(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer rt.close()

	if watch {
		return runDaemon(cmd.Context(), cc, rt, folders)
	}

	return runOnce(cmd.Context(), cc, rt, folders, confirmDeletes)
}

// selectFolders resolves the folder(s) a sync invocation applies to: either
// the single named sync-id, or every enabled folder when none is given.
func selectFolders(cfg *config.Config, args []string) ([]config.ResolvedFolder, error) {
	if len(args) == 1 {
		f, ok := config.FindFolder(cfg, args[0])
		if !ok {
			return nil, fmt.Errorf("no configured folder with sync-id %q", args[0])
		}

		return []config.ResolvedFolder{config.Resolve(cfg, f)}, nil
	}

	var folders []config.ResolvedFolder

	for _, f := range cfg.Folders {
		if !f.Enabled {
			continue
		}

		folders = append(folders, config.Resolve(cfg, f))
	}

	return folders, nil
}

// runtime is the set of shared, device-wide collaborators every
// sync-folder's sessions draw from: one state database, one block store, one
// peer registry, and the engine that ties them together (spec.md §6: state
// and blocks are shared across every configured folder, not duplicated
// per-folder).
type runtime struct {
	store     *state.Store
	blocks    *chunker.BlockStore
	peers     *peerset.Registry
	connector *engine.DialConnector
	engine    *engine.Engine
	peerID    string
}

func newRuntime(ctx context.Context, cc *CLIContext) (*runtime, error) {
	dataDir := config.DefaultDataDir()

	peerID, err := localPeerID(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving local peer identity: %w", err)
	}

	store, err := state.Open(ctx, config.StateDBPath(dataDir), cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	blocks, err := chunker.NewBlockStore(config.BlockStoreDir(dataDir), cc.Logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening block store: %w", err)
	}

	registry := peerset.New()

	persisted, err := peerset.Load(config.PeersPath(dataDir))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading known peers: %w", err)
	}

	now := time.Now()
	for _, p := range persisted {
		peer := p.ToPeer()
		registry.Register(peer.ID, peer.Address, peer.SyncIDs, now)
	}

	lookup := func(syncID string) (config.ResolvedFolder, bool) {
		f, ok := config.FindFolder(cc.Cfg, syncID)
		if !ok {
			return config.ResolvedFolder{}, false
		}

		return config.Resolve(cc.Cfg, f), true
	}

	connector := engine.NewDialConnector(lookup, cc.Logger)
	eng := engine.New(peerID, store, blocks, registry, connector, cc.Logger)
	connector.AttachEngine(eng)

	return &runtime{store: store, blocks: blocks, peers: registry, connector: connector, engine: eng, peerID: peerID}, nil
}

func (rt *runtime) close() {
	rt.store.Close()
	_ = savePeers(rt.peers.Peers())
}

// savePeers writes the current peer registry snapshot to peers.json. The
// persisted record type is unexported in peerset, so conversion happens one
// peer at a time through FromPeer inside a slice built via append, never by
// naming the type directly.
func savePeers(peers []peerset.Peer) error {
	path := config.PeersPath(config.DefaultDataDir())

	existing, err := peerset.Load(path)
	if err != nil {
		return err
	}

	for _, p := range peers {
		updated := peerset.FromPeer(p)

		found := false
		for i := range existing {
			if existing[i].ID == p.ID {
				existing[i] = updated
				found = true
				break
			}
		}

		if !found {
			existing = append(existing, updated)
		}
	}

	return peerset.Save(path, existing)
}

// runOnce runs one synchronous session per folder against every peer it
// shares, reports the outcome, and returns a non-nil error if any peer
// failed so the process exits non-zero.
func runOnce(ctx context.Context, cc *CLIContext, rt *runtime, folders []config.ResolvedFolder, confirmDeletes bool) error {
	start := time.Now()

	results := make([]folderResult, 0, len(folders))

	for _, folder := range folders {
		if confirmDeletes {
			folder.Safety.BigDeleteMaxCount = 1 << 30
			folder.Safety.BigDeleteMaxPercent = 100
		}

		errs := rt.engine.SyncFolderOnce(ctx, folder)

		results = append(results, folderResult{
			SyncID: folder.SyncID,
			Peers:  len(rt.peers.PeersForSync(folder.SyncID)),
			Errors: errs,
		})
	}

	duration := time.Since(start)

	if cc.Flags.JSON {
		if err := printSyncJSON(results, duration); err != nil {
			return err
		}
	} else {
		printSyncText(cc, results, duration)
	}

	for _, r := range results {
		if len(r.Errors) > 0 {
			return fmt.Errorf("sync completed with errors in %d folder(s)", countFailedFolders(results))
		}
	}

	return nil
}

func countFailedFolders(results []folderResult) int {
	n := 0
	for _, r := range results {
		if len(r.Errors) > 0 {
			n++
		}
	}
	return n
}

type folderResult struct {
	SyncID string
	Peers  int
	Errors []error
}

func printSyncText(cc *CLIContext, results []folderResult, duration time.Duration) {
	if len(results) == 0 {
		cc.Statusf("No folders synced.\n")
		return
	}

	cc.Statusf("Sync complete (%dms)\n", duration.Milliseconds())

	for _, r := range results {
		if r.Peers == 0 {
			cc.Statusf("  %-24s no known peers\n", r.SyncID)
			continue
		}

		if len(r.Errors) == 0 {
			cc.Statusf("  %-24s synced with %d peer(s)\n", r.SyncID, r.Peers)
			continue
		}

		cc.Statusf("  %-24s %d error(s) against %d peer(s)\n", r.SyncID, len(r.Errors), r.Peers)
		for _, e := range r.Errors {
			cc.Statusf("    - %v\n", e)
		}
	}
}

type syncJSONFolder struct {
	SyncID string   `json:"sync_id"`
	Peers  int      `json:"peers"`
	Errors []string `json:"errors,omitempty"`
}

type syncJSONOutput struct {
	DurationMs int64            `json:"duration_ms"`
	Folders    []syncJSONFolder `json:"folders"`
}

func printSyncJSON(results []folderResult, duration time.Duration) error {
	folders := make([]syncJSONFolder, len(results))

	for i, r := range results {
		errs := make([]string, len(r.Errors))
		for j, e := range r.Errors {
			errs[j] = e.Error()
		}

		folders[i] = syncJSONFolder{SyncID: r.SyncID, Peers: r.Peers, Errors: errs}
	}

	out := syncJSONOutput{DurationMs: duration.Milliseconds(), Folders: folders}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// runDaemon runs indefinitely: it accepts inbound peer connections, watches
// every folder's filesystem for local changes, and periodically re-enables
// folders whose pause has expired, until the context is cancelled.
func runDaemon(ctx context.Context, cc *CLIContext, rt *runtime, folders []config.ResolvedFolder) error {
	dataDir := config.DefaultDataDir()

	cleanup, err := writePIDFile(config.PIDFilePath(dataDir))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx = shutdownContext(ctx, cc.Logger)

	lookup := func(syncID string) (config.ResolvedFolder, bool) {
		f, ok := config.FindFolder(cc.Cfg, syncID)
		if !ok {
			return config.ResolvedFolder{}, false
		}

		return config.Resolve(cc.Cfg, f), true
	}

	server := transport.NewServer(cc.Cfg.Network.ListenAddr, cc.Cfg.Network.ListenPath, engine.NewInboundHandler(rt.engine, lookup, cc.Logger), cc.Logger)

	go func() {
		if err := server.ListenAndServe(ctx); err != nil {
			cc.Logger.Error("transport server stopped", slog.String("error", err.Error()))
		}
	}()

	for _, folder := range folders {
		if err := watchFolder(ctx, rt.engine, folder, cc.Logger); err != nil {
			cc.Logger.Error("failed to watch folder", slog.String("sync_id", folder.SyncID), slog.String("error", err.Error()))
		}
	}

	go autoResumeLoop(ctx, cc)

	cc.Statusf("driftsync watching %d folder(s) on %s\n", len(folders), cc.Cfg.Network.ListenAddr)

	<-ctx.Done()

	return nil
}

// watchFolder starts a filesystem monitor for folder and forwards its
// events into the engine's local-state bridge, triggering a session against
// every known peer after each gated change (spec.md §4.6, §4.7).
func watchFolder(ctx context.Context, e *engine.Engine, folder config.ResolvedFolder, logger *slog.Logger) error {
	debounce, err := time.ParseDuration(folder.Sync.DebounceWindow)
	if err != nil {
		debounce = 0
	}

	stability, err := time.ParseDuration(folder.Sync.StabilitySampleDelay)
	if err != nil {
		stability = 0
	}

	mon := monitor.New(monitor.Config{
		Root:                 folder.Path,
		Exclude:              folder.Exclude,
		DebounceWindow:       debounce,
		StabilitySampleDelay: stability,
	}, logger)

	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("watching %s: %w", folder.Path, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-mon.Events():
				if !ok {
					return
				}

				if err := e.ApplyLocalEvent(ctx, folder, ev); err != nil {
					logger.Warn("failed to apply local event", slog.String("sync_id", folder.SyncID), slog.String("path", ev.Path), slog.String("error", err.Error()))
					continue
				}

				e.TriggerLocalChange(ctx, folder)
			}
		}
	}()

	return nil
}

// autoResumeLoop periodically checks for folders whose pause has expired
// and re-enables them, persisting the change so a restart doesn't lose it.
func autoResumeLoop(ctx context.Context, cc *CLIContext) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due := config.DueForAutoResume(cc.Cfg, now)
			if len(due) == 0 {
				continue
			}

			for _, syncID := range due {
				config.ResumeFolder(cc.Cfg, syncID)
				cc.Logger.Info("auto-resumed paused folder", slog.String("sync_id", syncID))
			}

			if err := config.Save(cc.Cfg, cc.Flags.ConfigPath, cc.Logger); err != nil {
				cc.Logger.Warn("failed to persist auto-resume", slog.String("error", err.Error()))
			}
		}
	}
}
