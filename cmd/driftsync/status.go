package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/peerset"
	"github.com/driftsync/driftsync/internal/state"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured folders and known peers",
		Long: `Display the status of every configured sync-folder and every peer this
device has seen, read from config.toml and peers.json. Does not contact a
running daemon — stop it first if you need a state mid-session snapshot.`,
		RunE: runStatus,
	}
}

// statusFolder describes one configured sync-folder for display.
type statusFolder struct {
	SyncID      string   `json:"sync_id"`
	Path        string   `json:"path"`
	Mode        string   `json:"mode"`
	State       string   `json:"state"`
	PausedUntil string   `json:"paused_until,omitempty"`
	Stale       []string `json:"stale,omitempty"`
}

// statusPeer describes one known peer for display.
type statusPeer struct {
	ID      string   `json:"id"`
	Address string   `json:"address,omitempty"`
	SyncIDs []string `json:"sync_ids"`
}

type statusOutput struct {
	Folders []statusFolder `json:"folders"`
	Peers   []statusPeer   `json:"peers"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if len(cc.Cfg.Folders) == 0 {
		fmt.Println("No folders configured. Add one with [[folder]] in the config file.")
		return nil
	}

	out := statusOutput{
		Folders: buildStatusFolders(cc.Cfg),
	}

	if err := attachStalePaths(cmd.Context(), cc, out.Folders); err != nil {
		cc.Logger.Warn("status: failed to compute stale paths", "error", err)
	}

	peers, err := loadKnownPeers()
	if err != nil {
		cc.Logger.Warn("status: failed to load known peers", "error", err)
	} else {
		out.Peers = peers
	}

	if cc.Flags.JSON {
		return printStatusJSON(out)
	}

	printStatusText(out)

	return nil
}

func buildStatusFolders(cfg *config.Config) []statusFolder {
	folders := make([]statusFolder, 0, len(cfg.Folders))

	for _, f := range cfg.Folders {
		state := "enabled"
		if !f.Enabled {
			state = "paused"
		}

		folders = append(folders, statusFolder{
			SyncID:      f.SyncID,
			Path:        f.Path,
			Mode:        string(f.Mode),
			State:       state,
			PausedUntil: f.PausedUntil,
		})
	}

	return folders
}

// attachStalePaths fills in Stale on each entry of folders by diffing its
// tracked, non-deleted paths against its current exclude patterns. Best
// effort: a folder that has never synced (no state DB rows yet) simply
// reports no stale paths.
func attachStalePaths(ctx context.Context, cc *CLIContext, folders []statusFolder) error {
	dbPath := config.StateDBPath(config.DefaultDataDir())
	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}

	store, err := state.Open(ctx, dbPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer store.Close()

	byID := make(map[string]config.Folder, len(cc.Cfg.Folders))
	for _, f := range cc.Cfg.Folders {
		byID[f.SyncID] = f
	}

	for i := range folders {
		f, ok := byID[folders[i].SyncID]
		if !ok {
			continue
		}

		stale, err := engine.StalePaths(ctx, store, config.Resolve(cc.Cfg, f))
		if err != nil {
			return err
		}

		folders[i].Stale = stale
	}

	return nil
}

func loadKnownPeers() ([]statusPeer, error) {
	persisted, err := peerset.Load(config.PeersPath(config.DefaultDataDir()))
	if err != nil {
		return nil, err
	}

	peers := make([]statusPeer, 0, len(persisted))
	for _, p := range persisted {
		peer := p.ToPeer()
		peers = append(peers, statusPeer{ID: peer.ID, Address: peer.Address, SyncIDs: peer.SyncIDs})
	}

	return peers, nil
}

func printStatusJSON(out statusOutput) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(out statusOutput) {
	fmt.Printf("Folders (%d):\n", len(out.Folders))

	for _, f := range out.Folders {
		label := f.State
		if f.PausedUntil != "" {
			label = fmt.Sprintf("%s until %s", f.State, f.PausedUntil)
		}

		fmt.Printf("  %-24s %-40s mode=%-14s %s\n", f.SyncID, f.Path, f.Mode, label)

		if len(f.Stale) > 0 {
			fmt.Printf("      stale (excluded but still tracked): %d — run with --json for the full list\n", len(f.Stale))
		}
	}

	fmt.Printf("\nKnown peers (%d):\n", len(out.Peers))

	for _, p := range out.Peers {
		fmt.Printf("  %-40s %-24s %v\n", p.ID, p.Address, p.SyncIDs)
	}
}
