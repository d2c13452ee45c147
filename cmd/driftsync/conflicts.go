package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/state"
)

// conflictIDPrefixLen is the number of characters to show for the conflict ID
// in table output. 8 chars is sufficient for uniqueness in typical use.
const conflictIDPrefixLen = 8

func newConflictsCmd() *cobra.Command {
	var syncID string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List unresolved sync conflicts",
		Long: `Display unresolved sync conflicts from the state database.

Shows conflict-sibling files written because the decision engine found
divergent concurrent edits. Use 'driftsync resolve' to resolve them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConflicts(cmd, syncID)
		},
	}

	cmd.Flags().StringVar(&syncID, "sync-id", "", "limit to one sync-folder (default: all)")

	return cmd
}

// conflictJSON is the JSON-serializable representation of a conflict.
type conflictJSON struct {
	ID           string `json:"id"`
	SyncID       string `json:"sync_id"`
	Path         string `json:"path"`
	ConflictPath string `json:"conflict_path"`
	PeerID       string `json:"peer_id"`
	DetectedAt   string `json:"detected_at"`
}

func runConflicts(cmd *cobra.Command, syncID string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	conflicts, err := listAllConflicts(ctx, syncID, cc.Logger)
	if err != nil {
		return err
	}

	if len(conflicts) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}

	if cc.Flags.JSON {
		return printConflictsJSON(conflicts)
	}

	printConflictsTable(conflicts)

	return nil
}

// listAllConflicts opens the shared state database and collects unresolved
// conflicts, optionally scoped to one sync-id. The database may not exist
// yet if no session has ever run — that is not an error.
func listAllConflicts(ctx context.Context, syncID string, logger *slog.Logger) ([]state.ConflictRecord, error) {
	dbPath := config.StateDBPath(config.DefaultDataDir())
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil
	}

	store, err := state.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	defer store.Close()

	conflicts, err := store.ListConflicts(ctx, syncID)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}

	return conflicts, nil
}

func printConflictsJSON(conflicts []state.ConflictRecord) error {
	items := make([]conflictJSON, len(conflicts))
	for i := range conflicts {
		c := &conflicts[i]
		items[i] = conflictJSON{
			ID:           c.ID,
			SyncID:       c.SyncID,
			Path:         c.Path,
			ConflictPath: c.ConflictPath,
			PeerID:       c.PeerID,
			DetectedAt:   c.DetectedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printConflictsTable(conflicts []state.ConflictRecord) {
	headers := []string{"ID", "SYNC-ID", "PATH", "PEER", "DETECTED"}
	rows := make([][]string, len(conflicts))

	for i := range conflicts {
		c := &conflicts[i]
		rows[i] = []string{truncateID(c.ID), c.SyncID, c.Path, c.PeerID, formatTime(c.DetectedAt)}
	}

	printTable(os.Stdout, headers, rows)
}

// truncateID shortens a conflict ID to conflictIDPrefixLen characters for
// table display, leaving shorter IDs untouched.
func truncateID(id string) string {
	if len(id) > conflictIDPrefixLen {
		return id[:conflictIDPrefixLen]
	}

	return id
}
