package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ConflictRecord is one logged conflict-sibling write: a path where the
// decision engine found divergent concurrent edits and wrote the peer's
// version alongside the local one instead of picking a winner (spec.md
// §4.5 Conflict).
type ConflictRecord struct {
	ID           string
	SyncID       string
	Path         string
	ConflictPath string
	PeerID       string
	DetectedAt   time.Time
	Resolved     bool
}

// RecordConflict appends a conflict to the ledger. Conflicts are
// append-only until resolved; a path may accumulate more than one
// unresolved conflict across sessions with different peers.
func (s *Store) RecordConflict(ctx context.Context, c ConflictRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conflicts (id, sync_id, path, conflict_path, peer_id, detected_at_unix_nano, resolved)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		c.ID, c.SyncID, c.Path, c.ConflictPath, c.PeerID, c.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("state: recording conflict: %w", err)
	}

	return nil
}

// ListConflicts returns unresolved conflicts for syncID, oldest first. An
// empty syncID lists across every sync-folder.
func (s *Store) ListConflicts(ctx context.Context, syncID string) ([]ConflictRecord, error) {
	query := `SELECT id, sync_id, path, conflict_path, peer_id, detected_at_unix_nano
	          FROM conflicts WHERE resolved = 0`
	args := []any{}

	if syncID != "" {
		query += " AND sync_id = ?"
		args = append(args, syncID)
	}

	query += " ORDER BY detected_at_unix_nano ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("state: listing conflicts: %w", err)
	}
	defer rows.Close()

	var out []ConflictRecord
	for rows.Next() {
		var c ConflictRecord
		var detectedAtNano int64

		if err := rows.Scan(&c.ID, &c.SyncID, &c.Path, &c.ConflictPath, &c.PeerID, &detectedAtNano); err != nil {
			return nil, fmt.Errorf("state: scanning conflict row: %w", err)
		}

		c.DetectedAt = time.Unix(0, detectedAtNano).UTC()
		out = append(out, c)
	}

	return out, rows.Err()
}

// ResolveConflict marks a conflict resolved by id. Returns false if no
// such conflict exists.
func (s *Store) ResolveConflict(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE conflicts SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("state: resolving conflict %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("state: checking resolve result: %w", err)
	}

	return n > 0, nil
}

// GetConflict fetches a single conflict by id, including resolved ones.
func (s *Store) GetConflict(ctx context.Context, id string) (ConflictRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sync_id, path, conflict_path, peer_id, detected_at_unix_nano, resolved
		 FROM conflicts WHERE id = ?`, id)

	var c ConflictRecord
	var detectedAtNano int64
	var resolved int

	err := row.Scan(&c.ID, &c.SyncID, &c.Path, &c.ConflictPath, &c.PeerID, &detectedAtNano, &resolved)
	if errors.Is(err, sql.ErrNoRows) {
		return ConflictRecord{}, false, nil
	}
	if err != nil {
		return ConflictRecord{}, false, fmt.Errorf("state: fetching conflict %s: %w", id, err)
	}

	c.DetectedAt = time.Unix(0, detectedAtNano).UTC()
	c.Resolved = resolved != 0

	return c, true, nil
}
