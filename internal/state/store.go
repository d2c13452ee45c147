package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/driftsync/driftsync/internal/vclock"
)

const walJournalSizeLimit = 64 * 1024 * 1024

// Store persists FileState per (syncID, path) in an embedded SQLite
// database. Thread-safe under concurrent read and write; transitions on
// the same (syncID, path) serialize through SQLite's own locking plus an
// in-process mutex guarding the prepared statements.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.RWMutex

	stmts statements
}

type statements struct {
	get, upsert, remove, isDeleted, all, deletedPaths, deleteAllForSync *sql.Stmt
	recordAck, ackingPeers, clearAcks                                  *sql.Stmt
}

// Open opens (creating and migrating if necessary) the state database at
// dbPath. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening state database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: prepare statements: %w", err)
	}

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("state: set pragma %q: %w", p, err)
		}
	}

	return nil
}

type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func (s *Store) prepareStatements(ctx context.Context) error {
	defs := []stmtDef{
		{&s.stmts.get, sqlGetState, "getState"},
		{&s.stmts.upsert, sqlUpsertState, "upsertState"},
		{&s.stmts.remove, sqlRemoveState, "removeState"},
		{&s.stmts.isDeleted, sqlIsDeleted, "isDeleted"},
		{&s.stmts.all, sqlAllStates, "allStates"},
		{&s.stmts.deletedPaths, sqlDeletedPaths, "deletedPaths"},
		{&s.stmts.deleteAllForSync, sqlDeleteAllForSync, "deleteAllForSync"},
		{&s.stmts.recordAck, sqlRecordAck, "recordAck"},
		{&s.stmts.ackingPeers, sqlAckingPeers, "ackingPeers"},
		{&s.stmts.clearAcks, sqlClearAcks, "clearAcks"},
	}

	for _, d := range defs {
		stmt, err := s.db.PrepareContext(ctx, d.sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", d.name, err)
		}

		*d.dest = stmt
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetExists installs an Exists FileState for (syncID, path), replacing any
// prior state atomically.
func (s *Store) SetExists(ctx context.Context, syncID, path string, meta FileMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vcJSON, err := marshalClock(meta.VectorClock)
	if err != nil {
		return err
	}

	_, err = s.stmts.upsert.ExecContext(ctx,
		syncID, path, "exists",
		meta.ContentHash, meta.ModTime.UnixNano(), meta.CreateTime.UnixNano(), boolToInt(meta.IsDirectory), vcJSON,
		0, "", nil,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("state: setExists %s/%s: %w", syncID, path, err)
	}

	return nil
}

// SetDeleted installs a Deleted FileState (tombstone) for (syncID, path).
func (s *Store) SetDeleted(ctx context.Context, syncID, path string, rec DeletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vcJSON, err := marshalClock(rec.VectorClock)
	if err != nil {
		return err
	}

	_, err = s.stmts.upsert.ExecContext(ctx,
		syncID, path, "deleted",
		"", 0, 0, 0, nil,
		rec.DeletedAt.UnixNano(), rec.DeletedBy, vcJSON,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("state: setDeleted %s/%s: %w", syncID, path, err)
	}

	return nil
}

// Remove deletes the entry for (syncID, path) entirely. Used only during
// tombstone garbage collection, once retention and peer-ack requirements
// are satisfied.
func (s *Store) Remove(ctx context.Context, syncID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.stmts.remove.ExecContext(ctx, syncID, path); err != nil {
		return fmt.Errorf("state: remove %s/%s: %w", syncID, path, err)
	}

	if _, err := s.stmts.clearAcks.ExecContext(ctx, syncID, path); err != nil {
		return fmt.Errorf("state: clearing acks for %s/%s: %w", syncID, path, err)
	}

	return nil
}

// Get returns the FileState for (syncID, path), or ok=false if no entry
// has ever been observed.
func (s *Store) Get(ctx context.Context, syncID, path string) (FileState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.stmts.get.QueryRowContext(ctx, syncID, path)

	fs, _, err := scanFileState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FileState{}, false, nil
	}
	if err != nil {
		return FileState{}, false, fmt.Errorf("state: get %s/%s: %w", syncID, path, err)
	}

	return fs, true, nil
}

// IsDeleted reports whether (syncID, path) currently holds a tombstone.
func (s *Store) IsDeleted(ctx context.Context, syncID, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.stmts.isDeleted.QueryRowContext(ctx, syncID, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: isDeleted %s/%s: %w", syncID, path, err)
	}

	return true, nil
}

// AllStates returns every (path -> FileState) entry for syncID.
func (s *Store) AllStates(ctx context.Context, syncID string) (map[string]FileState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.stmts.all.QueryContext(ctx, syncID)
	if err != nil {
		return nil, fmt.Errorf("state: allStates %s: %w", syncID, err)
	}
	defer rows.Close()

	out := make(map[string]FileState)
	for rows.Next() {
		fs, path, err := scanFileState(rows)
		if err != nil {
			return nil, fmt.Errorf("state: scanning row: %w", err)
		}
		out[path] = fs
	}

	return out, rows.Err()
}

// DeletedPaths returns the set of paths currently tombstoned for syncID.
func (s *Store) DeletedPaths(ctx context.Context, syncID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.stmts.deletedPaths.QueryContext(ctx, syncID)
	if err != nil {
		return nil, fmt.Errorf("state: deletedPaths %s: %w", syncID, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("state: scanning deleted path: %w", err)
		}
		out[path] = struct{}{}
	}

	return out, rows.Err()
}

// ReplaceAll atomically replaces every entry for syncID with states,
// used to install a remote view snapshot after an MST exchange.
func (s *Store) ReplaceAll(ctx context.Context, syncID string, states map[string]FileState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: replaceAll %s: begin tx: %w", syncID, err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.stmts.deleteAllForSync).ExecContext(ctx, syncID); err != nil {
		return fmt.Errorf("state: replaceAll %s: clearing: %w", syncID, err)
	}

	upsert := tx.StmtContext(ctx, s.stmts.upsert)
	now := time.Now().UnixNano()

	for path, fs := range states {
		if err := execUpsert(ctx, upsert, syncID, path, fs, now); err != nil {
			return fmt.Errorf("state: replaceAll %s/%s: %w", syncID, path, err)
		}
	}

	return tx.Commit()
}

func execUpsert(ctx context.Context, stmt *sql.Stmt, syncID, path string, fs FileState, now int64) error {
	switch fs.Status {
	case StatusExists:
		vcJSON, err := marshalClock(fs.Meta.VectorClock)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx,
			syncID, path, "exists",
			fs.Meta.ContentHash, fs.Meta.ModTime.UnixNano(), fs.Meta.CreateTime.UnixNano(), boolToInt(fs.Meta.IsDirectory), vcJSON,
			0, "", nil, now,
		)
		return err
	case StatusDeleted:
		vcJSON, err := marshalClock(fs.Deletion.VectorClock)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx,
			syncID, path, "deleted",
			"", 0, 0, 0, nil,
			fs.Deletion.DeletedAt.UnixNano(), fs.Deletion.DeletedBy, vcJSON, now,
		)
		return err
	default:
		return fmt.Errorf("state: unknown status %v", fs.Status)
	}
}

// RecordAck notes that peerID has acknowledged the tombstone at
// (syncID, path) by omitting it from its own MST in an exchange.
func (s *Store) RecordAck(ctx context.Context, syncID, path, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.stmts.recordAck.ExecContext(ctx, syncID, path, peerID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("state: recordAck %s/%s/%s: %w", syncID, path, peerID, err)
	}

	return nil
}

// AckingPeers returns the set of peer-ids that have acknowledged the
// tombstone at (syncID, path).
func (s *Store) AckingPeers(ctx context.Context, syncID, path string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.stmts.ackingPeers.QueryContext(ctx, syncID, path)
	if err != nil {
		return nil, fmt.Errorf("state: ackingPeers %s/%s: %w", syncID, path, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var peer string
		if err := rows.Scan(&peer); err != nil {
			return nil, fmt.Errorf("state: scanning peer ack: %w", err)
		}
		out[peer] = struct{}{}
	}

	return out, rows.Err()
}

func marshalClock(c *vclock.Clock) (any, error) {
	if c == nil {
		return nil, nil
	}

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("state: marshaling vector clock: %w", err)
	}

	return string(data), nil
}

func unmarshalClock(data *string) (*vclock.Clock, error) {
	if data == nil {
		return nil, nil
	}

	c := &vclock.Clock{}
	if err := json.Unmarshal([]byte(*data), c); err != nil {
		return nil, fmt.Errorf("state: unmarshaling vector clock: %w", err)
	}

	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileState(row rowScanner) (FileState, string, error) {
	var (
		syncID, path, status, contentHash, deletedBy string
		mtimeNano, ctimeNano, deletedAtNano, updatedAtNano int64
		isDirectory                                        int
		vc, deleteVC                                        *string
	)

	err := row.Scan(
		&syncID, &path, &status, &contentHash, &mtimeNano,
		&ctimeNano, &isDirectory, &vc,
		&deletedAtNano, &deletedBy, &deleteVC,
		&updatedAtNano,
	)
	if err != nil {
		return FileState{}, "", err
	}

	switch status {
	case "exists":
		clock, err := unmarshalClock(vc)
		if err != nil {
			return FileState{}, "", err
		}

		return Exists(FileMetadata{
			ContentHash: contentHash,
			ModTime:     time.Unix(0, mtimeNano).UTC(),
			CreateTime:  time.Unix(0, ctimeNano).UTC(),
			VectorClock: clock,
			IsDirectory: isDirectory != 0,
		}), path, nil
	case "deleted":
		clock, err := unmarshalClock(deleteVC)
		if err != nil {
			return FileState{}, "", err
		}

		return Deleted(DeletionRecord{
			DeletedAt:   time.Unix(0, deletedAtNano).UTC(),
			DeletedBy:   deletedBy,
			VectorClock: clock,
		}), path, nil
	default:
		return FileState{}, "", fmt.Errorf("state: unknown status %q for %s/%s", status, syncID, path)
	}
}
