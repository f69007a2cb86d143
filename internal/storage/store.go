package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for processed-event marks and
// per-stream block cursors.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup. Parent
// directories are created as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = FULL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS processed_events (
  stream_id     TEXT NOT NULL,
  nonce         INTEGER NOT NULL,
  kind          TEXT NOT NULL,
  dest_tx_hash  TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (stream_id, nonce, kind)
);

CREATE TABLE IF NOT EXISTS block_cursors (
  stream_id   TEXT PRIMARY KEY,
  last_block  INTEGER NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// IsProcessed reports whether a mark exists for (stream, nonce, kind).
func (s *Store) IsProcessed(ctx context.Context, streamID string, nonce uint64, kind string) (bool, error) {
	if streamID == "" || kind == "" {
		return false, errors.New("streamID and kind required")
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM processed_events WHERE stream_id = ? AND nonce = ? AND kind = ?;
`, streamID, nonce, kind).Scan(&one)
	switch err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("check processed: %w", err)
	}
}

// MarkProcessed records that (stream, nonce, kind) has been acted upon.
// Insert-if-absent: a primary-key collision is treated as success, so
// concurrent callers with the same key are safe.
func (s *Store) MarkProcessed(ctx context.Context, streamID string, nonce uint64, kind, destTxHash string) error {
	if streamID == "" || kind == "" {
		return errors.New("streamID and kind required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO processed_events (stream_id, nonce, kind, dest_tx_hash)
VALUES (?, ?, ?, ?)
ON CONFLICT(stream_id, nonce, kind) DO NOTHING;
`, streamID, nonce, kind, destTxHash)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// GetCursor returns the last fully-scanned block for a stream, 0 if absent.
func (s *Store) GetCursor(ctx context.Context, streamID string) (uint64, error) {
	if streamID == "" {
		return 0, errors.New("streamID required")
	}
	var block uint64
	err := s.db.QueryRowContext(ctx, `
SELECT last_block FROM block_cursors WHERE stream_id = ?;
`, streamID).Scan(&block)
	switch err {
	case nil:
		return block, nil
	case sql.ErrNoRows:
		return 0, nil
	default:
		return 0, fmt.Errorf("get cursor: %w", err)
	}
}

// SetCursor upserts the cursor for a stream. The cursor is monotonic: a
// value below the stored one leaves the row unchanged.
func (s *Store) SetCursor(ctx context.Context, streamID string, block uint64) error {
	if streamID == "" {
		return errors.New("streamID required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO block_cursors (stream_id, last_block, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(stream_id) DO UPDATE SET
  last_block=MAX(block_cursors.last_block, excluded.last_block),
  updated_at=CURRENT_TIMESTAMP;
`, streamID, block)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// Cursor is one row of the block_cursors table.
type Cursor struct {
	StreamID  string
	LastBlock uint64
	UpdatedAt string
}

// Cursors returns every stream cursor, ordered by stream id.
func (s *Store) Cursors(ctx context.Context) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stream_id, last_block, updated_at FROM block_cursors ORDER BY stream_id;
`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []Cursor
	for rows.Next() {
		var c Cursor
		if err := rows.Scan(&c.StreamID, &c.LastBlock, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ProcessedCount returns the number of marks recorded for a stream.
func (s *Store) ProcessedCount(ctx context.Context, streamID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM processed_events WHERE stream_id = ?;
`, streamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processed: %w", err)
	}
	return n, nil
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
