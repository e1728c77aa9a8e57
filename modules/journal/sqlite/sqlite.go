// Package sqlite persists the operation journal in a local SQLite
// database, so prune and compaction history survives restarts. Only
// journal entries are stored here, never conversation content.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctxkeep/ctxkeep/internal/journal"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Store is a journal.Recorder backed by SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time interface check.
var _ journal.Recorder = (*Store)(nil)

// Open opens (creating if needed) the database at cfg.Path and migrates
// the schema. The database uses a single connection (SQLite serialises
// writes), WAL mode unless disabled, and the configured busy timeout.
func Open(cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
