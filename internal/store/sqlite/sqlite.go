// Package sqlite opens the embedded database used for development, tests
// and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/willtech3/powertoken/internal/store/sqlstore"
)

// Open opens (or creates) a SQLite database at path with WAL journaling and
// foreign keys enforced. Timestamps are written in SQLite's text format so
// range comparisons on them stay lexical.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between the loop and the CLI.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New wraps db as a store speaking the SQLite dialect.
func New(db *sql.DB) *sqlstore.Store { return sqlstore.New(db, sqlstore.SQLite) }

// OpenAndMigrate opens path and creates the schema.
func OpenAndMigrate(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}
