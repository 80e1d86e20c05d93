package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates the evaluation history table and its index if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evaluation_run (
  id          TEXT PRIMARY KEY,
  config_path TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  branch      TEXT NOT NULL DEFAULT '',
  tag         TEXT NOT NULL DEFAULT '',
  deduped     INTEGER NOT NULL DEFAULT 0,
  job_count   INTEGER NOT NULL DEFAULT 0,
  result      JSON NOT NULL,
  created_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS evaluation_run_created_at_idx ON evaluation_run(created_at);`,
		`CREATE INDEX IF NOT EXISTS evaluation_run_fingerprint_idx ON evaluation_run(fingerprint);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
