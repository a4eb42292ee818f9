package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the local index. It is safe for concurrent use.
type DB struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; WAL keeps readers from blocking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db, path: path, now: time.Now}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate index %s: %w", path, err)
	}

	return instance, nil
}

// Path returns the file backing the index
func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	path TEXT PRIMARY KEY,
	record_id TEXT NOT NULL,
	name TEXT NOT NULL,
	directory TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL,
	synced_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_record_id ON entries(record_id);

CREATE TABLE IF NOT EXISTS roots (
	root TEXT PRIMARY KEY,
	exclude_patterns TEXT,
	last_tick_at TEXT,
	last_tick_error TEXT,
	directories INTEGER NOT NULL DEFAULT 0,
	uploads INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);
`
