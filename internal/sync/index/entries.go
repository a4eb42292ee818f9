package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
)

const entryColumns = `path, record_id, name, directory, kind, status, created_at, modified_at, synced_at`

// Has reports whether path has been fully synced
func (d *DB) Has(ctx context.Context, path string) (bool, error) {
	row := d.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE path = ? LIMIT 1`, path)
	var v int
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("index lookup %s: %w", path, err)
	}
	return true, nil
}

// Get returns the entry for path, or ErrNotFound
func (d *DB) Get(ctx context.Context, path string) (*Entry, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE path = ?`, path)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("index get %s: %w", path, err)
	}
	return &entry, nil
}

// Put records record as the sync result for path. An existing entry for
// path is left untouched.
func (d *DB) Put(ctx context.Context, path string, record *types.SyncRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("index put %s: record has no id", path)
	}
	if record.Kind != types.KindFile && record.Kind != types.KindDirectory {
		return fmt.Errorf("index put %s: invalid kind %s", path, record.Kind)
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`, path, record.ID, record.Name, record.Directory, record.Kind.String(), record.Status.String(),
		formatTime(record.CreatedAt), formatTime(record.ModifiedAt), formatTime(d.now()))
	if err != nil {
		return fmt.Errorf("index put %s: %w", path, err)
	}
	return nil
}

// List returns every entry ordered by path
func (d *DB) List(ctx context.Context) (entries []Entry, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of indexed paths
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanEntry(scanner interface {
	Scan(dest ...interface{}) error
}) (Entry, error) {
	var entry Entry
	var kind, status, createdAt, modifiedAt, syncedAt string
	err := scanner.Scan(&entry.Path, &entry.RecordID, &entry.Name, &entry.Directory, &kind, &status,
		&createdAt, &modifiedAt, &syncedAt)
	if err != nil {
		return Entry{}, err
	}
	if entry.Kind, err = types.ParseEntryKind(kind); err != nil {
		return Entry{}, err
	}
	if entry.Status, err = types.ParseRecordStatus(status); err != nil {
		return Entry{}, err
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return Entry{}, err
	}
	if entry.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return Entry{}, err
	}
	if entry.SyncedAt, err = parseTime(syncedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
