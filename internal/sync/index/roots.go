package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// RecordTick stores the outcome of the latest tick for a root
func (d *DB) RecordTick(ctx context.Context, state RootState) error {
	patterns, err := json.Marshal(state.ExcludePatterns)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO roots (
			root, exclude_patterns, last_tick_at, last_tick_error, directories, uploads, failed
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET
			exclude_patterns=excluded.exclude_patterns,
			last_tick_at=excluded.last_tick_at,
			last_tick_error=excluded.last_tick_error,
			directories=excluded.directories,
			uploads=excluded.uploads,
			failed=excluded.failed
	`, state.Root, string(patterns), formatTime(state.LastTickAt), state.LastTickError,
		state.Directories, state.Uploads, state.Failed)
	return err
}

// GetRoot returns the stored state for root, or ErrNotFound
func (d *DB) GetRoot(ctx context.Context, root string) (*RootState, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT root, exclude_patterns, last_tick_at, last_tick_error, directories, uploads, failed
		FROM roots WHERE root = ?
	`, root)
	state, err := scanRoot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

// ListRoots returns every root the agent has scanned
func (d *DB) ListRoots(ctx context.Context) (roots []RootState, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT root, exclude_patterns, last_tick_at, last_tick_error, directories, uploads, failed
		FROM roots ORDER BY root
	`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		state, err := scanRoot(rows)
		if err != nil {
			return nil, err
		}
		roots = append(roots, state)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roots, nil
}

func scanRoot(scanner interface {
	Scan(dest ...interface{}) error
}) (RootState, error) {
	var state RootState
	var patterns, lastTickAt, lastTickError sql.NullString
	err := scanner.Scan(&state.Root, &patterns, &lastTickAt, &lastTickError, &state.Directories, &state.Uploads, &state.Failed)
	if err != nil {
		return RootState{}, err
	}
	if patterns.Valid && patterns.String != "" {
		_ = json.Unmarshal([]byte(patterns.String), &state.ExcludePatterns)
	}
	if lastTickAt.Valid {
		if state.LastTickAt, err = parseTime(lastTickAt.String); err != nil {
			return RootState{}, err
		}
	}
	state.LastTickError = lastTickError.String
	return state, nil
}
