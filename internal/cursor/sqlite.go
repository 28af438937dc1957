// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cursor

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/tailscale/sqlite"
)

// SQLiteStore is the embedded [Store] backend.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the embedded database at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	for _, stmt := range []string{`
		CREATE TABLE IF NOT EXISTS sources (
			group_key TEXT NOT NULL,
			url TEXT NOT NULL,
			last_id TEXT NOT NULL DEFAULT '',
			last_time INTEGER NOT NULL DEFAULT 0,
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			error_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			disabled INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (group_key, url)
		);
	`, `
		CREATE TABLE IF NOT EXISTS seen (
			group_key TEXT NOT NULL,
			url TEXT NOT NULL,
			entry_id TEXT NOT NULL,
			first_seen INTEGER NOT NULL,
			PRIMARY KEY (group_key, url, entry_id)
		);
	`, `
		CREATE TABLE IF NOT EXISTS runs (
			group_key TEXT PRIMARY KEY,
			last_run INTEGER NOT NULL
		);
	`} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Source returns the persisted state for a source, or nil if absent.
func (s *SQLiteStore) Source(ctx context.Context, group, url string) (*State, error) {
	var (
		st       State
		lastTime int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT last_id, last_time, etag, last_modified, error_count, last_error, disabled
		FROM sources WHERE group_key = ? AND url = ?;
	`, group, url).Scan(&st.LastID, &lastTime, &st.ETag, &st.LastModified, &st.ErrorCount, &st.LastError, &st.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastTime > 0 {
		st.LastTime = time.Unix(lastTime, 0).UTC()
	}
	return &st, nil
}

// SaveSource upserts the state for a source.
func (s *SQLiteStore) SaveSource(ctx context.Context, group, url string, st *State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (group_key, url, last_id, last_time, etag, last_modified, error_count, last_error, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_key, url) DO UPDATE SET
			last_id = excluded.last_id,
			last_time = excluded.last_time,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			error_count = excluded.error_count,
			last_error = excluded.last_error,
			disabled = excluded.disabled;
	`, group, url, st.LastID, unix(st.LastTime), st.ETag, st.LastModified, st.ErrorCount, st.LastError, st.Disabled)
	return err
}

// Seen returns delivered entry identifiers for a source.
func (s *SQLiteStore) Seen(ctx context.Context, group, url string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, first_seen FROM seen WHERE group_key = ? AND url = ?;
	`, group, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]time.Time)
	for rows.Next() {
		var (
			id        string
			firstSeen int64
		)
		if err := rows.Scan(&id, &firstSeen); err != nil {
			return nil, err
		}
		seen[id] = time.Unix(firstSeen, 0).UTC()
	}
	return seen, rows.Err()
}

// MarkSeen records delivered entry identifiers.
func (s *SQLiteStore) MarkSeen(ctx context.Context, group, url string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO seen (group_key, url, entry_id, first_seen)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (group_key, url, entry_id) DO NOTHING;
		`, group, url, id, at.Unix()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Prune deletes seen-set rows of a group older than cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, group string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM seen WHERE group_key = ? AND first_seen < ?;
	`, group, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LastRun returns the last completed run time of a group.
func (s *SQLiteStore) LastRun(ctx context.Context, group string) (time.Time, error) {
	var lastRun int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_run FROM runs WHERE group_key = ?;
	`, group).Scan(&lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(lastRun, 0).UTC(), nil
}

// SetLastRun records the last completed run time of a group.
func (s *SQLiteStore) SetLastRun(ctx context.Context, group string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (group_key, last_run) VALUES (?, ?)
		ON CONFLICT (group_key) DO UPDATE SET last_run = excluded.last_run;
	`, group, at.Unix())
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

var _ Store = (*SQLiteStore)(nil)
