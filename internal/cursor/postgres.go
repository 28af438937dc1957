// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cursor

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the remote [Store] backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the remote table store at databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sources (
			group_key TEXT NOT NULL,
			url TEXT NOT NULL,
			last_id TEXT NOT NULL DEFAULT '',
			last_time TIMESTAMPTZ,
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			error_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			disabled BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (group_key, url)
		);
		CREATE TABLE IF NOT EXISTS seen (
			group_key TEXT NOT NULL,
			url TEXT NOT NULL,
			entry_id TEXT NOT NULL,
			first_seen TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (group_key, url, entry_id)
		);
		CREATE TABLE IF NOT EXISTS runs (
			group_key TEXT PRIMARY KEY,
			last_run TIMESTAMPTZ NOT NULL
		);
	`); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Source returns the persisted state for a source, or nil if absent.
func (s *PostgresStore) Source(ctx context.Context, group, url string) (*State, error) {
	var (
		st       State
		lastTime *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT last_id, last_time, etag, last_modified, error_count, last_error, disabled
		FROM sources WHERE group_key = $1 AND url = $2;
	`, group, url).Scan(&st.LastID, &lastTime, &st.ETag, &st.LastModified, &st.ErrorCount, &st.LastError, &st.Disabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastTime != nil {
		st.LastTime = lastTime.UTC()
	}
	return &st, nil
}

// SaveSource upserts the state for a source.
func (s *PostgresStore) SaveSource(ctx context.Context, group, url string, st *State) error {
	var lastTime *time.Time
	if !st.LastTime.IsZero() {
		lastTime = &st.LastTime
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (group_key, url, last_id, last_time, etag, last_modified, error_count, last_error, disabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (group_key, url) DO UPDATE SET
			last_id = EXCLUDED.last_id,
			last_time = EXCLUDED.last_time,
			etag = EXCLUDED.etag,
			last_modified = EXCLUDED.last_modified,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			disabled = EXCLUDED.disabled;
	`, group, url, st.LastID, lastTime, st.ETag, st.LastModified, st.ErrorCount, st.LastError, st.Disabled)
	return err
}

// Seen returns delivered entry identifiers for a source.
func (s *PostgresStore) Seen(ctx context.Context, group, url string) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, first_seen FROM seen WHERE group_key = $1 AND url = $2;
	`, group, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]time.Time)
	for rows.Next() {
		var (
			id        string
			firstSeen time.Time
		)
		if err := rows.Scan(&id, &firstSeen); err != nil {
			return nil, err
		}
		seen[id] = firstSeen.UTC()
	}
	return seen, rows.Err()
}

// MarkSeen records delivered entry identifiers.
func (s *PostgresStore) MarkSeen(ctx context.Context, group, url string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`
			INSERT INTO seen (group_key, url, entry_id, first_seen)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (group_key, url, entry_id) DO NOTHING;
		`, group, url, id, at)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// Prune deletes seen-set rows of a group older than cutoff.
func (s *PostgresStore) Prune(ctx context.Context, group string, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM seen WHERE group_key = $1 AND first_seen < $2;
	`, group, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LastRun returns the last completed run time of a group.
func (s *PostgresStore) LastRun(ctx context.Context, group string) (time.Time, error) {
	var lastRun time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_run FROM runs WHERE group_key = $1;
	`, group).Scan(&lastRun)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return lastRun.UTC(), nil
}

// SetLastRun records the last completed run time of a group.
func (s *PostgresStore) SetLastRun(ctx context.Context, group string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (group_key, last_run) VALUES ($1, $2)
		ON CONFLICT (group_key) DO UPDATE SET last_run = EXCLUDED.last_run;
	`, group, at)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
