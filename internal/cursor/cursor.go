// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cursor persists per-source watermarks, seen-entry sets and group
// run metadata.
//
// One [Store] interface, two durable backends: an embedded SQLite database
// and a remote PostgreSQL table store. The backend is picked once at
// startup: presence of a database URL selects Postgres, otherwise state
// lives in a SQLite file under the state directory. Callers are
// backend-agnostic.
//
// A source's watermark must only be advanced after its batch has been
// delivered; the store doesn't enforce that ordering itself, the engine
// does. Each source is an independent row, so concurrent commits for
// different sources need no cross-source locking.
package cursor

import (
	"context"
	"path/filepath"
	"time"
)

// State is the persisted per-source state.
//
// LastID and LastTime form the dedup watermark. The remaining fields are
// fetch bookkeeping: conditional request headers and consecutive-failure
// accounting. A source that keeps failing is flagged Disabled and skipped
// until the flag is cleared.
type State struct {
	LastID       string    `json:"last_id"`
	LastTime     time.Time `json:"last_time"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ErrorCount   int       `json:"error_count,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Disabled     bool      `json:"disabled,omitempty"`
}

// Store is the durable cursor and run-metadata store.
type Store interface {
	// Source returns the persisted state for a source, or nil if the source
	// was never committed.
	Source(ctx context.Context, group, url string) (*State, error)
	// SaveSource upserts the state for a source.
	SaveSource(ctx context.Context, group, url string, st *State) error

	// Seen returns the set of delivered entry identifiers for a source with
	// their first-seen times.
	Seen(ctx context.Context, group, url string) (map[string]time.Time, error)
	// MarkSeen records delivered entry identifiers at the given time.
	MarkSeen(ctx context.Context, group, url string, ids []string, at time.Time) error

	// Prune deletes seen-set rows of a group older than cutoff and returns
	// the number of deleted rows. It never touches watermarks.
	Prune(ctx context.Context, group string, cutoff time.Time) (int64, error)

	// LastRun returns the last completed run time of a group, or the zero
	// time if the group never ran.
	LastRun(ctx context.Context, group string) (time.Time, error)
	// SetLastRun records the last completed run time of a group.
	SetLastRun(ctx context.Context, group string, at time.Time) error

	Close() error
}

// Options configures [Open].
type Options struct {
	// DatabaseURL is a PostgreSQL connection string. If set, the remote
	// backend is used.
	DatabaseURL string
	// StateDir is the directory holding the embedded database. Used only
	// when DatabaseURL is empty.
	StateDir string
}

// Open connects to the store backend selected by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.DatabaseURL != "" {
		return OpenPostgres(ctx, opts.DatabaseURL)
	}
	return OpenSQLite(ctx, filepath.Join(opts.StateDir, "state.db"))
}
