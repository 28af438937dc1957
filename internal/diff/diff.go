// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package diff computes which canonicalized entries are new for a source.
//
// Two modes exist. Watermark mode assumes the feed convention of new items
// appended at the top and stops walking at the last remembered entry.
// Seen-set mode remembers every delivered identifier and makes no ordering
// assumption at all; it's the mode to pick for feeds that reorder or
// backfill. The selection is per group in config.
package diff

import (
	"log/slog"
	"time"

	"github.com/penggan00/rss-sub000/internal/entry"
)

// Cursor is a source's watermark: the identifier and timestamp of the most
// recent entry whose batch was delivered.
type Cursor struct {
	LastID   string
	LastTime time.Time
}

// Engine computes new-entry subsets.
type Engine struct {
	slog *slog.Logger
}

// New returns an [Engine] logging decisions to logger.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{slog: logger}
}

// Watermark returns the entries that are new relative to cur, in encounter
// order, and the advanced cursor.
//
// Entries are walked in feed order. The walk stops at the first entry whose
// identifier matches the cursor exactly; if no identifier matches, it stops
// at the first entry whose timestamp is at or before the cursor's (the
// fallback for feeds without stable identifiers). If neither stop condition
// triggers and a cursor existed, the feed has likely rolled back or changed
// its identifier scheme; this is logged and every entry is treated as new
// rather than silently dropping the source.
//
// The returned cursor equals cur when nothing is new. Its timestamp never
// moves backward.
func (e *Engine) Watermark(source string, cur *Cursor, entries []entry.Entry) ([]entry.Entry, Cursor) {
	if len(entries) == 0 {
		if cur != nil {
			return nil, *cur
		}
		return nil, Cursor{}
	}

	var fresh []entry.Entry
	switch {
	case cur == nil || cur.LastID == "" && cur.LastTime.IsZero():
		fresh = entries
	default:
		stop := stopIndex(cur, entries)
		if stop == -1 {
			e.slog.Warn("no entry matched the cursor, possible feed rollback or identifier scheme change",
				"source", source,
				"last_id", cur.LastID,
				"last_time", cur.LastTime,
			)
			stop = len(entries)
		}
		fresh = entries[:stop]
	}

	if len(fresh) == 0 {
		return nil, *cur
	}

	next := Cursor{LastID: fresh[0].ID, LastTime: fresh[0].Time}
	for _, en := range fresh {
		if en.Time.After(next.LastTime) {
			next.LastTime = en.Time
		}
	}
	if cur != nil && cur.LastTime.After(next.LastTime) {
		next.LastTime = cur.LastTime
	}
	return fresh, next
}

func stopIndex(cur *Cursor, entries []entry.Entry) int {
	for i, en := range entries {
		if en.ID == cur.LastID {
			return i
		}
	}
	if cur.LastTime.IsZero() {
		return -1
	}
	for i, en := range entries {
		if !en.Time.After(cur.LastTime) {
			return i
		}
	}
	return -1
}

// SeenSet returns the entries whose identifiers are absent from seen, in
// encounter order.
func (e *Engine) SeenSet(seen map[string]time.Time, entries []entry.Entry) []entry.Entry {
	var fresh []entry.Entry
	for _, en := range entries {
		if _, ok := seen[en.ID]; ok {
			continue
		}
		fresh = append(fresh, en)
	}
	return fresh
}
