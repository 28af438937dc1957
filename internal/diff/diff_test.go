// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package diff

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/penggan00/rss-sub000/internal/config"
	"github.com/penggan00/rss-sub000/internal/entry"
	"github.com/penggan00/rss-sub000/internal/testutil"
)

// feed builds entries in feed order, newest first, one hour apart.
func feed(ids ...string) []entry.Entry {
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	entries := make([]entry.Entry, len(ids))
	for i, id := range ids {
		entries[i] = entry.Entry{
			ID:    id,
			Time:  base.Add(-time.Duration(i) * time.Hour),
			Title: "post " + id,
			Link:  "https://example.com/" + id,
		}
	}
	return entries
}

func ids(entries []entry.Entry) []string {
	out := make([]string, len(entries))
	for i, en := range entries {
		out[i] = en.ID
	}
	return out
}

func TestWatermarkFirstPoll(t *testing.T) {
	t.Parallel()

	e := New(slog.Default())
	entries := feed("e5", "e4", "e3", "e2", "e1")

	fresh, next := e.Watermark("https://example.com/rss", nil, entries)

	testutil.AssertEqual(t, ids(fresh), []string{"e5", "e4", "e3", "e2", "e1"})
	testutil.AssertEqual(t, next.LastID, "e5")
	testutil.AssertEqual(t, next.LastTime, entries[0].Time)
}

func TestWatermarkUnchangedFeed(t *testing.T) {
	t.Parallel()

	e := New(slog.Default())
	entries := feed("e5", "e4", "e3")
	cur := &Cursor{LastID: "e5", LastTime: entries[0].Time}

	fresh, next := e.Watermark("https://example.com/rss", cur, entries)

	testutil.AssertEqual(t, len(fresh), 0)
	testutil.AssertEqual(t, next, *cur)
}

func TestWatermarkNewOnTop(t *testing.T) {
	t.Parallel()

	e := New(slog.Default())
	entries := feed("e5", "e4", "e3", "e2", "e1")
	cur := &Cursor{LastID: "e3", LastTime: entries[2].Time}

	fresh, next := e.Watermark("https://example.com/rss", cur, entries)

	testutil.AssertEqual(t, ids(fresh), []string{"e5", "e4"})
	testutil.AssertEqual(t, next.LastID, "e5")
	testutil.AssertEqual(t, next.LastTime, entries[0].Time)
}

func TestWatermarkTimestampFallback(t *testing.T) {
	t.Parallel()

	e := New(slog.Default())
	entries := feed("e5", "e4", "e3")
	// The remembered identifier no longer appears in the feed, but the
	// timestamp still separates old from new.
	cur := &Cursor{LastID: "gone", LastTime: entries[1].Time}

	fresh, _ := e.Watermark("https://example.com/rss", cur, entries)

	testutil.AssertEqual(t, ids(fresh), []string{"e5"})
}

func TestWatermarkRollbackFailsOpen(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := New(slog.New(slog.NewTextHandler(&buf, nil)))

	entries := feed("e5", "e4", "e3")
	// Nothing matches by identifier and every timestamp is newer than the
	// cursor: the feed rolled back or changed its identifier scheme.
	cur := &Cursor{LastID: "gone", LastTime: entries[2].Time.Add(-time.Hour)}

	fresh, _ := e.Watermark("https://example.com/rss", cur, entries)

	testutil.AssertEqual(t, len(fresh), 3)
	if !strings.Contains(buf.String(), "possible feed rollback") {
		t.Fatalf("rollback not logged: %q", buf.String())
	}
}

func TestWatermarkNeverMovesBack(t *testing.T) {
	t.Parallel()

	e := New(slog.Default())
	cur := &Cursor{LastID: "old", LastTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	// A late-arriving entry older than the cursor, on top of the matched one.
	entries := []entry.Entry{
		{ID: "late", Time: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "old", Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	fresh, next := e.Watermark("https://example.com/rss", cur, entries)

	testutil.AssertEqual(t, ids(fresh), []string{"late"})
	testutil.AssertEqual(t, next.LastID, "late")
	testutil.AssertEqual(t, next.LastTime, cur.LastTime)
}

func TestWatermarkEmptyFeed(t *testing.T) {
	t.Parallel()

	e := New(slog.Default())
	cur := &Cursor{LastID: "e1", LastTime: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}

	fresh, next := e.Watermark("https://example.com/rss", cur, nil)

	testutil.AssertEqual(t, len(fresh), 0)
	testutil.AssertEqual(t, next, *cur)
}

func TestSeenSet(t *testing.T) {
	t.Parallel()

	e := New(slog.Default())
	entries := feed("e5", "e4", "e3", "e2")
	seen := map[string]time.Time{
		"e4": time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		"e2": time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC),
	}

	fresh := e.SeenSet(seen, entries)

	testutil.AssertEqual(t, ids(fresh), []string{"e5", "e3"})
}

func TestFilterBlock(t *testing.T) {
	t.Parallel()

	entries := []entry.Entry{
		{ID: "a", Title: "Critical SPONSORED post"},
		{ID: "b", Title: "Regular news"},
	}
	f := &config.Filter{
		Mode:     config.FilterBlock,
		Scope:    []string{"title"},
		Keywords: []string{"sponsored"},
	}

	testutil.AssertEqual(t, ids(Filter(f, entries)), []string{"b"})
}

func TestFilterAllow(t *testing.T) {
	t.Parallel()

	entries := []entry.Entry{
		{ID: "a", Title: "Go 1.26 released", Summary: "toolchain news"},
		{ID: "b", Title: "Rust 2.0 released"},
		{ID: "c", Title: "Weekly digest", Summary: "covers Go and more"},
	}
	f := &config.Filter{
		Mode:     config.FilterAllow,
		Scope:    []string{"title", "summary"},
		Keywords: []string{"go"},
	}

	testutil.AssertEqual(t, ids(Filter(f, entries)), []string{"a", "c"})
}

func TestFilterNilKeepsAll(t *testing.T) {
	t.Parallel()

	entries := feed("e2", "e1")
	testutil.AssertEqual(t, ids(Filter(nil, entries)), []string{"e2", "e1"})
}
