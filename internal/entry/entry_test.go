// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package entry

import (
	"testing"
	"time"

	"github.com/penggan00/rss-sub000/internal/testutil"

	"github.com/mmcdole/gofeed"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func TestCanonicalizePrefersGUID(t *testing.T) {
	t.Parallel()

	withGUID := Canonicalize(&gofeed.Item{
		GUID:  "tag:example.com,2026:1",
		Title: "Hello",
		Link:  "https://example.com/1",
	}, testNow)
	linkOnly := Canonicalize(&gofeed.Item{
		Title: "Hello",
		Link:  "https://example.com/1",
	}, testNow)

	if withGUID.ID == linkOnly.ID {
		t.Fatal("GUID-derived and link-derived identifiers must differ")
	}
	testutil.AssertEqual(t, len(withGUID.ID), 64)
}

func TestCanonicalizeIgnoresTrackingParameters(t *testing.T) {
	t.Parallel()

	base := Canonicalize(&gofeed.Item{Link: "https://example.com/Post/1"}, testNow)
	tracked := Canonicalize(&gofeed.Item{Link: "https://example.com/post/1?utm_source=rss&ref=x"}, testNow)
	fragment := Canonicalize(&gofeed.Item{Link: "https://example.com/post/1#comments"}, testNow)

	testutil.AssertEqual(t, tracked.ID, base.ID)
	testutil.AssertEqual(t, fragment.ID, base.ID)
}

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	item := &gofeed.Item{
		Title: "Same item",
		Link:  "https://example.com/a?b=1",
	}
	first := Canonicalize(item, testNow)
	second := Canonicalize(item, testNow.Add(time.Hour))

	testutil.AssertEqual(t, second.ID, first.ID)
}

func TestCanonicalizeTitleFallback(t *testing.T) {
	t.Parallel()

	published := testNow.Add(-time.Hour)
	e := Canonicalize(&gofeed.Item{
		Title:           "No link at all",
		PublishedParsed: &published,
	}, testNow)

	testutil.AssertEqual(t, len(e.ID), 64)
	testutil.AssertEqual(t, e.Time, published.UTC())

	again := Canonicalize(&gofeed.Item{
		Title:           "No link at all",
		PublishedParsed: &published,
	}, testNow.Add(time.Minute))
	testutil.AssertEqual(t, again.ID, e.ID)
}

func TestCanonicalizeTimeFallbacks(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+5", 5*60*60)
	published := time.Date(2026, 2, 10, 17, 0, 0, 0, loc)
	updated := time.Date(2026, 2, 9, 17, 0, 0, 0, loc)

	e := Canonicalize(&gofeed.Item{Link: "https://example.com/1", PublishedParsed: &published, UpdatedParsed: &updated}, testNow)
	testutil.AssertEqual(t, e.Time, published.UTC())

	e = Canonicalize(&gofeed.Item{Link: "https://example.com/1", UpdatedParsed: &updated}, testNow)
	testutil.AssertEqual(t, e.Time, updated.UTC())

	e = Canonicalize(&gofeed.Item{Link: "https://example.com/1"}, testNow)
	testutil.AssertEqual(t, e.Time, testNow)
}

func TestCanonicalizeMalformedLink(t *testing.T) {
	t.Parallel()

	// An unparsable link must still produce a stable identifier, not a panic
	// or an empty one.
	e := Canonicalize(&gofeed.Item{Link: "http://exa mple.com/%zz"}, testNow)
	again := Canonicalize(&gofeed.Item{Link: "http://exa mple.com/%zz"}, testNow)

	testutil.AssertEqual(t, len(e.ID), 64)
	testutil.AssertEqual(t, again.ID, e.ID)
}

func TestCanonicalizeAllKeepsOrder(t *testing.T) {
	t.Parallel()

	entries := CanonicalizeAll([]*gofeed.Item{
		{Title: "first", Link: "https://example.com/1"},
		nil,
		{Title: "second", Link: "https://example.com/2"},
	}, testNow)

	testutil.AssertEqual(t, len(entries), 2)
	testutil.AssertEqual(t, entries[0].Title, "first")
	testutil.AssertEqual(t, entries[1].Title, "second")
}
