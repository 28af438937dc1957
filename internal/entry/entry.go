// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package entry derives stable identities for feed items.
//
// Feeds disagree about which fields exist and how stable they are: GUIDs
// come and go, links grow tracking parameters between fetches, timestamps
// are missing entirely. Canonicalize folds all of that into a fixed-size
// identifier and a UTC timestamp that stay the same for the same logical
// item across polls.
package entry

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one canonicalized feed item. Entries are rebuilt on every fetch
// and never persisted beyond their identifier and timestamp.
type Entry struct {
	// ID is the hex-encoded SHA-256 digest of the most stable raw identity
	// the item offers.
	ID string
	// Time is the best-effort publication time, always UTC.
	Time time.Time

	Title   string
	Link    string
	Summary string
}

// Canonicalize derives an [Entry] from a raw feed item.
//
// The identifier is chosen in order of preference: the item's GUID, its
// link with query string and fragment stripped and lowercased, or a digest
// of title plus timestamp. An item with no time field at all is stamped
// with now so it's treated as freshly new rather than rejected.
// Canonicalize never fails; any malformed field degrades to the next
// fallback.
func Canonicalize(item *gofeed.Item, now time.Time) Entry {
	e := Entry{
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: strings.TrimSpace(item.Description),
	}
	e.Time = itemTime(item, now)

	switch {
	case item.GUID != "":
		e.ID = digest(item.GUID)
	case e.Link != "":
		e.ID = digest(normalizeLink(e.Link))
	default:
		e.ID = digest(e.Title + "\x00" + e.Time.Format(time.RFC3339))
	}
	return e
}

// CanonicalizeAll canonicalizes items preserving feed order.
func CanonicalizeAll(items []*gofeed.Item, now time.Time) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, Canonicalize(item, now))
	}
	return entries
}

func itemTime(item *gofeed.Item, now time.Time) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return now.UTC()
}

// normalizeLink strips the query string and fragment and lowercases the
// result, so tracking-parameter churn doesn't produce false "new" entries.
func normalizeLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return strings.ToLower(link)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.ToLower(u.String())
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
