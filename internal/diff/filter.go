// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package diff

import (
	"strings"

	"github.com/penggan00/rss-sub000/internal/config"
	"github.com/penggan00/rss-sub000/internal/entry"
)

// Filter drops entries according to a group's keyword filter and returns the
// survivors in encounter order. A nil filter keeps everything.
//
// Filtering happens after new-entry detection, so a dropped entry still
// advances the cursor and is never revisited.
func Filter(f *config.Filter, entries []entry.Entry) []entry.Entry {
	if f == nil {
		return entries
	}
	var kept []entry.Entry
	for _, en := range entries {
		hit := matches(f, en)
		switch f.Mode {
		case config.FilterAllow:
			if hit {
				kept = append(kept, en)
			}
		case config.FilterBlock:
			if !hit {
				kept = append(kept, en)
			}
		}
	}
	return kept
}

func matches(f *config.Filter, en entry.Entry) bool {
	for _, scope := range f.Scope {
		var field string
		switch scope {
		case "title":
			field = en.Title
		case "link":
			field = en.Link
		case "summary":
			field = en.Summary
		}
		field = strings.ToLower(field)
		for _, kw := range f.Keywords {
			if kw != "" && strings.Contains(field, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
