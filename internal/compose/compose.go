// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package compose renders new entries into outbound message strings.
//
// Entry fields are escaped for Telegram Markdown before being substituted
// into the group's item template; the template's own literal characters are
// left alone, so markup written there (say, emphasis around {subject})
// renders as intended. Rendered items are packed into as few messages as
// possible without ever exceeding [MessageLimit].
package compose

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/penggan00/rss-sub000/internal/config"
	"github.com/penggan00/rss-sub000/internal/entry"
)

// MessageLimit is Telegram's hard per-message length limit, in runes.
const MessageLimit = 4096

// Translator translates text for groups that ask for it. It must return the
// original text when translation fails; compose never treats translation as
// fatal.
type Translator func(ctx context.Context, text string) string

// Input is everything needed to compose one source's batch.
type Input struct {
	Group     *config.Group
	FeedTitle string
	Entries   []entry.Entry
	// Translate is applied to titles and summaries when set.
	Translate Translator
}

// Messages renders in.Entries through the group's item template and packs
// them into an ordered list of messages, each at most [MessageLimit] runes.
// The group's header, if any, is prefixed once to the first message.
func Messages(ctx context.Context, in Input) []string {
	if len(in.Entries) == 0 {
		return nil
	}
	paragraphs := make([]string, 0, len(in.Entries))
	for _, en := range in.Entries {
		paragraphs = append(paragraphs, renderItem(ctx, in, en))
	}
	return Pack(in.Group.Header, paragraphs, MessageLimit)
}

func renderItem(ctx context.Context, in Input, en entry.Entry) string {
	subject, summary := en.Title, en.Summary
	if in.Translate != nil {
		subject = in.Translate(ctx, subject)
		if summary != "" {
			summary = in.Translate(ctx, summary)
		}
	}
	// A URL in running text is escaped like any other field (underscores
	// in links are common and would open an italic span), but inside an
	// explicit link target the raw URL is what Telegram expects.
	return strings.NewReplacer(
		"]({url})", "]("+en.Link+")",
		"{subject}", Escape(subject),
		"{source}", Escape(in.FeedTitle),
		"{url}", Escape(en.Link),
		"{summary}", Escape(summary),
	).Replace(in.Group.ItemTemplate)
}

// Escape backslash-escapes Telegram Markdown metacharacters in s. It is
// idempotent: characters already preceded by a backslash are not escaped
// again.
func Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case strings.ContainsRune("_*`[]", r):
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Pack joins paragraphs with blank lines into messages of at most limit
// runes, closing the current message whenever the next paragraph would not
// fit. A single paragraph longer than limit is hard-split at the limit
// boundary. The header, if non-empty, is prefixed to the first message and
// counts against its limit.
func Pack(header string, paragraphs []string, limit int) []string {
	var (
		msgs []string
		cur  string
	)
	if header != "" {
		cur = header
	}
	flush := func() {
		if cur != "" {
			msgs = append(msgs, cur)
			cur = ""
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) > limit {
			flush()
			msgs = append(msgs, hardSplit(p, limit)...)
			continue
		}
		switch {
		case cur == "":
			cur = p
		case utf8.RuneCountInString(cur)+2+utf8.RuneCountInString(p) <= limit:
			cur += "\n\n" + p
		default:
			flush()
			cur = p
		}
	}
	flush()
	return msgs
}

func hardSplit(s string, limit int) []string {
	var chunks []string
	for utf8.RuneCountInString(s) > limit {
		cut := len(s)
		prev := 0
		runeCount := 0
		escaping := false
		for i, r := range s {
			if runeCount == limit {
				cut = i
				// Never separate a backslash from the character it
				// escapes; the backslash moves to the next chunk.
				if escaping && prev > 0 {
					cut = prev
				}
				break
			}
			prev = i
			escaping = r == '\\' && !escaping
			runeCount++
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
