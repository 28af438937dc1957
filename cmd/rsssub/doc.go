// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Rsssub polls RSS and Atom feeds and sends new entries via Telegram.

# Usage

	$ rsssub [flags...] <command>

Available commands:

  - run: poll every group that is due and deliver new entries
  - groups: list configured groups and their stored run metadata
  - prune: delete seen entries older than each group's retention window
  - reenable: clear the failure counter of a source that was disabled
    after failing too many fetches in a row, e.g.
    rsssub reenable https://example.com/feed

Rsssub is meant to be invoked periodically, for example from a systemd
timer or cron. Each invocation is a short-lived batch run; a file lock
makes overlapping invocations exit cleanly without doing anything.

# Environment Variables

The rsssub program relies on the following environment variables:

  - TELEGRAM_TOKEN: Telegram bot token for accessing the Telegram Bot API.
    Required by the run command unless -dry is set.
  - DATABASE_URL: PostgreSQL connection string. When set, cursor state is
    kept in PostgreSQL; when empty, in a SQLite database inside the state
    directory.
  - GEMINI_API_KEY: Gemini API key. Optional; groups asking for translation
    keep their original text without it.
  - STATE_DIRECTORY: directory for the SQLite database and the run lock.
    Defaults to $XDG_STATE_HOME/rsssub.

# Configuration

Rsssub reads its group configuration from a config.star file in the state
directory (overridable with the -config flag). The file is written in
Starlark and defines a list of groups, for example:

	groups = [
	    group(
	        key = "news",
	        urls = [
	            "https://hnrss.org/newest",
	            "https://lobste.rs/rss",
	        ],
	        interval = 900,
	        chat_id = "-1001234567890",
	        header = "📰 Tech",
	        item_template = "*{subject}*\n{url}",
	        filter = filter(
	            mode = "block",
	            keywords = ["sponsored", "webinar"],
	        ),
	    ),
	]

Each group polls its urls every interval seconds and posts new entries to
chat_id. See the group and filter builtins for the full set of options:
retention_days, translate, lang, preview and mode ("watermark" for feeds
that prepend new items, "seenset" for feeds that reorder).
*/
package main

import (
	_ "embed"

	"github.com/penggan00/rss-sub000/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
