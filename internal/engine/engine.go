// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package engine orchestrates one polling run over all configured groups.
//
// A run is a short-lived batch job. It takes a process-wide file lock (a
// second concurrent run exits normally without touching any state), walks
// every group that is due per its interval, and for each source performs
// fetch, canonicalize, diff, filter, compose and send. A source's cursor is
// committed strictly after its batch has been delivered; a crash or send
// failure in between re-delivers on the next run rather than losing items.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/penggan00/rss-sub000/internal/compose"
	"github.com/penggan00/rss-sub000/internal/config"
	"github.com/penggan00/rss-sub000/internal/cursor"
	"github.com/penggan00/rss-sub000/internal/diff"
	"github.com/penggan00/rss-sub000/internal/entry"
	"github.com/penggan00/rss-sub000/internal/fetch"
	"github.com/penggan00/rss-sub000/internal/filelock"
	"github.com/penggan00/rss-sub000/internal/syncx"
	"github.com/penggan00/rss-sub000/internal/telegram"
)

const (
	// errorThreshold is how many consecutive permanent fetch failures
	// disable a source.
	errorThreshold = 12

	groupConcurrencyLimit = 4

	// Attempts for cursor commits. A commit guards an already-sent message,
	// so giving up means a duplicate next run.
	commitAttempts = 3
	commitDelay    = 500 * time.Millisecond
)

// Sender delivers composed messages.
type Sender interface {
	Send(ctx context.Context, msg telegram.Message) error
}

// Translator translates text into a target language, returning the original
// text on failure.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) string
}

// Config configures an [Engine].
type Config struct {
	Groups  []*config.Group
	Store   cursor.Store
	Fetcher *fetch.Fetcher
	Sender  Sender
	// Translator is used by groups that ask for translation. Optional.
	Translator Translator
	// LockPath is the path of the run lock file.
	LockPath string
	// DryRun logs what would be sent without sending or committing.
	DryRun bool
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine runs the polling pipeline.
type Engine struct {
	groups     []*config.Group
	store      cursor.Store
	fetcher    *fetch.Fetcher
	sender     Sender
	translator Translator
	lockPath   string
	dry        bool
	slog       *slog.Logger
	diff       *diff.Engine

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New returns an [Engine].
func New(cfg Config) *Engine {
	e := &Engine{
		groups:     cfg.Groups,
		store:      cfg.Store,
		fetcher:    cfg.Fetcher,
		sender:     cfg.Sender,
		translator: cfg.Translator,
		lockPath:   cfg.LockPath,
		dry:        cfg.DryRun,
		slog:       cfg.Logger,
	}
	if e.slog == nil {
		e.slog = slog.Default()
	}
	e.diff = diff.New(e.slog)
	e.now = time.Now
	e.sleep = sleep
	return e
}

// Run executes one polling run.
//
// If another run already holds the lock, Run logs that and returns nil:
// overlap is a normal scheduling artifact, not an error.
func (e *Engine) Run(ctx context.Context) error {
	lock, err := filelock.Acquire(e.lockPath)
	if errors.Is(err, filelock.ErrAlreadyLocked) {
		e.slog.Info("another run is in progress, skipping", "lock", e.lockPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquiring run lock: %w", err)
	}
	defer lock.Release()

	wg := syncx.NewLimitedWaitGroup(groupConcurrencyLimit)
	for _, g := range e.groups {
		wg.Go(func() { e.runGroup(ctx, g) })
	}
	wg.Wait()
	return ctx.Err()
}

func (e *Engine) runGroup(ctx context.Context, g *config.Group) {
	lastRun, err := e.store.LastRun(ctx, g.Key)
	if err != nil {
		// Re-polling early is safe, dedup suppresses duplicates.
		e.slog.Warn("reading last run time failed, treating group as due", "group", g.Key, "error", err)
		lastRun = time.Time{}
	}
	if !lastRun.IsZero() && e.now().Sub(lastRun) < g.Interval {
		e.slog.Debug("group is not due yet", "group", g.Key, "last_run", lastRun, "interval", g.Interval)
		return
	}

	e.slog.Info("polling group", "group", g.Key, "sources", len(g.URLs))

	for _, url := range shuffle(g.URLs) {
		if ctx.Err() != nil {
			return
		}
		e.processSource(ctx, g, url)
	}

	// A dry run reports what it would do but leaves the store untouched:
	// no pruning, and no last run time, so the next real run is still due.
	if e.dry {
		return
	}

	if g.Retention > 0 {
		pruned, err := e.store.Prune(ctx, g.Key, e.now().Add(-g.Retention))
		if err != nil {
			e.slog.Warn("pruning failed", "group", g.Key, "error", err)
		} else if pruned > 0 {
			e.slog.Info("pruned old seen entries", "group", g.Key, "count", pruned)
		}
	}

	// Recorded even when individual sources failed, so one flaky source
	// can't put the whole group into a re-polling storm.
	if err := e.store.SetLastRun(ctx, g.Key, e.now()); err != nil {
		e.slog.Warn("recording last run time failed", "group", g.Key, "error", err)
	}
}

func (e *Engine) processSource(ctx context.Context, g *config.Group, url string) {
	var state cursor.State
	if st, err := e.store.Source(ctx, g.Key, url); err != nil {
		e.slog.Warn("reading source state failed, treating source as not yet seen", "source", url, "error", err)
	} else if st != nil {
		state = *st
	}
	if state.Disabled {
		e.slog.Debug("skipping disabled source", "group", g.Key, "source", url)
		return
	}

	res, err := e.fetcher.Fetch(ctx, url, fetch.Conditional{
		ETag:         state.ETag,
		LastModified: state.LastModified,
	})
	if err != nil {
		e.handleFetchFailure(ctx, g, url, &state, err)
		return
	}
	if res == nil {
		// Transient trouble, next run retries from the same cursor.
		return
	}
	if res.NotModified {
		if state.ErrorCount > 0 {
			state.ErrorCount = 0
			state.LastError = ""
			e.commitState(ctx, g, url, &state)
		}
		return
	}

	entries := entry.CanonicalizeAll(res.Feed.Items, e.now())

	var (
		fresh []entry.Entry
		next  diff.Cursor
	)
	switch g.Mode {
	case config.ModeSeenSet:
		seen, err := e.store.Seen(ctx, g.Key, url)
		if err != nil {
			e.slog.Warn("reading seen set failed, treating all entries as new", "source", url, "error", err)
			seen = nil
		}
		fresh = e.diff.SeenSet(seen, entries)
	default:
		var cur *diff.Cursor
		if state.LastID != "" || !state.LastTime.IsZero() {
			cur = &diff.Cursor{LastID: state.LastID, LastTime: state.LastTime}
		}
		fresh, next = e.diff.Watermark(url, cur, entries)
	}

	state.ETag = res.ETag
	state.LastModified = res.LastModified
	state.ErrorCount = 0
	state.LastError = ""

	if len(fresh) == 0 {
		// Nothing to deliver, so persisting the fetch validators can't hide
		// an undelivered batch behind a 304.
		e.commitState(ctx, g, url, &state)
		return
	}

	// Filtered-out entries still advance the cursor so they are never
	// re-evaluated; only the survivors get composed.
	kept := diff.Filter(g.Filter, fresh)
	if len(kept) > 0 {
		if !e.deliver(ctx, g, res.Feed.Title, kept) {
			return
		}
	}

	switch g.Mode {
	case config.ModeSeenSet:
		ids := make([]string, len(fresh))
		for i, en := range fresh {
			ids[i] = en.ID
		}
		e.commitSeen(ctx, g, url, ids)
	default:
		state.LastID = next.LastID
		state.LastTime = next.LastTime
	}
	e.commitState(ctx, g, url, &state)

	e.slog.Info("delivered new entries", "group", g.Key, "source", url, "new", len(fresh), "sent", len(kept))
}

// deliver composes and sends a batch, reporting whether the cursor may be
// committed.
func (e *Engine) deliver(ctx context.Context, g *config.Group, feedTitle string, kept []entry.Entry) bool {
	var tr compose.Translator
	if g.Translate && e.translator != nil {
		tr = func(ctx context.Context, text string) string {
			return e.translator.Translate(ctx, text, g.TargetLang)
		}
	}

	msgs := compose.Messages(ctx, compose.Input{
		Group:     g,
		FeedTitle: feedTitle,
		Entries:   kept,
		Translate: tr,
	})

	if e.dry {
		for _, m := range msgs {
			e.slog.Info("would send", "group", g.Key, "message", m)
		}
		return false
	}

	for _, m := range msgs {
		if err := e.sender.Send(ctx, telegram.Message{
			ChatID:         g.ChatID,
			Text:           m,
			DisablePreview: !g.Preview,
		}); err != nil {
			e.slog.Warn("delivery failed, cursor stays put", "group", g.Key, "error", err)
			return false
		}
	}
	return true
}

func (e *Engine) handleFetchFailure(ctx context.Context, g *config.Group, url string, state *cursor.State, err error) {
	state.ErrorCount++
	state.LastError = err.Error()

	e.slog.Warn("fetch failed", "group", g.Key, "source", url, "error", err, "error_count", state.ErrorCount)

	if state.ErrorCount >= errorThreshold {
		state.Disabled = true
		e.slog.Error("source failed too many times in a row and was disabled, use the reenable command to bring it back",
			"group", g.Key,
			"source", url,
			"error_count", state.ErrorCount,
		)
	}

	e.commitState(ctx, g, url, state)
}

// commitState persists source state, retrying a few times: losing a commit
// after a successful send means a duplicate delivery next run. A dry run
// commits nothing, not even error counts.
func (e *Engine) commitState(ctx context.Context, g *config.Group, url string, state *cursor.State) {
	if e.dry {
		return
	}
	err := e.withRetry(ctx, func() error {
		return e.store.SaveSource(ctx, g.Key, url, state)
	})
	if err != nil {
		e.slog.Error("persisting source state failed", "group", g.Key, "source", url, "error", err)
	}
}

func (e *Engine) commitSeen(ctx context.Context, g *config.Group, url string, ids []string) {
	if e.dry {
		return
	}
	err := e.withRetry(ctx, func() error {
		return e.store.MarkSeen(ctx, g.Key, url, ids, e.now())
	})
	if err != nil {
		e.slog.Error("persisting seen entries failed", "group", g.Key, "source", url, "error", err)
	}
}

func (e *Engine) withRetry(ctx context.Context, f func() error) error {
	var err error
	for attempt := range commitAttempts {
		if attempt > 0 && !e.sleep(ctx, commitDelay) {
			return ctx.Err()
		}
		if err = f(); err == nil {
			return nil
		}
	}
	return err
}

func shuffle[S any](s []S) []S {
	s2 := slices.Clone(s)
	rand.Shuffle(len(s2), func(i, j int) {
		s2[i], s2[j] = s2[j], s2[i]
	})
	return s2
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
