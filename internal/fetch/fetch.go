// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package fetch retrieves and parses feeds.
//
// All fetches across all sources go through one shared semaphore, so total
// in-flight requests stay capped no matter how many groups are being
// polled. Transient upstream failures (rate limiting, flaky mirrors) are
// retried with exponential backoff and jitter, then downgraded to "no data
// this cycle"; anything else is a permanent error for this source's
// iteration.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/penggan00/rss-sub000/internal/request"
	"github.com/penggan00/rss-sub000/internal/version"

	"github.com/mmcdole/gofeed"
)

const (
	defaultConcurrencyLimit = 10
	defaultAttempts         = 4
	defaultBackoffBase      = 2 * time.Second
)

// Error is a permanent fetch failure: an unexpected HTTP status or a feed
// body that doesn't parse. It aborts only the current source's iteration.
type Error struct {
	URL        string
	StatusCode int // 0 when the body failed to parse
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %q: want 200, got %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %q: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Conditional carries cache validators from the previous successful fetch.
type Conditional struct {
	ETag         string
	LastModified string
}

// Result is a successfully completed fetch.
type Result struct {
	// Feed is the parsed feed. Nil if NotModified is set.
	Feed *gofeed.Feed
	// NotModified reports that the server answered 304 and the feed content
	// is unchanged since the previous fetch.
	NotModified bool
	// ETag and LastModified are validators to persist for the next fetch.
	ETag         string
	LastModified string
}

// Config configures a [Fetcher].
type Config struct {
	// HTTPClient is the client used for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// ConcurrencyLimit caps simultaneous in-flight requests across all
	// sources. Defaults to 10.
	ConcurrencyLimit int
	// Attempts is the total attempt count per fetch, including the first
	// one. Defaults to 4.
	Attempts int
	// BackoffBase is the first retry delay; each subsequent delay doubles
	// and gets up to one BackoffBase of random jitter. Defaults to 2s.
	BackoffBase time.Duration
	// Logger is used for retry and give-up decisions. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// Fetcher retrieves feeds with bounded concurrency and a retry policy.
type Fetcher struct {
	httpc    *http.Client
	fp       *gofeed.Parser
	sem      chan struct{}
	attempts int
	base     time.Duration
	slog     *slog.Logger

	// sleep is time-based waiting, swappable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New returns a [Fetcher].
func New(cfg Config) *Fetcher {
	f := &Fetcher{
		httpc:    cfg.HTTPClient,
		fp:       gofeed.NewParser(),
		attempts: cfg.Attempts,
		base:     cfg.BackoffBase,
		slog:     cfg.Logger,
	}
	if f.httpc == nil {
		f.httpc = request.DefaultClient
	}
	limit := cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = defaultConcurrencyLimit
	}
	f.sem = make(chan struct{}, limit)
	if f.attempts <= 0 {
		f.attempts = defaultAttempts
	}
	if f.base <= 0 {
		f.base = defaultBackoffBase
	}
	if f.slog == nil {
		f.slog = slog.Default()
	}
	f.sleep = sleep
	return f
}

// Fetch retrieves and parses the feed at url.
//
// It returns (nil, nil) when the transient-retry budget is exhausted: the
// poll cycle simply has no data and the next scheduled run retries from the
// same cursor. A non-nil error means a permanent failure for this cycle.
func (f *Fetcher) Fetch(ctx context.Context, url string, cond Conditional) (*Result, error) {
	for attempt := range f.attempts {
		if attempt > 0 {
			delay := f.backoff(attempt)
			f.slog.Warn("retrying fetch",
				"url", url,
				"attempt", attempt+1,
				"attempts", f.attempts,
				"retry_in", delay,
			)
			if !f.sleep(ctx, delay) {
				return nil, ctx.Err()
			}
		}

		res, retryable, err := f.fetchOnce(ctx, url, cond)
		if err == nil {
			return res, nil
		}
		if !retryable {
			return nil, err
		}
		f.slog.Warn("transient fetch failure", "url", url, "error", err)
	}

	f.slog.Warn("giving up on fetch until next cycle", "url", url, "attempts", f.attempts)
	return nil, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, cond Conditional) (res *Result, retryable bool, err error) {
	f.sem <- struct{}{}
	defer func() { <-f.sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		// Generic network errors are considered transient.
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Result{NotModified: true, ETag: cond.ETag, LastModified: cond.LastModified}, false, nil
	case resp.StatusCode == http.StatusOK:
		// Handled below.
	case transientStatus(resp.StatusCode):
		return nil, true, &Error{URL: url, StatusCode: resp.StatusCode}
	default:
		return nil, false, &Error{URL: url, StatusCode: resp.StatusCode}
	}

	feed, err := f.fp.Parse(resp.Body)
	if err != nil {
		// Malformed content won't get better on retry; don't spend the
		// budget on it.
		return nil, false, &Error{URL: url, Err: err}
	}

	res = &Result{
		Feed: feed,
		ETag: resp.Header.Get("ETag"),
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		res.LastModified = lastModified
	}
	return res, false, nil
}

// transientStatus reports whether an HTTP status represents transient
// unavailability in this domain's convention. 403 and 404 are included
// because feed hosts routinely answer them during deploys and
// anti-bot hiccups.
func transientStatus(code int) bool {
	switch code {
	case http.StatusServiceUnavailable,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.base << (attempt - 1)
	return d + time.Duration(rand.Float64()*float64(f.base))
}

// IsPermanent reports whether err is a permanent fetch failure.
func IsPermanent(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
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
