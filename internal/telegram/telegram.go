// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram delivers messages over the Telegram Bot API.
//
// Sends are paced: a minimum delay is enforced between consecutive
// messages, across all callers of one [Sender]. Rate-limit responses are
// retried after the wait the API asks for, transport errors are retried
// with exponential backoff, and a message the API refuses to parse as
// Markdown is re-sent as plain text rather than dropped.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/penggan00/rss-sub000/internal/request"
	"github.com/penggan00/rss-sub000/internal/version"
)

const (
	tgAPI          = "https://api.telegram.org"
	sendRetryLimit = 5

	defaultMinDelay  = 3 * time.Second
	transportBackoff = time.Second
)

// Config configures a [Sender].
type Config struct {
	// Token is the bot token. Required.
	Token string
	// MinDelay is the minimum pause between two consecutive sends.
	// Defaults to 3s.
	MinDelay time.Duration
	// HTTPClient is the client used for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber removes the token from logged errors.
	Scrubber *strings.Replacer
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Sender sends messages via the Telegram Bot API.
type Sender struct {
	token    string
	minDelay time.Duration
	httpc    *http.Client
	scrubber *strings.Replacer
	slog     *slog.Logger

	mu       sync.Mutex
	lastSend time.Time

	makeRequest func(ctx context.Context, method string, args any) error
	sleep       func(ctx context.Context, d time.Duration) bool
	now         func() time.Time
}

// New returns a [Sender].
func New(cfg Config) *Sender {
	s := &Sender{
		token:    cfg.Token,
		minDelay: cfg.MinDelay,
		httpc:    cfg.HTTPClient,
		scrubber: cfg.Scrubber,
		slog:     cfg.Logger,
	}
	if s.minDelay <= 0 {
		s.minDelay = defaultMinDelay
	}
	if s.httpc == nil {
		s.httpc = request.DefaultClient
	}
	if s.slog == nil {
		s.slog = slog.Default()
	}
	s.makeRequest = s.makeTelegramRequest
	s.sleep = sleep
	s.now = time.Now
	return s
}

// Message is one outbound message.
type Message struct {
	ChatID         string
	Text           string
	DisablePreview bool
}

type sendMessageRequest struct {
	ChatID             string `json:"chat_id"`
	Text               string `json:"text"`
	ParseMode          string `json:"parse_mode,omitempty"`
	LinkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	} `json:"link_preview_options"`
}

// Send delivers msg, waiting out the pacing delay and the API's rate
// limits. If the API rejects the message's Markdown, it is re-sent once as
// plain text.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wait := s.minDelay - s.now().Sub(s.lastSend); wait > 0 {
		if !s.sleep(ctx, wait) {
			return ctx.Err()
		}
	}

	req := &sendMessageRequest{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: "Markdown",
	}
	req.LinkPreviewOptions.IsDisabled = msg.DisablePreview

	err := s.sendWithRetry(ctx, req)
	if isBadMarkup(err) {
		s.slog.Warn("formatting rejected, falling back to plain text", "chat_id", msg.ChatID)
		req.ParseMode = ""
		err = s.sendWithRetry(ctx, req)
	}
	if err != nil {
		return err
	}

	s.lastSend = s.now()
	return nil
}

func (s *Sender) sendWithRetry(ctx context.Context, req *sendMessageRequest) error {
	backoff := transportBackoff
	var err error
	for range sendRetryLimit {
		err = s.makeRequest(ctx, "sendMessage", req)
		if err == nil {
			return nil
		}

		wait, retryable := retryDelay(err, backoff)
		if !retryable {
			return err
		}
		backoff *= 2

		s.slog.Warn("sending failed, retrying", "chat_id", req.ChatID, "wait", wait, "error", err)
		if !s.sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	return err
}

func (s *Sender) makeTelegramRequest(ctx context.Context, method string, args any) error {
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    tgAPI + "/bot" + s.token + "/" + method,
		Body:   args,
		Headers: map[string]string{
			"User-Agent": version.UserAgent(),
		},
		HTTPClient: s.httpc,
		Scrubber:   s.scrubber,
	})
	return err
}

// retryDelay reports whether err is worth retrying and how long to wait
// first. Transport errors (timeouts, connection resets) never reach the API
// and back off exponentially starting from backoff; rate limits wait as long
// as the API asks. Any other API response is a verdict on the message and
// retrying won't change it.
func retryDelay(err error, backoff time.Duration) (time.Duration, bool) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		return backoff, true
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return 0, false
	}

	return time.Duration(errorResponse.Parameters.RetryAfter) * time.Second, true
}

// isBadMarkup reports whether the API refused to parse the message's
// formatting, as opposed to refusing the message itself.
func isBadMarkup(err error) bool {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(string(statusErr.Body)), "can't parse entities")
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
