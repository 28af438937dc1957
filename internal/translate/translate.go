// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package translate translates entry text via the Gemini API.
//
// Translation is best effort. Any failure, from a network error to an empty
// model response, is logged and the original text is returned unchanged, so
// a broken translation backend never blocks delivery.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/penggan00/rss-sub000/internal/request"
	"github.com/penggan00/rss-sub000/internal/version"
)

const (
	geminiAPI    = "https://generativelanguage.googleapis.com"
	defaultModel = "gemini-2.0-flash"
)

// Config configures a [Translator].
type Config struct {
	// APIKey is the Gemini API key. Required.
	APIKey string
	// Model overrides the default model.
	Model string
	// HTTPClient is the client used for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber removes the API key from logged errors.
	Scrubber *strings.Replacer
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Translator translates text through Gemini.
type Translator struct {
	apiKey   string
	model    string
	httpc    *http.Client
	scrubber *strings.Replacer
	slog     *slog.Logger

	// apiURL is the API base URL, swappable in tests.
	apiURL string
}

// New returns a [Translator].
func New(cfg Config) *Translator {
	t := &Translator{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpc:    cfg.HTTPClient,
		scrubber: cfg.Scrubber,
		slog:     cfg.Logger,
	}
	if t.model == "" {
		t.model = defaultModel
	}
	if t.httpc == nil {
		t.httpc = request.DefaultClient
	}
	if t.slog == nil {
		t.slog = slog.Default()
	}
	t.apiURL = geminiAPI
	return t
}

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Translate returns text translated into targetLang, or text unchanged if
// translation fails for any reason.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	prompt := fmt.Sprintf(
		"Translate the following text to %s. Reply with the translation only, no explanations:\n\n%s",
		targetLang, text,
	)

	resp, err := request.Make[generateContentResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", t.apiURL, t.model, t.apiKey),
		Body: generateContentRequest{
			Contents: []content{{Parts: []part{{Text: prompt}}}},
		},
		Headers: map[string]string{
			"User-Agent": version.UserAgent(),
		},
		HTTPClient: t.httpc,
		Scrubber:   t.scrubber,
	})
	if err != nil {
		t.slog.Warn("translation failed, keeping original text", "error", err)
		return text
	}

	translated := collectText(resp)
	if translated == "" {
		t.slog.Warn("translation returned no text, keeping original")
		return text
	}
	return translated
}

func collectText(resp generateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
