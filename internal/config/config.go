// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads the source group configuration.
//
// Configuration lives in a config.star file written in Starlark. It defines
// a list of source groups, for example:
//
//	groups = [
//	    group(
//	        key = "news",
//	        urls = ["https://example.com/rss"],
//	        interval = 1800,
//	        retention_days = 30,
//	        chat_id = "-1001234567890",
//	        item_template = "{subject}\n{url}",
//	        filter = filter(mode = "block", keywords = ["ad"]),
//	    ),
//	]
//
// Groups are immutable once parsed; the engine never mutates them at
// runtime.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Diff engine modes, selectable per group.
const (
	// ModeWatermark tracks a single "last seen" watermark per source and
	// assumes newest-first feed order.
	ModeWatermark = "watermark"
	// ModeSeenSet remembers every delivered identifier and makes no
	// ordering assumption. Use it for feeds that reorder or backfill.
	ModeSeenSet = "seenset"
)

// Filter modes.
const (
	FilterAllow = "allow"
	FilterBlock = "block"
)

// Filter is an optional keyword filter scoped to entry fields.
type Filter struct {
	Mode     string   // FilterAllow or FilterBlock
	Scope    []string // any of "title", "link", "summary"
	Keywords []string
}

// Group is a named set of sources sharing schedule, output channel and
// formatting.
type Group struct {
	Key          string
	URLs         []string
	Interval     time.Duration
	Retention    time.Duration
	ChatID       string
	Header       string
	ItemTemplate string
	Translate    bool
	TargetLang   string
	Preview      bool
	Mode         string // ModeWatermark or ModeSeenSet
	Filter       *Filter
}

var filterScopes = []string{"title", "link", "summary"}

// Parse evaluates a config.star source and returns the configured groups.
func Parse(src string, print func(msg string)) ([]*Group, error) {
	if print == nil {
		print = func(string) {}
	}
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { print(msg) },
		},
		"config.star",
		src,
		starlark.StringDict{
			"group":  starlark.NewBuiltin("group", groupBuiltin),
			"filter": starlark.NewBuiltin("filter", filterBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	groupsList, ok := globals["groups"].(*starlark.List)
	if !ok {
		return nil, errors.New("groups must be defined and be a list")
	}

	var groups []*Group
	seen := make(map[string]bool)
	for elem := range groupsList.Elements() {
		gv, ok := elem.(*groupValue)
		if !ok {
			continue
		}
		g := gv.group
		if seen[g.Key] {
			return nil, fmt.Errorf("duplicate group key %q", g.Key)
		}
		seen[g.Key] = true
		groups = append(groups, g)
	}

	if len(groups) == 0 {
		return nil, errors.New("no groups defined")
	}
	return groups, nil
}

type groupValue struct{ group *Group }

func (g *groupValue) String() string        { return fmt.Sprintf("<group key=%q>", g.group.Key) }
func (g *groupValue) Type() string          { return "group" }
func (g *groupValue) Freeze()               {} // immutable
func (g *groupValue) Truth() starlark.Bool  { return starlark.Bool(g.group.Key != "") }
func (g *groupValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", g.Type()) }

type filterValue struct{ filter *Filter }

func (f *filterValue) String() string        { return fmt.Sprintf("<filter mode=%q>", f.filter.Mode) }
func (f *filterValue) Type() string          { return "filter" }
func (f *filterValue) Freeze()               {} // immutable
func (f *filterValue) Truth() starlark.Bool  { return starlark.True }
func (f *filterValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", f.Type()) }

func groupBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("group: unexpected positional arguments")
	}

	var (
		key           string
		urls          *starlark.List
		interval      int
		retentionDays = 30
		chatID        string
		header        string
		itemTemplate  = "{subject}\n{url}"
		translate     bool
		lang          string
		preview       bool
		mode          = ModeWatermark
		filter        starlark.Value
	)
	if err := starlark.UnpackArgs("group", args, kwargs,
		"key", &key,
		"urls", &urls,
		"interval", &interval,
		"chat_id", &chatID,
		"retention_days?", &retentionDays,
		"header?", &header,
		"item_template?", &itemTemplate,
		"translate?", &translate,
		"lang?", &lang,
		"preview?", &preview,
		"mode?", &mode,
		"filter?", &filter,
	); err != nil {
		return nil, err
	}

	g := &Group{
		Key:          key,
		Interval:     time.Duration(interval) * time.Second,
		Retention:    time.Duration(retentionDays) * 24 * time.Hour,
		ChatID:       chatID,
		Header:       header,
		ItemTemplate: itemTemplate,
		Translate:    translate,
		TargetLang:   lang,
		Preview:      preview,
		Mode:         mode,
	}

	if key == "" {
		return nil, errors.New("group: key must not be empty")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("group %q: interval must be positive", key)
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("group %q: retention_days must be positive", key)
	}
	if chatID == "" {
		return nil, fmt.Errorf("group %q: chat_id must not be empty", key)
	}
	if mode != ModeWatermark && mode != ModeSeenSet {
		return nil, fmt.Errorf("group %q: unknown mode %q", key, mode)
	}

	for u := range urls.Elements() {
		s, ok := starlark.AsString(u)
		if !ok {
			return nil, fmt.Errorf("group %q: urls must be a list of strings", key)
		}
		if _, err := url.ParseRequestURI(s); err != nil {
			return nil, fmt.Errorf("group %q: invalid URL %q", key, s)
		}
		g.URLs = append(g.URLs, s)
	}
	if len(g.URLs) == 0 {
		return nil, fmt.Errorf("group %q: urls must not be empty", key)
	}

	if filter != nil {
		fv, ok := filter.(*filterValue)
		if !ok {
			return nil, fmt.Errorf("group %q: filter must be created with filter()", key)
		}
		g.Filter = fv.filter
	}

	return &groupValue{group: g}, nil
}

func filterBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("filter: unexpected positional arguments")
	}

	var (
		mode     string
		keywords *starlark.List
		scope    *starlark.List
	)
	if err := starlark.UnpackArgs("filter", args, kwargs,
		"mode", &mode,
		"keywords", &keywords,
		"scope?", &scope,
	); err != nil {
		return nil, err
	}

	if mode != FilterAllow && mode != FilterBlock {
		return nil, fmt.Errorf("filter: unknown mode %q", mode)
	}

	f := &Filter{Mode: mode}
	for kw := range keywords.Elements() {
		s, ok := starlark.AsString(kw)
		if !ok || s == "" {
			return nil, errors.New("filter: keywords must be a list of non-empty strings")
		}
		f.Keywords = append(f.Keywords, s)
	}
	if len(f.Keywords) == 0 {
		return nil, errors.New("filter: keywords must not be empty")
	}

	if scope != nil {
		for sv := range scope.Elements() {
			s, ok := starlark.AsString(sv)
			if !ok || !slices.Contains(filterScopes, s) {
				return nil, fmt.Errorf("filter: scope must be a subset of %v", filterScopes)
			}
			f.Scope = append(f.Scope, s)
		}
	}
	if len(f.Scope) == 0 {
		f.Scope = []string{"title"}
	}

	return &filterValue{filter: f}, nil
}
