// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/penggan00/rss-sub000/internal/cli"
	"github.com/penggan00/rss-sub000/internal/config"
	"github.com/penggan00/rss-sub000/internal/cursor"
	"github.com/penggan00/rss-sub000/internal/engine"
	"github.com/penggan00/rss-sub000/internal/fetch"
	"github.com/penggan00/rss-sub000/internal/telegram"
	"github.com/penggan00/rss-sub000/internal/translate"
)

func main() { cli.Main(new(app)) }

type app struct {
	dry        bool
	configPath string

	tgToken   string
	dbURL     string
	geminiKey string
	stateDir  string

	slog     *slog.Logger
	scrubber *strings.Replacer
}

// Flags implements the [cli.HasFlags] interface.
func (a *app) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&a.dry, "dry", false, "Enable dry-run mode: log actions, but don't send updates or save state.")
	fs.StringVar(&a.configPath, "config", "", "Path to the config.star file. Defaults to config.star in the state directory.")
}

// Run implements the [cli.App] interface.
func (a *app) Run(ctx context.Context, env *cli.Env) error {
	a.tgToken = cmp.Or(a.tgToken, env.Getenv("TELEGRAM_TOKEN"))
	a.dbURL = cmp.Or(a.dbURL, env.Getenv("DATABASE_URL"))
	a.geminiKey = cmp.Or(a.geminiKey, env.Getenv("GEMINI_API_KEY"))
	a.stateDir = cmp.Or(a.stateDir, env.Getenv("STATE_DIRECTORY"))
	if a.stateDir == "" {
		xdgStateHome := env.Getenv("XDG_STATE_HOME")
		if xdgStateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			xdgStateHome = filepath.Join(home, ".local", "state")
		}
		a.stateDir = filepath.Join(xdgStateHome, "rsssub")
	}
	if err := os.MkdirAll(a.stateDir, 0o700); err != nil {
		return err
	}

	var scrubPairs []string
	for _, secret := range []string{a.tgToken, a.geminiKey, a.dbURL} {
		if secret != "" {
			scrubPairs = append(scrubPairs, secret, "[EXPUNGED]")
		}
	}
	a.scrubber = strings.NewReplacer(scrubPairs...)

	level := slog.LevelInfo
	if a.dry {
		level = slog.LevelDebug
	}
	a.slog = slog.New(slog.NewTextHandler(env.Stderr, &slog.HandlerOptions{Level: level}))

	groups, err := a.loadConfig(env)
	if err != nil {
		return err
	}

	store, err := cursor.Open(ctx, cursor.Options{
		DatabaseURL: a.dbURL,
		StateDir:    a.stateDir,
	})
	if err != nil {
		return fmt.Errorf("opening cursor store: %w", err)
	}
	defer store.Close()

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}

	switch command := env.Args[0]; command {
	case "run":
		return a.runEngine(ctx, groups, store)
	case "groups":
		return a.listGroups(ctx, env, groups, store)
	case "prune":
		return a.prune(ctx, groups, store)
	case "reenable":
		if len(env.Args) != 2 {
			return fmt.Errorf("%w: reenable command expects a source URL", cli.ErrInvalidArgs)
		}
		return a.reenable(ctx, groups, store, env.Args[1])
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

func (a *app) loadConfig(env *cli.Env) ([]*config.Group, error) {
	path := cmp.Or(a.configPath, filepath.Join(a.stateDir, "config.star"))
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	groups, err := config.Parse(string(src), func(msg string) { env.Logf("%s", msg) })
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return groups, nil
}

func (a *app) runEngine(ctx context.Context, groups []*config.Group, store cursor.Store) error {
	if a.tgToken == "" && !a.dry {
		return fmt.Errorf("%w: TELEGRAM_TOKEN is not set", cli.ErrInvalidArgs)
	}

	var translator engine.Translator
	if a.geminiKey != "" {
		translator = translate.New(translate.Config{
			APIKey:   a.geminiKey,
			Scrubber: a.scrubber,
			Logger:   a.slog,
		})
	}

	e := engine.New(engine.Config{
		Groups:  groups,
		Store:   store,
		Fetcher: fetch.New(fetch.Config{Logger: a.slog}),
		Sender: telegram.New(telegram.Config{
			Token:    a.tgToken,
			Scrubber: a.scrubber,
			Logger:   a.slog,
		}),
		Translator: translator,
		LockPath:   filepath.Join(a.stateDir, "run.lock"),
		DryRun:     a.dry,
		Logger:     a.slog,
	})
	return e.Run(ctx)
}

func (a *app) listGroups(ctx context.Context, env *cli.Env, groups []*config.Group, store cursor.Store) error {
	w := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSOURCES\tINTERVAL\tMODE\tLAST RUN")
	for _, g := range groups {
		lastRun, err := store.LastRun(ctx, g.Key)
		if err != nil {
			return err
		}
		last := "never"
		if !lastRun.IsZero() {
			last = lastRun.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", g.Key, len(g.URLs), g.Interval, g.Mode, last)
	}
	return w.Flush()
}

func (a *app) reenable(ctx context.Context, groups []*config.Group, store cursor.Store, url string) error {
	var found bool
	for _, g := range groups {
		st, err := store.Source(ctx, g.Key, url)
		if err != nil {
			return err
		}
		if st == nil {
			continue
		}
		found = true
		st.Disabled = false
		st.ErrorCount = 0
		st.LastError = ""
		if err := store.SaveSource(ctx, g.Key, url, st); err != nil {
			return err
		}
		a.slog.Info("reenabled", "group", g.Key, "source", url)
	}
	if !found {
		return fmt.Errorf("no stored state for source %q", url)
	}
	return nil
}

func (a *app) prune(ctx context.Context, groups []*config.Group, store cursor.Store) error {
	now := time.Now()
	for _, g := range groups {
		if g.Retention <= 0 {
			continue
		}
		pruned, err := store.Prune(ctx, g.Key, now.Add(-g.Retention))
		if err != nil {
			return fmt.Errorf("pruning group %q: %w", g.Key, err)
		}
		a.slog.Info("pruned", "group", g.Key, "count", pruned)
	}
	return nil
}
