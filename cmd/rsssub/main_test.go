// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/penggan00/rss-sub000/internal/cli"
	"github.com/penggan00/rss-sub000/internal/testutil"
)

const testConfig = `groups = [
    group(
        key = "news",
        urls = ["https://example.com/rss"],
        interval = 900,
        chat_id = "123",
    ),
]`

func run(t *testing.T, stateDir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer
	env := &cli.Env{
		Args: args,
		Getenv: func(key string) string {
			if key == "STATE_DIRECTORY" {
				return stateDir
			}
			return ""
		},
		Stdout: &outBuf,
		Stderr: &errBuf,
	}
	err = cli.Run(context.Background(), new(app), env)
	return outBuf.String(), errBuf.String(), err
}

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	stateDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(stateDir, "config.star"), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return stateDir
}

func TestRequiresCommand(t *testing.T) {
	t.Parallel()

	_, _, err := run(t, writeConfig(t, testConfig))
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	_, _, err := run(t, writeConfig(t, testConfig), "frobnicate")
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	t.Parallel()

	_, _, err := run(t, t.TempDir(), "groups")
	if err == nil || !strings.Contains(err.Error(), "reading config") {
		t.Fatalf("want a config read error, got %v", err)
	}
}

func TestListGroups(t *testing.T) {
	t.Parallel()

	stdout, _, err := run(t, writeConfig(t, testConfig), "groups")
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	testutil.AssertEqual(t, len(lines), 2)
	if !strings.Contains(lines[1], "news") || !strings.Contains(lines[1], "never") {
		t.Fatalf("unexpected groups output: %q", stdout)
	}
}

func TestRunRequiresToken(t *testing.T) {
	t.Parallel()

	_, _, err := run(t, writeConfig(t, testConfig), "run")
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}
