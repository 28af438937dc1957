// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
)

func testEnv(args ...string) (*Env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &Env{
		Args:   args,
		Getenv: func(string) string { return "" },
		Stdout: &stdout,
		Stderr: &stderr,
	}, &stdout, &stderr
}

func TestRunPassesArgs(t *testing.T) {
	t.Parallel()

	var got []string
	app := AppFunc(func(_ context.Context, env *Env) error {
		got = append(got, env.Args...)
		return nil
	})

	env, _, _ := testEnv("hello", "world")
	if err := Run(context.Background(), app, env); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Fatalf("unexpected args: %v", got)
	}
}

func TestRunVersionFlag(t *testing.T) {
	t.Parallel()

	app := AppFunc(func(context.Context, *Env) error {
		t.Error("the app must not run with -version")
		return nil
	})

	env, _, stderr := testEnv("-version")
	err := Run(context.Background(), app, env)
	if !errors.Is(err, ErrExitVersion) {
		t.Fatalf("want ErrExitVersion, got %v", err)
	}
	if isPrintableError(err) {
		t.Fatal("ErrExitVersion must not be printed")
	}
	if stderr.Len() == 0 {
		t.Fatal("version output is empty")
	}
}

func TestRunUnknownFlag(t *testing.T) {
	t.Parallel()

	app := AppFunc(func(context.Context, *Env) error { return nil })

	env, _, stderr := testEnv("-frobnicate")
	err := Run(context.Background(), app, env)
	if err == nil {
		t.Fatal("expected an error")
	}
	if isPrintableError(err) {
		t.Fatal("flag errors are already printed by the flag package")
	}
	if !strings.Contains(stderr.String(), "frobnicate") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestRunAppFlags(t *testing.T) {
	t.Parallel()

	var verbose bool
	app := &flagApp{fn: func(fs *flag.FlagSet) {
		fs.BoolVar(&verbose, "verbose", false, "Be more verbose.")
	}}

	env, _, _ := testEnv("-verbose")
	if err := Run(context.Background(), app, env); err != nil {
		t.Fatal(err)
	}
	if !verbose {
		t.Fatal("the app's flag was not parsed")
	}
}

type flagApp struct{ fn func(*flag.FlagSet) }

func (a *flagApp) Run(context.Context, *Env) error { return nil }

func (a *flagApp) Flags(fs *flag.FlagSet) { a.fn(fs) }
