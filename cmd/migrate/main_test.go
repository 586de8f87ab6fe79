package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
)

type fakeMigrator struct {
	upSteps   []int
	downSteps []int
	version   int64
	applied   int
	err       error
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	return f.err
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = append(f.downSteps, steps)
	return f.err
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, nil
}

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-direction= DOWN ", "-steps=2"}, env(map[string]string{envPostgresDSN: " postgres://x "}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.direction != "down" || opts.steps != 2 || opts.dsn != "postgres://x" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = parseOptions([]string{"-dsn=postgres://flag"}, env(map[string]string{envPostgresDSN: "postgres://env"}))
	if err != nil || opts.dsn != "postgres://flag" || opts.direction != "up" {
		t.Fatalf("flag dsn must win over env: %+v %v", opts, err)
	}

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing dsn", args: []string{"-direction=status"}, want: envPostgresDSN},
		{name: "bad direction", args: []string{"-direction=sideways", "-dsn=x"}, want: "unsupported direction"},
		{name: "negative steps", args: []string{"-steps=-1", "-dsn=x"}, want: "steps must be >= 0"},
		{name: "unknown flag", args: []string{"-force"}, want: "flag provided but not defined"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseOptions(tc.args, env(nil))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	m := &fakeMigrator{version: 3, applied: 3}
	var out bytes.Buffer
	if err := execute(ctx, m, options{direction: "up"}, &out); err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(m.upSteps) != 1 || m.upSteps[0] != 0 {
		t.Fatalf("expected up with all steps, got %v", m.upSteps)
	}
	if out.String() != "migrate up ok: version=3 applied=3\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}

	out.Reset()
	if err := execute(ctx, m, options{direction: "down"}, &out); err != nil {
		t.Fatalf("down: %v", err)
	}
	if len(m.downSteps) != 1 || m.downSteps[0] != 1 {
		t.Fatalf("down without steps must roll back one migration, got %v", m.downSteps)
	}

	out.Reset()
	if err := execute(ctx, m, options{direction: "status"}, &out); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(m.upSteps) != 1 || len(m.downSteps) != 1 {
		t.Fatal("status must not change the schema")
	}

	broken := &fakeMigrator{err: errors.New("lock timeout")}
	if err := execute(ctx, broken, options{direction: "up"}, &out); err == nil || !strings.Contains(err.Error(), "migrate up failed") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
