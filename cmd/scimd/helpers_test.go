package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-scimd/internal/render/rendertest"
)

// testEnv returns an Environment with captured output, an empty process
// environment and a simulated renderer.
func testEnv(t *testing.T) (*Environment, *bytes.Buffer, *bytes.Buffer, *rendertest.Runner) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner := rendertest.NewRunner()
	env := &Environment{
		Now:     func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		Stdin:   strings.NewReader(""),
		Stdout:  &stdout,
		Stderr:  &stderr,
		Getenv:  func(string) string { return "" },
		Environ: func() []string { return nil },
		LookPath: func(name string) (string, error) {
			return "", errors.New(name + ": not found")
		},
		Runner: runner,
	}
	return env, &stdout, &stderr, runner
}

// withVars makes env report the given variables.
func withVars(env *Environment, vars map[string]string) {
	env.Getenv = func(k string) string { return vars[k] }
	env.Environ = func() []string {
		out := make([]string, 0, len(vars))
		for k, v := range vars {
			out = append(out, k+"="+v)
		}
		return out
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func globCount(t *testing.T, pattern string) int {
	t.Helper()
	matches, err := filepath.Glob(pattern)
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}
