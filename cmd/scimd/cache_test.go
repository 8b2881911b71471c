package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildInto runs a build of src with the given cache and returns stderr on
// failure.
func buildInto(t *testing.T, src, cacheDir string, extra ...string) {
	t.Helper()
	env, _, stderr, _ := testEnv(t)
	args := append([]string{"scimd", "build", src, "-o", filepath.Join(t.TempDir(), "out"), "--cache-dir", cacheDir}, extra...)
	if code := runMain(args, env); code != ExitSuccess {
		t.Fatalf("build = %d; stderr:\n%s", code, stderr.String())
	}
}

// ---------------------------------------------------------------------------
// TestRunCache - cache subcommands
// ---------------------------------------------------------------------------

func TestRunCache_Stats(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	buildInto(t, newBook(t), cacheDir, "--manifest")

	env, stdout, stderr, _ := testEnv(t)
	if code := runMain([]string{"scimd", "cache", "stats", "--json", "--cache-dir", cacheDir}, env); code != ExitSuccess {
		t.Fatalf("cache stats = %d; stderr:\n%s", code, stderr.String())
	}
	var st cacheStats
	if err := json.Unmarshal(stdout.Bytes(), &st); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, stdout.String())
	}
	if st.Entries != 1 || st.Files == 0 || st.Bytes == 0 {
		t.Errorf("stats = %+v, want one entry", st)
	}
	if !st.Manifest || st.Recorded != 1 || st.Builds != 1 || st.LastBuild == "" {
		t.Errorf("manifest stats = %+v", st)
	}
}

func TestRunCache_StatsText(t *testing.T) {
	t.Parallel()

	env, stdout, _, _ := testEnv(t)
	if code := runMain([]string{"scimd", "cache", "stats", "--cache-dir", t.TempDir()}, env); code != ExitSuccess {
		t.Fatalf("cache stats = %d", code)
	}
	if !strings.Contains(stdout.String(), "entries:   0") || !strings.Contains(stdout.String(), "manifest:  none") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunCache_Prune(t *testing.T) {
	t.Parallel()

	src := newBook(t)
	cacheDir := t.TempDir()
	buildInto(t, src, cacheDir, "--manifest")

	writeFile(t, filepath.Join(src, "01-intro.md"), "# Intro\n\nLet $y^3$ be given.\n")
	buildInto(t, src, cacheDir, "--manifest")
	if n := globCount(t, filepath.Join(cacheDir, "*.svg")); n != 2 {
		t.Fatalf("cache holds %d svg files before prune, want 2", n)
	}

	env, stdout, stderr, _ := testEnv(t)
	if code := runMain([]string{"scimd", "cache", "prune", "--dry-run", "--cache-dir", cacheDir}, env); code != ExitSuccess {
		t.Fatalf("dry run = %d; stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "would remove") {
		t.Errorf("dry run output = %q", stdout.String())
	}
	if n := globCount(t, filepath.Join(cacheDir, "*.svg")); n != 2 {
		t.Fatalf("dry run removed files: %d left", n)
	}

	env, stdout, stderr, _ = testEnv(t)
	if code := runMain([]string{"scimd", "cache", "prune", "--cache-dir", cacheDir}, env); code != ExitSuccess {
		t.Fatalf("prune = %d; stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "removed ") {
		t.Errorf("prune output = %q", stdout.String())
	}
	if n := globCount(t, filepath.Join(cacheDir, "*.svg")); n != 1 {
		t.Errorf("cache holds %d svg files after prune, want 1", n)
	}
}

func TestRunCache_PruneWithoutManifest(t *testing.T) {
	t.Parallel()

	env, _, stderr, _ := testEnv(t)
	if code := runMain([]string{"scimd", "cache", "prune", "--cache-dir", t.TempDir()}, env); code != ExitUsage {
		t.Errorf("prune = %d, want %d", code, ExitUsage)
	}
	if !strings.Contains(stderr.String(), "no manifest") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunCache_ExportImport(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	buildInto(t, newBook(t), cacheDir)
	archivePath := filepath.Join(t.TempDir(), "cache.tar.xz")

	env, _, stderr, _ := testEnv(t)
	if code := runMain([]string{"scimd", "cache", "export", archivePath, "--cache-dir", cacheDir}, env); code != ExitSuccess {
		t.Fatalf("export = %d; stderr:\n%s", code, stderr.String())
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	target := t.TempDir()
	env, _, stderr, _ = testEnv(t)
	if code := runMain([]string{"scimd", "cache", "import", archivePath, "--cache-dir", target}, env); code != ExitSuccess {
		t.Fatalf("import = %d; stderr:\n%s", code, stderr.String())
	}
	if n := globCount(t, filepath.Join(target, "*.svg")); n != 1 {
		t.Errorf("imported cache holds %d svg files, want 1", n)
	}
}

func TestRunCache_Usage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no subcommand", []string{"cache"}, ExitUsage},
		{"help", []string{"cache", "--help"}, ExitSuccess},
		{"unknown subcommand", []string{"cache", "clear"}, ExitUsage},
		{"export without path", []string{"cache", "export"}, ExitUsage},
		{"stats with argument", []string{"cache", "stats", "extra"}, ExitUsage},
		{"import missing archive", []string{"cache", "import", "/nonexistent/c.tar.xz"}, ExitIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env, _, _, _ := testEnv(t)
			args := append([]string{"scimd"}, tt.args...)
			args = append(args, "--cache-dir", t.TempDir())
			if tt.name == "help" || tt.name == "no subcommand" {
				args = append([]string{"scimd"}, tt.args...)
			}
			if got := runMain(args, env); got != tt.want {
				t.Errorf("runMain(%v) = %d, want %d", args, got, tt.want)
			}
		})
	}
}
