package fileutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/alnah/go-scimd/internal/fileutil"
)

// ---------------------------------------------------------------------------
// TestValidateExtension - Extension validation
// ---------------------------------------------------------------------------

func TestValidateExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		extension string
		wantErr   error
	}{
		{name: "valid extension svg", extension: "svg"},
		{name: "valid extension tex", extension: "tex"},
		{name: "empty extension", extension: "", wantErr: fileutil.ErrExtensionEmpty},
		{name: "forward slash path traversal", extension: "../etc/passwd", wantErr: fileutil.ErrExtensionPathTraversal},
		{name: "backslash path traversal", extension: "..\\windows", wantErr: fileutil.ErrExtensionPathTraversal},
		{name: "null byte injection", extension: "svg\x00exe", wantErr: fileutil.ErrExtensionPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := fileutil.ValidateExtension(tt.extension)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateExtension(%q) = %v, want %v", tt.extension, err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestWriteFileAtomic - Temp file + rename writes
// ---------------------------------------------------------------------------

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "chapter.md")
	if err := fileutil.WriteFileAtomic(path, []byte("# One\n"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# One\n" {
		t.Errorf("content = %q", data)
	}

	if err := fileutil.WriteFileAtomic(path, []byte("# Two\n"), 0o644); err != nil {
		t.Fatalf("overwrite error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "# Two\n" {
		t.Errorf("content after overwrite = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (no temp leftovers)", len(entries))
	}

	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != 0o644 {
			t.Errorf("mode = %v, want 0644", info.Mode().Perm())
		}
	}
}

func TestWriteFileAtomic_RenameError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ch1.md")
	diskFull := errors.New("disk full")

	err := fileutil.WriteFileAtomic(path, []byte("x"), 0o644,
		fileutil.WithRename(func(string, string) error { return diskFull }))
	if !errors.Is(err, diskFull) {
		t.Fatalf("WriteFileAtomic() error = %v, want %v", err, diskFull)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory has %d entries after failed rename, want 0", len(entries))
	}
}

// ---------------------------------------------------------------------------
// TestFileExists / TestDirExists
// ---------------------------------------------------------------------------

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "a.tex")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		wantFile bool
		wantDir  bool
	}{
		{"regular file", file, true, false},
		{"directory", dir, false, true},
		{"missing", filepath.Join(dir, "missing"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := fileutil.FileExists(tt.path); got != tt.wantFile {
				t.Errorf("FileExists(%q) = %v, want %v", tt.path, got, tt.wantFile)
			}
			if got := fileutil.DirExists(tt.path); got != tt.wantDir {
				t.Errorf("DirExists(%q) = %v, want %v", tt.path, got, tt.wantDir)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestIsFilePath / TestIsUnder
// ---------------------------------------------------------------------------

func TestIsFilePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"book", false},
		{"my-book", false},
		{"./book.yaml", true},
		{"/abs/book.yaml", true},
		{"C:\\books\\book.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			if got := fileutil.IsFilePath(tt.in); got != tt.want {
				t.Errorf("IsFilePath(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsUnder(t *testing.T) {
	t.Parallel()

	base := filepath.Join(string(filepath.Separator), "srv", "cache")
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"child", filepath.Join(base, "a.svg"), true},
		{"nested", filepath.Join(base, "x", "a.svg"), true},
		{"dir itself", base, true},
		{"traversal", filepath.Join(base, "..", "etc", "passwd"), false},
		{"sibling prefix", base + "-other", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := fileutil.IsUnder(tt.path, base); got != tt.want {
				t.Errorf("IsUnder(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
