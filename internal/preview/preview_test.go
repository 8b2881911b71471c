package preview_test

// Notes:
// - goldmark output details (whitespace, attribute order) are not asserted;
//   tests look for the elements that matter to a preview reader
// - path rewriting tests use forward-slash bases and are skipped on Windows

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/alnah/go-scimd/internal/preview"
)

// ---------------------------------------------------------------------------
// TestRewriteAssetPaths
// ---------------------------------------------------------------------------

func TestRewriteAssetPaths(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}

	tests := []struct {
		name         string
		html         string
		base         string
		wantContains []string
		wantExcludes []string
	}{
		{
			name:         "image in assets",
			html:         `<img src="assets/abc.svg">`,
			base:         "/book/src",
			wantContains: []string{`src="file:///book/src/assets/abc.svg"`},
		},
		{
			name:         "object data",
			html:         `<object data="assets/abc.svg" type="image/svg+xml"></object>`,
			base:         "/book/src",
			wantContains: []string{`data="file:///book/src/assets/abc.svg"`},
		},
		{
			name:         "links untouched",
			html:         `<a href="bibliography.html#knuth84">[1]</a>`,
			base:         "/book/src",
			wantContains: []string{`href="bibliography.html#knuth84"`},
		},
		{
			name:         "absolute path untouched",
			html:         `<img src="/abs/logo.png">`,
			base:         "/book/src",
			wantContains: []string{`src="/abs/logo.png"`},
		},
		{
			name:         "url untouched",
			html:         `<img src="https://example.com/a.png">`,
			base:         "/book/src",
			wantContains: []string{`src="https://example.com/a.png"`},
		},
		{
			name:         "data uri untouched",
			html:         `<img src="data:image/png;base64,AAAA">`,
			base:         "/book/src",
			wantContains: []string{`src="data:image/png;base64,AAAA"`},
		},
		{
			name:         "traversal untouched",
			html:         `<img src="../../etc/passwd">`,
			base:         "/book/src",
			wantContains: []string{`src="../../etc/passwd"`},
			wantExcludes: []string{"file://"},
		},
		{
			name:         "empty base returns input",
			html:         `<img src="assets/a.svg">`,
			base:         "",
			wantContains: []string{`<img src="assets/a.svg">`},
		},
		{
			name:         "full document keeps structure",
			html:         `<!DOCTYPE html><html><head></head><body><img src="assets/a.svg"></body></html>`,
			base:         "/book/src",
			wantContains: []string{"<!DOCTYPE html>", "<body>", "file:///book/src/assets/a.svg"},
		},
		{
			name:         "fragment not wrapped",
			html:         `<p>hi</p>`,
			base:         "/book/src",
			wantExcludes: []string{"<html>", "<body>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := preview.RewriteAssetPaths(tt.html, tt.base)
			if err != nil {
				t.Fatalf("RewriteAssetPaths() error = %v", err)
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
			for _, bad := range tt.wantExcludes {
				if strings.Contains(got, bad) {
					t.Errorf("output should not contain %q:\n%s", bad, got)
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestInjectCSS
// ---------------------------------------------------------------------------

func TestInjectCSS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		css  string
		want string
	}{
		{
			name: "before head close",
			html: "<html><head></head><body></body></html>",
			css:  "p{}",
			want: "<html><head><style>p{}</style></head><body></body></html>",
		},
		{
			name: "after body open",
			html: `<body class="x"><p>a</p></body>`,
			css:  "p{}",
			want: `<body class="x"><style>p{}</style><p>a</p></body>`,
		},
		{
			name: "prepended",
			html: "<p>a</p>",
			css:  "p{}",
			want: "<style>p{}</style><p>a</p>",
		},
		{
			name: "empty css",
			html: "<p>a</p>",
			css:  "",
			want: "<p>a</p>",
		},
		{
			name: "style close escaped",
			html: "<p>a</p>",
			css:  "p{}</style><script>",
			want: `<style>p{}<\/style><script></style><p>a</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := preview.InjectCSS(tt.html, tt.css); got != tt.want {
				t.Errorf("InjectCSS() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestConverter
// ---------------------------------------------------------------------------

func TestConverter_ToHTML(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}

	c := preview.NewConverter("/book/src")
	md := "# Results\n\n## Setup\n\n" +
		`<figure id="plot" class="figure"><object data="assets/abc.svg" type="image/svg+xml"/></object><figcaption>Figure 1.1 Plot</figcaption></figure>` +
		"\n\n```go\nfmt.Println(1)\n```\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"

	got, err := c.ToHTML(context.Background(), preview.Page{Title: "Results", File: "results.html", Markdown: md}, false)
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}

	for _, want := range []string{
		"<title>Results</title>",
		`<figure id="plot" class="figure">`,
		"file:///book/src/assets/abc.svg",
		"<table>",
		`class="chroma"`,
		`<nav class="toc">`,
		`<a href="#setup">1.1. Setup</a>`,
		"<style>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ToHTML() missing %q", want)
		}
	}
	if strings.Contains(got, preview.IndexFile) {
		t.Error("ToHTML() without nav should not link the index")
	}
}

func TestConverter_ToHTML_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := preview.NewConverter("").ToHTML(ctx, preview.Page{File: "a.html", Markdown: "x"}, false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ToHTML() error = %v, want context.Canceled", err)
	}
}

func TestConverter_WriteSite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := preview.NewConverter("")
	pages := []preview.Page{
		{Title: "Intro", File: "intro.html", Markdown: "# Intro"},
		{Title: "A & B", File: "ab.html", Markdown: "# AB"},
	}

	index, err := c.WriteSite(context.Background(), dir, pages)
	if err != nil {
		t.Fatalf("WriteSite() error = %v", err)
	}
	if index != filepath.Join(dir, preview.IndexFile) {
		t.Errorf("index = %q", index)
	}

	data, err := os.ReadFile(index)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`<a href="intro.html">Intro</a>`, "A &amp; B"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("index missing %q:\n%s", want, data)
		}
	}

	page, err := os.ReadFile(filepath.Join(dir, "intro.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(page), `href="index.html"`) {
		t.Error("page should link back to the index")
	}
}

func TestConverter_WriteSite_InvalidName(t *testing.T) {
	t.Parallel()

	tests := []string{"", "index.html", "../x.html", `a\b.html`}
	for _, name := range tests {
		_, err := preview.NewConverter("").WriteSite(context.Background(), t.TempDir(),
			[]preview.Page{{Title: "x", File: name}})
		if !errors.Is(err, preview.ErrPreviewIO) {
			t.Errorf("WriteSite(%q) error = %v, want ErrPreviewIO", name, err)
		}
	}
}

// ---------------------------------------------------------------------------
// TestFileName
// ---------------------------------------------------------------------------

func TestFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"intro.md", "intro.html"},
		{"part1/ch2.md", "part1-ch2.html"},
		{"index.md", "page.html"},
		{"", "page.html"},
		{"Preface", "Preface.html"},
	}
	for _, tt := range tests {
		if got := preview.FileName(tt.in); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
