// Package preview turns processed chapters into standalone HTML pages for a
// quick look at the output without running mdbook.
//
// Chapters are converted with goldmark (GFM, footnotes, chroma code
// highlighting). Raw HTML is allowed because the HTML target emits
// <figure> and <object> elements. Asset paths are rewritten to file://
// URLs and a small stylesheet is injected.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/alnah/go-scimd/internal/fileutil"
)

// Sentinel errors for preview generation.
var (
	ErrHTMLConversion = errors.New("HTML conversion failed")
	ErrPreviewIO      = errors.New("preview I/O failure")
)

// IndexFile is the name of the generated table of pages.
const IndexFile = "index.html"

// tocDepth is the deepest heading level listed in a page outline.
const tocDepth = 3

// Stylesheet is injected into every page.
const Stylesheet = `body{max-width:50em;margin:2em auto;padding:0 1em;font-family:serif;line-height:1.5}
figure.figure{text-align:center;margin:1.5em 0}
figure.figure object{max-width:100%}
figcaption{font-style:italic}
div.equation{display:flex;align-items:center;margin:1em 0}
div.equation_inner{flex:1;text-align:center}
object.equation_inline{vertical-align:middle}
nav.toc{border-bottom:1px solid #ccc;margin-bottom:1em}
a.fig_ref,a.equ_ref,a.bib_ref{text-decoration:none}
`

var (
	crlfOrCR           = regexp.MustCompile(`\r\n?`)
	multipleBlankLines = regexp.MustCompile(`\n{3,}`)
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{if .Nav}}<p class="nav"><a href="` + IndexFile + `">Contents</a></p>
{{end}}{{.TOC}}
{{.Body}}
</body>
</html>`))

// Page is one chapter to preview.
type Page struct {
	Title    string
	File     string // output file name, e.g. "intro.html"
	Markdown string
}

// Converter renders Markdown pages to HTML.
type Converter struct {
	md goldmark.Markdown
	// AssetsBase is the directory asset paths are resolved against.
	// Empty leaves them relative.
	AssetsBase string
	// TOC adds a heading outline to each page.
	TOC bool
}

// NewConverter creates a Converter resolving assets against assetsBase.
func NewConverter(assetsBase string) *Converter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			gmhtml.WithXHTML(),
			gmhtml.WithUnsafe(),
		),
	)
	return &Converter{md: md, AssetsBase: assetsBase, TOC: true}
}

// ToHTML converts one page to a standalone HTML document.
// goldmark has no context support, so conversion runs in a goroutine and
// cancellation abandons it.
func (c *Converter) ToHTML(ctx context.Context, p Page, nav bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		out, err := c.convert(p, nav)
		done <- result{html: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}

func (c *Converter) convert(p Page, nav bool) (string, error) {
	var body bytes.Buffer
	if err := c.md.Convert([]byte(normalize(p.Markdown)), &body); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrHTMLConversion, p.File, err)
	}

	var toc string
	if c.TOC {
		toc = tableOfContents(body.String(), tocDepth)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Nav   bool
		TOC   template.HTML
		Body  template.HTML
	}{
		Title: p.Title,
		Nav:   nav,
		TOC:   template.HTML(toc),          // #nosec G203 -- generated from escaped headings
		Body:  template.HTML(body.String()), // #nosec G203 -- author content
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrHTMLConversion, p.File, err)
	}

	out, err := RewriteAssetPaths(page.String(), c.AssetsBase)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrHTMLConversion, p.File, err)
	}
	return InjectCSS(out, Stylesheet), nil
}

// WriteSite writes every page and an index into dir. Returns the index
// path.
func (c *Converter) WriteSite(ctx context.Context, dir string, pages []Page) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPreviewIO, err)
	}
	for _, p := range pages {
		if p.File == "" || p.File == IndexFile || strings.ContainsAny(p.File, `/\`) {
			return "", fmt.Errorf("%w: invalid page file name %q", ErrPreviewIO, p.File)
		}
		out, err := c.ToHTML(ctx, p, true)
		if err != nil {
			return "", err
		}
		if err := fileutil.WriteFileAtomic(filepath.Join(dir, p.File), []byte(out), 0o644); err != nil {
			return "", fmt.Errorf("%w: %v", ErrPreviewIO, err)
		}
	}

	index := filepath.Join(dir, IndexFile)
	if err := fileutil.WriteFileAtomic(index, []byte(indexPage(pages)), 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPreviewIO, err)
	}
	return index, nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Contents</title>
</head>
<body>
<h1>Contents</h1>
<ol>
{{range .}}<li><a href="{{.File}}">{{.Title}}</a></li>
{{end}}</ol>
</body>
</html>`))

func indexPage(pages []Page) string {
	var buf bytes.Buffer
	// Titles and file names are escaped by html/template; Execute cannot
	// fail on this fixed data shape.
	_ = indexTemplate.Execute(&buf, pages)
	return InjectCSS(buf.String(), Stylesheet)
}

// FileName derives a page file name from a chapter path: "intro/a.md"
// becomes "intro-a.html".
func FileName(chapterPath string) string {
	name := strings.TrimSuffix(filepath.ToSlash(chapterPath), filepath.Ext(chapterPath))
	name = strings.Trim(strings.ReplaceAll(name, "/", "-"), "-.")
	if name == "" || name == "index" {
		name = "page"
	}
	return name + ".html"
}

func normalize(content string) string {
	content = crlfOrCR.ReplaceAllString(content, "\n")
	return multipleBlankLines.ReplaceAllString(content, "\n\n")
}
