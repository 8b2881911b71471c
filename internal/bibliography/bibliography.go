// Package bibliography reads BibTeX entry keys and renders a bibliography
// page through bib2xhtml.
//
// Keys always seed the reference table with ordinal labels ("[1]", "[2]")
// in file order. When bib2xhtml is configured its alpha labels ("[Knu84]")
// replace the ordinals, so that references and the rendered page agree.
package bibliography

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nickng/bibtex"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/alnah/go-scimd/internal/render"
)

// Tool is the bib2xhtml script name inside its directory.
const Tool = "bib2xhtml.pl"

// Title is the heading of the generated bibliography chapter.
const Title = "Bibliography"

// Sentinel errors for bibliography operations.
var (
	ErrInvalidBibliography = errors.New("invalid bibliography")
	ErrBibliographyIO      = errors.New("bibliography I/O failure")
)

const (
	listOpen  = `<dl class="bib2xhtml">`
	listClose = `</dl>`
	// Reported by bib2xhtml when bibtex failed.
	failureMarker = "error messages)"
)

// parseMu serializes bibtex.Parse, which keeps its parser state in
// package variables.
var parseMu sync.Mutex

// ParseKeys returns the entry keys of a BibTeX database in file order.
// Repeated keys are reported once. Lines starting with % are comments and
// are dropped before parsing; @string, @preamble and @comment define no key.
func ParseKeys(bib []byte) ([]string, error) {
	parseMu.Lock()
	db, err := bibtex.Parse(bytes.NewReader(stripLineComments(bib)))
	parseMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBibliography, err)
	}

	var keys []string
	seen := make(map[string]bool)
	for _, e := range db.Entries {
		if seen[e.CiteName] {
			continue
		}
		seen[e.CiteName] = true
		keys = append(keys, e.CiteName)
	}
	return keys, nil
}

func stripLineComments(bib []byte) []byte {
	lines := bytes.Split(bib, []byte("\n"))
	kept := lines[:0]
	for _, l := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(l), []byte("%")) {
			continue
		}
		kept = append(kept, l)
	}
	return bytes.Join(kept, []byte("\n"))
}

// Load reads the BibTeX file at path and returns its keys.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided bibliography
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBibliographyIO, err)
	}
	keys, err := ParseKeys(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return keys, nil
}

// Labels numbers keys from 1 in order: {"knuth84": "[1]", ...}.
func Labels(keys []string) map[string]string {
	labels := make(map[string]string, len(keys))
	for i, k := range keys {
		labels[k] = "[" + strconv.Itoa(i+1) + "]"
	}
	return labels
}

// Fragment is the rendered bibliography list.
type Fragment struct {
	// HTML is the <dl class="bib2xhtml"> element with <a name> anchors
	// rewritten to <a id>.
	HTML string
	// Labels maps entry keys to the labels printed by bib2xhtml.
	Labels map[string]string
}

// Render runs bib2xhtml from toolDir on the database at bibPath.
func Render(ctx context.Context, runner render.CommandRunner, bibPath, toolDir string) (*Fragment, error) {
	abs, err := filepath.Abs(bibPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBibliographyIO, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBibliographyIO, err)
	}
	dir, err := filepath.Abs(toolDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBibliographyIO, err)
	}

	cmd := render.Command{
		Name: filepath.Join(dir, Tool),
		Args: []string{"-s", "alpha", "-u", "-U", abs},
		Dir:  dir,
	}
	stdout, stderr, err := runner.Run(ctx, cmd)
	if strings.Contains(stderr, failureMarker) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBibliography, strings.TrimSpace(stderr))
	}
	if err != nil {
		return nil, &render.ToolError{Tool: Tool, Output: stderr, Err: err}
	}
	return parse(stdout)
}

// parse extracts the list element from bib2xhtml output.
func parse(stdout string) (*Fragment, error) {
	list, ok := extractList(stdout)
	if !ok {
		return nil, fmt.Errorf("%w: no %s element in bib2xhtml output", ErrInvalidBibliography, listOpen)
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(list), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBibliography, err)
	}

	labels := make(map[string]string)
	var buf bytes.Buffer
	for _, n := range nodes {
		walk(n, labels)
		if err := html.Render(&buf, n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBibliography, err)
		}
	}
	return &Fragment{HTML: buf.String(), Labels: labels}, nil
}

// extractList returns the lines from the list opener through its closer.
func extractList(stdout string) (string, bool) {
	var out []string
	inside := false
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if !inside {
			if strings.TrimSpace(line) != listOpen {
				continue
			}
			inside = true
		}
		out = append(out, line)
		if strings.TrimSpace(line) == listClose {
			break
		}
	}
	if !inside {
		return "", false
	}
	return strings.Join(out, "\n"), true
}

// walk renames anchor name attributes to id and records the label of each
// <dt><a id="key">[label]</a></dt> term.
func walk(n *html.Node, labels map[string]string) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		for i, a := range n.Attr {
			if a.Namespace == "" && a.Key == "name" {
				n.Attr[i].Key = "id"
			}
		}
		if n.Parent != nil && n.Parent.DataAtom == atom.Dt {
			if key := attr(n, "id"); key != "" {
				if label := strings.TrimSpace(text(n)); label != "" {
					labels[key] = bracket(label)
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, labels)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(text(c))
	}
	return sb.String()
}

func bracket(label string) string {
	if strings.HasPrefix(label, "[") && strings.HasSuffix(label, "]") {
		return label
	}
	return "[" + label + "]"
}

// Page returns the Markdown chapter holding the rendered bibliography.
func Page(frag *Fragment) string {
	return "# " + Title + "\n\n" + frag.HTML + "\n"
}
