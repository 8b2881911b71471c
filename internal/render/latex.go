package render

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/source"
)

// equationDocument wraps math content in a standalone document sized to
// the formula.
const equationDocument = `\documentclass[preview]{standalone}
\usepackage{amsmath}
\usepackage{amssymb}
\begin{document}
$\displaystyle
%s
$
\end{document}
`

// LatexError is a compilation failure reported by latex on its terminal
// output.
type LatexError struct {
	Message string // text after "! "
	Line    int    // 0 when latex did not report a line
	Context string // source excerpt following "l.<n>"
}

func (e *LatexError) Error() string {
	if e.Line == 0 {
		return "latex: " + e.Message
	}
	return fmt.Sprintf("latex: %s (line %d: %s)", e.Message, e.Line, e.Context)
}

func (e *LatexError) Unwrap() error { return ErrRenderBackend }

// parseLatexError extracts the first error message and its line context
// from latex terminal output. It returns nil when none is found.
func parseLatexError(output string) *LatexError {
	var le *LatexError
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case le == nil && strings.HasPrefix(line, "! "):
			le = &LatexError{Message: strings.TrimSpace(strings.TrimPrefix(line, "! "))}
		case le != nil && le.Line == 0 && strings.HasPrefix(line, "l."):
			num, rest, _ := strings.Cut(line[2:], " ")
			if n, err := strconv.Atoi(num); err == nil {
				le.Line = n
				le.Context = strings.TrimSpace(rest)
			}
		}
	}
	return le
}

// texTools runs the latex to dvi to svg chain inside the cache directory.
type texTools struct {
	store  *cache.Store
	runner CommandRunner
	logger *slog.Logger
}

// toSVG converts <id>.tex into <id>.svg, skipping steps whose output exists.
// A failing step removes its own output, which would otherwise count as
// cached on the next run.
func (t *texTools) toSVG(ctx context.Context, id string, scale float64) error {
	if t.store.Has(id, "svg") {
		return nil
	}

	if !t.store.Has(id, "dvi") {
		stdout, stderr, err := t.runner.Run(ctx, Command{
			Name: "latex",
			Args: []string{"-interaction=nonstopmode", "-halt-on-error", cache.Name(id, "tex")},
			Dir:  t.store.Dir(),
		})
		if err != nil {
			t.store.Discard(id, "dvi")
			if errors.Is(err, ErrBinaryNotFound) || ctx.Err() != nil {
				return err
			}
			if le := parseLatexError(stdout); le != nil {
				return le
			}
			return &ToolError{Tool: "latex", Output: stderr, Err: err}
		}
		if !t.store.Has(id, "dvi") {
			return &ToolError{Tool: "latex", Output: "no dvi output for " + id}
		}
	}

	_, stderr, err := t.runner.Run(ctx, Command{
		Name: "dvisvgm",
		Args: []string{
			"-b", "1",
			"--font-format=woff",
			"--zoom=" + strconv.FormatFloat(scale, 'f', -1, 64),
			"-o", cache.Name(id, "svg"),
			cache.Name(id, "dvi"),
		},
		Dir: t.store.Dir(),
	})
	if err != nil {
		t.store.Discard(id, "svg")
		if errors.Is(err, ErrBinaryNotFound) || ctx.Err() != nil {
			return err
		}
		return &ToolError{Tool: "dvisvgm", Output: stderr, Err: err}
	}
	if strings.Contains(stderr, "error:") {
		t.store.Discard(id, "svg")
		return &ToolError{Tool: "dvisvgm", Output: stderr}
	}
	if !t.store.Has(id, "svg") {
		return &ToolError{Tool: "dvisvgm", Output: "no svg output for " + id}
	}
	return nil
}

// render writes the tex source for content unless cached, then converts it.
func (t *texTools) render(ctx context.Context, span source.Span, tex string, scale float64) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := t.store.Identify(span.Text)
	unlock := t.store.Lock(id)
	defer unlock()

	if t.store.Has(id, "svg") {
		t.logger.Debug("cache hit", "hash", id)
		return cachedArtifact(id, "svg", span), nil
	}
	if _, err := t.store.WriteFile(id, "tex", []byte(tex)); err != nil {
		return nil, err
	}
	if err := t.toSVG(ctx, id, scale); err != nil {
		return nil, err
	}
	return &Artifact{Hash: id, Image: cache.Name(id, "svg"), Source: span.Text}, nil
}

// LatexBackend renders complete LaTeX documents.
type LatexBackend struct {
	tools *texTools
}

// Render compiles span.Text as a LaTeX document.
func (b *LatexBackend) Render(ctx context.Context, span source.Span, scale float64) (*Artifact, error) {
	logFound(b.tools.logger, "latex figure", span)
	return b.tools.render(ctx, span, span.Text, scale)
}

// EquationBackend renders math content through LaTeX.
type EquationBackend struct {
	tools *texTools
}

// Render typesets span.Text as display math.
func (b *EquationBackend) Render(ctx context.Context, span source.Span, scale float64) (*Artifact, error) {
	logFound(b.tools.logger, "equation", span)
	return b.tools.render(ctx, span, fmt.Sprintf(equationDocument, span.Text), scale)
}
