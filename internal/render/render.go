// Package render turns directive content into artifacts: an image file in
// the content-addressed cache plus, for some backends, an intermediate
// textual form that native typesetting targets can embed directly.
//
// Every backend checks the cache before doing work. Once the image file
// of a content id exists, rendering that content again never spawns a
// process.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/source"
)

// Sentinel errors for rendering.
var (
	ErrRenderBackend  = errors.New("renderer backend failed")
	ErrBinaryNotFound = errors.New("renderer binary not found")
	ErrUnknownEngine  = errors.New("unknown math engine")
)

// Default zoom factors for display and inline math.
const (
	BlockScale  = 1.6
	InlineScale = 1.3
	FigureScale = 1.0
)

// Artifact is the rendered form of one piece of content.
type Artifact struct {
	Hash         string // content id
	Image        string // file name relative to the cache directory
	Intermediate string // renderer-native text, empty when there is none
	Source       string // the content the artifact was rendered from
}

// Text returns the intermediate form, or the source content when the
// backend produced none.
func (a *Artifact) Text() string {
	if a.Intermediate != "" {
		return a.Intermediate
	}
	return a.Source
}

// Backend renders a content span at a given scale.
// Implementations must be idempotent for identical content and must not
// write anywhere but the cache.
type Backend interface {
	Render(ctx context.Context, span source.Span, scale float64) (*Artifact, error)
}

// Set holds the backend used for each directive family.
type Set struct {
	Latex       Backend // full LaTeX documents (figures)
	Gnuplot     Backend // gnuplot scripts typeset through LaTeX (figures)
	GnuplotOnly Backend // gnuplot scripts rendered straight to SVG (figures)
	Equation    Backend // math content, display and inline
}

// Engine selects how equations are rendered.
type Engine string

// Supported math engines.
const (
	EngineLatex  Engine = "latex"
	EngineMathML Engine = "mathml"
)

// ParseEngine converts a config value to an Engine. Empty means latex.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(EngineLatex):
		return EngineLatex, nil
	case string(EngineMathML):
		return EngineMathML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEngine, s)
}

// NewSet wires the default backends to a cache and a command runner.
// A nil logger discards diagnostics.
func NewSet(store *cache.Store, runner CommandRunner, engine Engine, logger *slog.Logger) Set {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tools := &texTools{store: store, runner: runner, logger: logger}

	set := Set{
		Latex:       &LatexBackend{tools: tools},
		Gnuplot:     &GnuplotBackend{tools: tools},
		GnuplotOnly: &GnuplotOnlyBackend{store: store, runner: runner, logger: logger},
		Equation:    &EquationBackend{tools: tools},
	}
	if engine == EngineMathML {
		set.Equation = NewMathMLBackend(store, logger)
	}
	return set
}

// ToolError reports a failing external tool with its diagnostic output.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s failed: %s", e.Tool, msg)
}

// Unwrap exposes both the backend sentinel and the process error.
func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRenderBackend}
	}
	return []error{ErrRenderBackend, e.Err}
}

// cached builds the artifact for an id whose image already exists.
func cachedArtifact(id, ext string, span source.Span) *Artifact {
	return &Artifact{Hash: id, Image: cache.Name(id, ext), Source: span.Text}
}

func logFound(logger *slog.Logger, kind string, span source.Span) {
	logger.Debug("found "+kind,
		"start", span.Start.String(),
		"end", span.End.String(),
	)
}
