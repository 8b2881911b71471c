package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-scimd/internal/format"
	"github.com/alnah/go-scimd/internal/reftable"
	"github.com/alnah/go-scimd/internal/render"
	"github.com/alnah/go-scimd/internal/source"
)

// FragmentExt is the extension of fragment files loaded by directives
// without a body.
const FragmentExt = ".tex"

// Config configures a Scanner.
type Config struct {
	Target      format.Target
	Backends    render.Set
	FragmentDir string  // where body-less directives load <key>.tex
	BlockScale  float64 // zero means render.BlockScale
	InlineScale float64 // zero means render.InlineScale
	Logger      *slog.Logger
}

// Chapter is one document handed to the scanners.
type Chapter struct {
	ID   string
	Head string // dotted chapter number, see NormalizeHead
	Text string
}

// Scanner runs the block and inline passes.
// It holds no per-document state and is safe for concurrent use when its
// backends are.
type Scanner struct {
	cfg    Config
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(cfg Config) *Scanner {
	if cfg.BlockScale == 0 {
		cfg.BlockScale = render.BlockScale
	}
	if cfg.InlineScale == 0 {
		cfg.InlineScale = render.InlineScale
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// BlockResult is the output of a block pass over one chapter.
type BlockResult struct {
	Text      string
	Entries   []reftable.Entry // references defined, in document order
	Used      UsedArtifacts
	Figures   int
	Equations int
	Skipped   int // directives dropped for a missing fragment
}

// docState is the per-chapter state of a block pass.
type docState struct {
	head   string
	labels map[string]string
	res    *BlockResult
	logger *slog.Logger
}

func (st *docState) define(d Directive, label string) error {
	if prev, ok := st.labels[d.Key]; ok {
		if prev == label {
			return nil
		}
		return &SyntaxError{
			Line: d.Pos.Line, Column: d.Pos.Column,
			Err:    reftable.ErrDuplicateReference,
			Detail: fmt.Sprintf("%q is already %q", d.Key, prev),
		}
	}
	st.labels[d.Key] = label
	st.res.Entries = append(st.res.Entries, reftable.Entry{Key: d.Key, Label: label})
	return nil
}

// openDirective is a directive whose closing line has not been seen yet.
type openDirective struct {
	dir    Directive
	body   strings.Builder
	first  source.Position // first non-blank body line
	last   source.Position // last character of the last non-blank body line
	filled bool
}

func (o *openDirective) add(line string, lineNo int) {
	trimmed := strings.TrimSpace(line)
	o.body.WriteString(trimmed)
	o.body.WriteByte('\n')
	if trimmed == "" {
		return
	}
	if !o.filled {
		o.first = source.Position{Line: lineNo, Column: indentColumn(line)}
		o.filled = true
	}
	o.last = source.Position{Line: lineNo, Column: lastColumn(line)}
}

func (o *openDirective) span() (source.Span, bool) {
	if !o.filled {
		return source.Span{}, false
	}
	return source.Span{Text: o.body.String(), Start: o.first, End: o.last}, true
}

// Blocks runs the block pass over ch. Lines outside directives are copied
// unchanged. A single-line directive met while another directive is open
// replaces it: the open directive and its body are dropped with a warning. The returned entries and artifacts are not applied anywhere;
// the caller merges them once the chapter succeeded.
func (s *Scanner) Blocks(ctx context.Context, ch Chapter) (*BlockResult, error) {
	st := &docState{
		head:   NormalizeHead(ch.Head),
		labels: make(map[string]string),
		res:    &BlockResult{},
		logger: s.logger.With("document", ch.ID),
	}

	lines := strings.Split(ch.Text, "\n")
	out := make([]string, 0, len(lines))
	var open *openDirective

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if !strings.HasPrefix(trimmed, marker) {
			if open != nil {
				open.add(line, lineNo)
			} else {
				out = append(out, line)
			}
			continue
		}

		pos := source.Position{Line: lineNo, Column: indentColumn(line)}
		end := source.Position{Line: lineNo, Column: lastColumn(line)}

		var (
			repl string
			ok   bool
			err  error
		)
		switch {
		case isSingleLine(trimmed):
			if open != nil {
				st.logger.Warn("dropping unclosed directive",
					"line", open.dir.Pos.Line, "kind", open.dir.Name, "replaced_at", lineNo)
				open = nil
			}
			repl, ok, err = s.process(ctx, st, ParseDirective(trimmed, pos), nil, end)
		case open == nil:
			open = &openDirective{dir: ParseDirective(trimmed, pos)}
			continue
		default:
			repl, ok, err = s.process(ctx, st, open.dir, open, end)
			open = nil
		}
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, repl)
		}
	}

	if open != nil {
		return nil, unclosed(open.dir)
	}

	st.res.Text = strings.Join(out, "\n")
	return st.res, nil
}

func unclosed(d Directive) error {
	return &SyntaxError{Line: d.Pos.Line, Column: d.Pos.Column, Err: ErrMalformedDirective, Detail: "directive is never closed"}
}

// process renders one directive. ok is false when the directive was
// skipped and leaves no output.
func (s *Scanner) process(ctx context.Context, st *docState, d Directive, body *openDirective, end source.Position) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	span, err := s.content(d, body, end)
	if errors.Is(err, ErrMissingFragment) {
		st.logger.Warn("skipping directive",
			"pos", d.Pos.String(),
			"kind", d.Name,
			"error", err,
		)
		st.res.Skipped++
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	target := s.cfg.Target
	switch {
	case d.Kind.IsFigure():
		if d.Args != 3 || d.Key == "" || d.Title == "" {
			return "", false, &SyntaxError{
				Line: d.Pos.Line, Column: d.Pos.Column,
				Err:    ErrMalformedDirective,
				Detail: d.Kind.String() + " needs a reference key and a title",
			}
		}
		art, err := s.render(ctx, s.figureBackend(d.Kind), d, span, render.FigureScale)
		if err != nil {
			return "", false, err
		}
		n := st.res.Figures + 1
		if err := st.define(d, format.FigureLabel(st.head, n)); err != nil {
			return "", false, err
		}
		st.res.Figures = n
		st.res.Used.Add(art.Image)
		return format.Figure(target, art, d.Key, st.head, n, d.Title), true, nil

	case d.Kind == KindEquation && d.Key != "":
		art, err := s.render(ctx, s.cfg.Backends.Equation, d, span, s.cfg.BlockScale)
		if err != nil {
			return "", false, err
		}
		n := st.res.Equations + 1
		if err := st.define(d, format.EquationLabel(st.head, n)); err != nil {
			return "", false, err
		}
		st.res.Equations = n
		st.res.Used.Add(art.Image)
		return format.NumberedEquation(target, art, d.Key, st.head, n), true, nil

	default:
		if d.Kind == KindFallback && d.Name != "" {
			st.logger.Warn("unknown directive kind, rendering as equation",
				"pos", d.Pos.String(),
				"kind", d.Name,
			)
		}
		art, err := s.render(ctx, s.cfg.Backends.Equation, d, span, s.cfg.BlockScale)
		if err != nil {
			return "", false, err
		}
		st.res.Used.Add(art.Image)
		return format.Equation(target, art), true, nil
	}
}

func (s *Scanner) figureBackend(k DirectiveKind) render.Backend {
	switch k {
	case KindGnuplot:
		return s.cfg.Backends.Gnuplot
	case KindGnuplotOnly:
		return s.cfg.Backends.GnuplotOnly
	}
	return s.cfg.Backends.Latex
}

func (s *Scanner) render(ctx context.Context, b render.Backend, d Directive, span source.Span, scale float64) (*render.Artifact, error) {
	if b == nil {
		return nil, &SyntaxError{
			Line: d.Pos.Line, Column: d.Pos.Column,
			Err:    render.ErrRenderBackend,
			Detail: "no backend configured for " + d.Kind.String(),
		}
	}
	art, err := b.Render(ctx, span, scale)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &SyntaxError{
			Line: d.Pos.Line, Column: d.Pos.Column,
			Err:    err,
			Detail: "rendering " + d.Kind.String() + " " + span.String(),
		}
	}
	return art, nil
}

// content returns the directive body, or the fragment file named by its
// key when the body is empty.
func (s *Scanner) content(d Directive, body *openDirective, end source.Position) (source.Span, error) {
	if body != nil {
		if sp, ok := body.span(); ok {
			return sp, nil
		}
	}
	if d.Key == "" {
		return source.Span{}, fmt.Errorf("%w: empty directive without a key", ErrMissingFragment)
	}
	if strings.ContainsAny(d.Key, `/\`) || d.Key == "." || d.Key == ".." {
		return source.Span{}, &SyntaxError{
			Line: d.Pos.Line, Column: d.Pos.Column,
			Err:    ErrMalformedDirective,
			Detail: fmt.Sprintf("reference key %q is not a file name", d.Key),
		}
	}

	path := filepath.Join(s.cfg.FragmentDir, d.Key+FragmentExt)
	data, err := os.ReadFile(path) // #nosec G304 -- key is checked to be a plain file name
	if errors.Is(err, fs.ErrNotExist) {
		return source.Span{}, fmt.Errorf("%w: %s", ErrMissingFragment, path)
	}
	if err != nil {
		return source.Span{}, fmt.Errorf("reading fragment %s: %w", path, err)
	}
	return source.Span{Text: string(data), Start: d.Pos, End: end}, nil
}
