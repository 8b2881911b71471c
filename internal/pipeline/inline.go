package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/alnah/go-scimd/internal/format"
	"github.com/alnah/go-scimd/internal/source"
)

const refPrefix = "ref:"

// Lookup resolves reference keys to labels.
type Lookup interface {
	Lookup(key string) (string, bool)
}

// InlineResult is the output of an inline pass over one chapter.
type InlineResult struct {
	Text       string
	Used       UsedArtifacts
	Math       int // inline formulas rendered
	References int // references resolved
}

// region tracks code regions where markers are literal.
type region struct {
	fence string // "```" or "~~~" while inside a fence
	pre   bool
}

func (r *region) active() bool { return r.fence != "" || r.pre }

// update consumes line and reports whether it is verbatim: inside a code
// region, or a line opening or closing one.
func (r *region) update(line string) bool {
	lt := strings.TrimLeftFunc(line, isBlank)
	switch {
	case r.fence != "":
		if strings.HasPrefix(lt, r.fence) {
			r.fence = ""
		}
		return true
	case r.pre:
		if strings.Contains(line, "</pre>") {
			r.pre = false
		}
		return true
	case strings.HasPrefix(lt, "```"):
		r.fence = "```"
		return true
	case strings.HasPrefix(lt, "~~~"):
		r.fence = "~~~"
		return true
	case strings.HasPrefix(lt, "<pre"):
		r.pre = !strings.Contains(line, "</pre>")
		return true
	}
	return false
}

func isBlank(r rune) bool { return r == ' ' || r == '\t' }

// Inline runs the inline pass over ch using refs, which must hold every
// reference of the build. refs is only read.
func (s *Scanner) Inline(ctx context.Context, ch Chapter, refs Lookup) (*InlineResult, error) {
	res := &InlineResult{}
	lines := strings.Split(ch.Text, "\n")
	var code region

	for i, line := range lines {
		if code.update(line) {
			continue
		}
		if !strings.Contains(line, "$") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.inlineLine(ctx, line, i+1, refs, res)
		if err != nil {
			return nil, err
		}
		lines[i] = out
	}
	if code.active() {
		s.logger.Debug("code region left open at end of document", "document", ch.ID)
	}

	res.Text = strings.Join(lines, "\n")
	return res, nil
}

// markers returns the byte offsets of the unescaped $ characters of line
// outside inline code.
func markers(line string) []int {
	var offs []int
	inCode := false
	for off, r := range line {
		switch {
		case r == '`':
			inCode = !inCode
		case r == '$' && !inCode && (off == 0 || line[off-1] != '\\'):
			offs = append(offs, off)
		}
	}
	return offs
}

// column converts a byte offset of line to a 1-based rune column.
func column(line string, off int) int {
	return utf8.RuneCountInString(line[:off]) + 1
}

func (s *Scanner) inlineLine(ctx context.Context, line string, lineNo int, refs Lookup, res *InlineResult) (string, error) {
	offs := markers(line)
	if len(offs) == 0 {
		return line, nil
	}
	if len(offs)%2 != 0 {
		last := offs[len(offs)-1]
		return "", &SyntaxError{
			Line: lineNo, Column: column(line, last),
			Err:    ErrUnevenMarkers,
			Detail: "no closing $ on this line",
		}
	}

	var sb strings.Builder
	prev := 0
	for j := 0; j < len(offs); j += 2 {
		open, closing := offs[j], offs[j+1]
		sb.WriteString(line[prev:open])
		prev = closing + 1

		expr := line[open+1 : closing]
		if expr == "" {
			sb.WriteString(line[open:prev])
			continue
		}
		start := source.Position{Line: lineNo, Column: column(line, open+1)}
		repl, err := s.expression(ctx, expr, start, closing, line, refs, res)
		if err != nil {
			return "", err
		}
		sb.WriteString(repl)
	}
	sb.WriteString(line[prev:])
	return sb.String(), nil
}

func (s *Scanner) expression(ctx context.Context, expr string, start source.Position, closing int, line string, refs Lookup, res *InlineResult) (string, error) {
	if rest, ok := strings.CutPrefix(expr, refPrefix); ok {
		parts := strings.Split(rest, ":")
		if len(parts) != 2 {
			return "", &SyntaxError{
				Line: start.Line, Column: start.Column,
				Err:    ErrUnexpectedReferenceArgCount,
				Detail: "want ref:<kind>:<key>, got " + expr,
			}
		}
		kind, ok := format.ParseRefKind(parts[0])
		if !ok {
			return "", &SyntaxError{
				Line: start.Line, Column: start.Column,
				Err:    ErrUnknownReferenceKind,
				Detail: parts[0],
			}
		}
		key := parts[1]
		label, ok := refs.Lookup(key)
		if !ok {
			return "", &SyntaxError{
				Line: start.Line, Column: start.Column,
				Err:    ErrInvalidReference,
				Detail: string(kind) + ":" + key,
			}
		}
		res.References++
		return format.Reference(s.cfg.Target, kind, key, label), nil
	}

	span := source.Span{
		Text:  expr,
		Start: start,
		End:   source.Position{Line: start.Line, Column: utf8.RuneCountInString(line[:closing])},
	}
	d := Directive{Kind: KindEquation, Name: "inline", Pos: start}
	art, err := s.render(ctx, s.cfg.Backends.Equation, d, span, s.cfg.InlineScale)
	if err != nil {
		return "", err
	}
	res.Math++
	res.Used.Add(art.Image)
	return format.InlineEquation(s.cfg.Target, art), nil
}
