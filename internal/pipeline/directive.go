package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alnah/go-scimd/internal/source"
)

const marker = "$$"

// DirectiveKind classifies a block directive.
type DirectiveKind int

// Directive kinds. KindFallback covers any unrecognized kind name; it is
// rendered as an unnumbered equation.
const (
	KindFallback DirectiveKind = iota
	KindLatex
	KindGnuplot
	KindGnuplotOnly
	KindEquation
)

func (k DirectiveKind) String() string {
	switch k {
	case KindLatex:
		return "latex"
	case KindGnuplot:
		return "gnuplot"
	case KindGnuplotOnly:
		return "gnuplotonly"
	case KindEquation:
		return "equation"
	}
	return "fallback"
}

// IsFigure reports whether the kind renders as a captioned figure.
func (k DirectiveKind) IsFigure() bool {
	return k == KindLatex || k == KindGnuplot || k == KindGnuplotOnly
}

func parseKind(s string) DirectiveKind {
	switch strings.ToLower(s) {
	case "latex":
		return KindLatex
	case "gnuplot":
		return KindGnuplot
	case "gnuplotonly":
		return KindGnuplotOnly
	case "equation", "equ":
		return KindEquation
	}
	return KindFallback
}

// Directive is the parsed parameter line of a block directive.
type Directive struct {
	Kind  DirectiveKind
	Name  string // kind as written
	Key   string
	Title string
	Args  int // number of comma separated parameters
	Pos   source.Position
}

// ParseDirective parses a parameter line such as "$$latex, fig1, A title"
// or the single-line form "$$equation, eq1$$". The title keeps any
// further commas.
func ParseDirective(line string, pos source.Position) Directive {
	parts := strings.SplitN(strings.TrimSpace(line), ",", 3)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.ReplaceAll(p, marker, ""))
	}

	d := Directive{Name: parts[0], Kind: parseKind(parts[0]), Args: len(parts), Pos: pos}
	if len(parts) > 1 {
		d.Key = parts[1]
	}
	if len(parts) > 2 {
		d.Title = parts[2]
	}
	return d
}

// isSingleLine reports whether a trimmed line is a complete directive on
// its own: it starts and ends with $$ and is more than a bare marker pair.
func isSingleLine(trimmed string) bool {
	return len(trimmed) > 2*len(marker) &&
		strings.HasPrefix(trimmed, marker) &&
		strings.HasSuffix(trimmed, marker)
}

// NormalizeHead makes a chapter number usable as a label prefix: "2" and
// "2." both become "2.", and an empty number stays empty.
func NormalizeHead(head string) string {
	head = strings.TrimSpace(head)
	if head == "" || strings.HasSuffix(head, ".") {
		return head
	}
	return head + "."
}

// indentColumn returns the 1-based column of the first non-blank
// character of line, counted in runes.
func indentColumn(line string) int {
	lead := len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))
	return utf8.RuneCountInString(line[:lead]) + 1
}

// lastColumn returns the 1-based column of the last non-blank character
// of line, counted in runes.
func lastColumn(line string) int {
	return utf8.RuneCountInString(strings.TrimRightFunc(line, unicode.IsSpace))
}
