// Package source models positions and spans inside a chapter's text.
package source

import "fmt"

// Position is a 1-based line/column coordinate. Columns count runes, not bytes.
type Position struct {
	Line   int
	Column int
}

// Compare orders positions by line, then column.
// Returns -1 if p is before q, 1 if after, 0 if equal.
func (p Position) Compare(q Position) int {
	switch {
	case p.Line < q.Line:
		return -1
	case p.Line > q.Line:
		return 1
	case p.Column < q.Column:
		return -1
	case p.Column > q.Column:
		return 1
	}
	return 0
}

// Before reports whether p comes strictly before q.
func (p Position) Before(q Position) bool {
	return p.Compare(q) < 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a region of source text. Start and End are both inclusive.
// A Span is read-only once created.
type Span struct {
	Text  string
	Start Position
	End   Position
}

func (s Span) String() string {
	return s.Start.String() + ".." + s.End.String()
}
