// Package diff produces unified diffs between a chapter's source and its
// preprocessed text, for dry runs.
package diff

import (
	"fmt"
	"io"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines around each hunk.
const DefaultContext = 3

// Change is the diff of one chapter.
type Change struct {
	Name  string
	Patch string
}

// Unified returns the unified diff turning before into after, with
// "a/name" and "b/name" headers. Equal texts yield "".
func Unified(name, before, after string, context int) (string, error) {
	if before == after {
		return "", nil
	}
	if context <= 0 {
		context = DefaultContext
	}
	u := difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("diffing %s: %w", name, err)
	}
	return s, nil
}

// Write prints changes one after another and returns how many chapters
// differ.
func Write(w io.Writer, changes []Change) (int, error) {
	n := 0
	for _, c := range changes {
		if c.Patch == "" {
			continue
		}
		n++
		if _, err := io.WriteString(w, c.Patch); err != nil {
			return n, err
		}
		if !strings.HasSuffix(c.Patch, "\n") {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// splitLines keeps the newline on each line. A missing final newline is
// added so that the last line compares equal across both sides.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
