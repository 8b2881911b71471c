// Package rendertest provides a CommandRunner that imitates the external
// renderer tools, so backends can be exercised without latex, dvisvgm or
// gnuplot installed.
package rendertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/alnah/go-scimd/internal/render"
)

// SVG is the document written for every simulated svg output.
const SVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10"/></svg>
`

// Tex is the standalone document written for simulated epslatex output.
const Tex = "\\documentclass{minimal}\n\\begin{document}plot\\end{document}\n"

// Result overrides the outcome of one tool.
type Result struct {
	Stdout string
	Stderr string
	Err    error
	// Output replaces the file content the tool would write. With Err set,
	// a non-empty Output is still written before the error is returned,
	// like a tool that fails halfway through.
	Output string
}

var outputPattern = regexp.MustCompile(`(?m)^set output '([^']+)'`)

// Runner records commands and simulates their file outputs.
// Safe for concurrent use.
type Runner struct {
	mu        sync.Mutex
	calls     []render.Command
	overrides map[string]Result
}

// NewRunner returns a Runner where every tool succeeds.
func NewRunner() *Runner {
	return &Runner{overrides: make(map[string]Result)}
}

// Set overrides the result of the named tool.
func (r *Runner) Set(tool string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[tool] = res
}

// Calls returns the commands run so far.
func (r *Runner) Calls() []render.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]render.Command(nil), r.calls...)
}

// Count returns the number of commands run so far.
func (r *Runner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset forgets recorded commands.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Run implements render.CommandRunner.
func (r *Runner) Run(ctx context.Context, cmd render.Command) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	res, overridden := r.overrides[cmd.Name]
	r.mu.Unlock()

	if overridden && res.Err != nil && res.Output == "" {
		return res.Stdout, res.Stderr, res.Err
	}

	var out, content string
	switch cmd.Name {
	case "latex":
		src := cmd.Args[len(cmd.Args)-1]
		out = strings.TrimSuffix(src, ".tex") + ".dvi"
		content = "dvi"
	case "dvisvgm":
		for i, a := range cmd.Args {
			if a == "-o" && i+1 < len(cmd.Args) {
				out = cmd.Args[i+1]
			}
		}
		content = SVG
	case "gnuplot":
		script, err := os.ReadFile(cmd.Args[0])
		if err != nil {
			return "", err.Error(), err
		}
		m := outputPattern.FindStringSubmatch(string(script))
		if m == nil {
			return "", "no output set", fmt.Errorf("gnuplot: no output")
		}
		out = m[1]
		content = SVG
		if strings.HasSuffix(out, ".tex") {
			content = Tex
		}
	default:
		return "", "", fmt.Errorf("%w: %s", render.ErrBinaryNotFound, cmd.Name)
	}

	if overridden && res.Output != "" {
		content = res.Output
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(cmd.Dir, out)
	}
	if err := os.WriteFile(out, []byte(content), 0o600); err != nil {
		return "", err.Error(), err
	}
	return res.Stdout, res.Stderr, res.Err
}
