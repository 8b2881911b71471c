package render_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/render"
	"github.com/alnah/go-scimd/internal/render/rendertest"
	"github.com/alnah/go-scimd/internal/source"
)

func newSet(t *testing.T, engine render.Engine) (render.Set, *cache.Store, *rendertest.Runner) {
	t.Helper()
	store, err := cache.NewStore(t.TempDir(), cache.SHA256)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	runner := rendertest.NewRunner()
	return render.NewSet(store, runner, engine, nil), store, runner
}

func span(text string) source.Span {
	return source.Span{
		Text:  text,
		Start: source.Position{Line: 1, Column: 1},
		End:   source.Position{Line: 1, Column: len(text)},
	}
}

func toolNames(cmds []render.Command) []string {
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
	}
	return names
}

// ---------------------------------------------------------------------------
// TestEquationBackend - LaTeX equations, cached by content
// ---------------------------------------------------------------------------

func TestEquationBackend_Render(t *testing.T) {
	t.Parallel()

	set, store, runner := newSet(t, render.EngineLatex)
	ctx := context.Background()

	art, err := set.Equation.Render(ctx, span("x^2"), render.BlockScale)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	id := cache.Identify("x^2")
	if art.Hash != id {
		t.Errorf("Hash = %q, want %q", art.Hash, id)
	}
	if art.Image != id+".svg" {
		t.Errorf("Image = %q, want %q", art.Image, id+".svg")
	}
	if art.Text() != "x^2" {
		t.Errorf("Text() = %q, want source content", art.Text())
	}

	got := strings.Join(toolNames(runner.Calls()), ",")
	if got != "latex,dvisvgm" {
		t.Errorf("tools run = %q, want %q", got, "latex,dvisvgm")
	}

	tex, err := store.ReadFile(id, "tex")
	if err != nil {
		t.Fatalf("ReadFile(tex) error = %v", err)
	}
	if !strings.Contains(string(tex), `\documentclass`) || !strings.Contains(string(tex), "x^2") {
		t.Errorf("tex source = %q, want standalone document with content", tex)
	}

	dvisvgm := runner.Calls()[1]
	if !containsArg(dvisvgm.Args, "--zoom=1.6") {
		t.Errorf("dvisvgm args = %v, want --zoom=1.6", dvisvgm.Args)
	}
	if dvisvgm.Dir != store.Dir() {
		t.Errorf("dvisvgm dir = %q, want cache dir %q", dvisvgm.Dir, store.Dir())
	}
}

func TestEquationBackend_SecondRenderSpawnsNothing(t *testing.T) {
	t.Parallel()

	set, _, runner := newSet(t, render.EngineLatex)
	ctx := context.Background()

	first, err := set.Equation.Render(ctx, span("a+b"), render.InlineScale)
	if err != nil {
		t.Fatalf("first Render() error = %v", err)
	}
	runner.Reset()

	second, err := set.Equation.Render(ctx, span("a+b"), render.BlockScale)
	if err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if n := runner.Count(); n != 0 {
		t.Errorf("second render ran %d commands, want 0", n)
	}
	if first.Image != second.Image {
		t.Errorf("Image = %q then %q, want equal", first.Image, second.Image)
	}
}

func TestEquationBackend_ResumesFromDVI(t *testing.T) {
	t.Parallel()

	set, store, runner := newSet(t, render.EngineLatex)
	id := cache.Identify("c")
	if _, err := store.WriteFile(id, "dvi", []byte("dvi")); err != nil {
		t.Fatal(err)
	}

	if _, err := set.Equation.Render(context.Background(), span("c"), 1); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := strings.Join(toolNames(runner.Calls()), ","); got != "dvisvgm" {
		t.Errorf("tools run = %q, want only dvisvgm", got)
	}
}

// ---------------------------------------------------------------------------
// TestLatexBackend_Errors - Tool failures are classified
// ---------------------------------------------------------------------------

func TestLatexBackend_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tool     string
		result   rendertest.Result
		wantErr  error
		wantLine int
	}{
		{
			name: "latex error parsed from stdout",
			tool: "latex",
			result: rendertest.Result{
				Stdout: "This is pdfTeX\n! Undefined control sequence.\nl.3 \\foo\n         {}\n",
				Err:    errors.New("exit status 1"),
			},
			wantErr:  render.ErrRenderBackend,
			wantLine: 3,
		},
		{
			name:    "latex failure without diagnostics",
			tool:    "latex",
			result:  rendertest.Result{Stderr: "segfault", Err: errors.New("exit status 139")},
			wantErr: render.ErrRenderBackend,
		},
		{
			name:    "latex missing",
			tool:    "latex",
			result:  rendertest.Result{Err: render.ErrBinaryNotFound},
			wantErr: render.ErrBinaryNotFound,
		},
		{
			name:    "dvisvgm reports error on stderr",
			tool:    "dvisvgm",
			result:  rendertest.Result{Stderr: "ERROR: error: font not found"},
			wantErr: render.ErrRenderBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set, _, runner := newSet(t, render.EngineLatex)
			runner.Set(tt.tool, tt.result)

			_, err := set.Latex.Render(context.Background(), span("\\documentclass{article}"), 1)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Render() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantLine == 0 {
				return
			}
			var le *render.LatexError
			if !errors.As(err, &le) {
				t.Fatalf("error %T is not *LatexError", err)
			}
			if le.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", le.Line, tt.wantLine)
			}
			if le.Message != "Undefined control sequence." {
				t.Errorf("Message = %q", le.Message)
			}
			if le.Context != `\foo` {
				t.Errorf("Context = %q, want %q", le.Context, `\foo`)
			}
		})
	}
}

func TestLatexBackend_WritesRawSource(t *testing.T) {
	t.Parallel()

	set, store, _ := newSet(t, render.EngineLatex)
	doc := "\\documentclass{standalone}\n\\begin{document}x\\end{document}\n"

	art, err := set.Latex.Render(context.Background(), span(doc), render.FigureScale)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	tex, err := store.ReadFile(art.Hash, "tex")
	if err != nil {
		t.Fatal(err)
	}
	if string(tex) != doc {
		t.Errorf("tex source = %q, want raw content %q", tex, doc)
	}
}

func TestRender_CanceledContext(t *testing.T) {
	t.Parallel()

	set, _, runner := newSet(t, render.EngineLatex)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := set.Equation.Render(ctx, span("x"), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Render() error = %v, want context.Canceled", err)
	}
	if n := runner.Count(); n != 0 {
		t.Errorf("ran %d commands after cancel, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// TestGnuplotBackend - epslatex plots
// ---------------------------------------------------------------------------

func TestGnuplotBackend_Render(t *testing.T) {
	t.Parallel()

	set, store, runner := newSet(t, render.EngineLatex)
	script := "plot sin(x)"

	art, err := set.Gnuplot.Render(context.Background(), span(script), render.FigureScale)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if art.Intermediate != rendertest.Tex {
		t.Errorf("Intermediate = %q, want generated tex", art.Intermediate)
	}
	if got := strings.Join(toolNames(runner.Calls()), ","); got != "gnuplot,latex,dvisvgm" {
		t.Errorf("tools run = %q", got)
	}

	gp, err := os.ReadFile(runner.Calls()[0].Args[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"set terminal epslatex color standalone", script} {
		if !strings.Contains(string(gp), want) {
			t.Errorf("script missing %q:\n%s", want, gp)
		}
	}
	if !store.Has(art.Hash, "svg") {
		t.Error("svg not cached")
	}

	runner.Reset()
	if _, err := set.Gnuplot.Render(context.Background(), span(script), render.FigureScale); err != nil {
		t.Fatal(err)
	}
	if n := runner.Count(); n != 0 {
		t.Errorf("cached render ran %d commands, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// TestGnuplotOnlyBackend - svg plots and output validation
// ---------------------------------------------------------------------------

func TestGnuplotOnlyBackend_Render(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		output  string
		wantErr error
	}{
		{name: "valid svg", output: rendertest.SVG},
		{name: "not svg", output: "<html><body/></html>", wantErr: render.ErrRenderBackend},
		{name: "not xml", output: "gnuplot> oops", wantErr: render.ErrRenderBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set, _, runner := newSet(t, render.EngineLatex)
			runner.Set("gnuplot", rendertest.Result{Output: tt.output})

			art, err := set.GnuplotOnly.Render(context.Background(), span("plot x"), 1)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Render() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if !strings.HasSuffix(art.Image, ".svg") {
				t.Errorf("Image = %q, want .svg", art.Image)
			}
			gp, err := os.ReadFile(runner.Calls()[0].Args[0])
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(gp), "set terminal svg\nset encoding utf8\n") {
				t.Errorf("script = %q, want svg terminal header", gp)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestRender_FailedOutputNotCached - A failure is reported on every run
// ---------------------------------------------------------------------------

func TestRender_FailedOutputNotCached(t *testing.T) {
	t.Parallel()

	exit1 := errors.New("exit status 1")
	tests := []struct {
		name    string
		backend func(render.Set) render.Backend
		tool    string
		result  rendertest.Result
		ext     string
	}{
		{
			name:    "gnuplot svg fails validation",
			backend: func(s render.Set) render.Backend { return s.GnuplotOnly },
			tool:    "gnuplot",
			result:  rendertest.Result{Output: "not svg at all"},
			ext:     "svg",
		},
		{
			name:    "gnuplot svg exits with partial output",
			backend: func(s render.Set) render.Backend { return s.GnuplotOnly },
			tool:    "gnuplot",
			result:  rendertest.Result{Output: "<svg", Err: exit1},
			ext:     "svg",
		},
		{
			name:    "gnuplot epslatex exits with partial output",
			backend: func(s render.Set) render.Backend { return s.Gnuplot },
			tool:    "gnuplot",
			result:  rendertest.Result{Output: "\\documentclass", Err: exit1},
			ext:     "tex",
		},
		{
			name:    "latex exits after writing dvi",
			backend: func(s render.Set) render.Backend { return s.Latex },
			tool:    "latex",
			result:  rendertest.Result{Stdout: "! Emergency stop.\n", Output: "partial", Err: exit1},
			ext:     "dvi",
		},
		{
			name:    "dvisvgm reports error on stderr",
			backend: func(s render.Set) render.Backend { return s.Latex },
			tool:    "dvisvgm",
			result:  rendertest.Result{Stderr: "ERROR: error: font not found"},
			ext:     "svg",
		},
		{
			name:    "dvisvgm exits with partial output",
			backend: func(s render.Set) render.Backend { return s.Latex },
			tool:    "dvisvgm",
			result:  rendertest.Result{Output: "<svg", Err: exit1},
			ext:     "svg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set, store, runner := newSet(t, render.EngineLatex)
			runner.Set(tt.tool, tt.result)
			b := tt.backend(set)
			content := "plot sin(x)"

			for run := 1; run <= 2; run++ {
				runner.Reset()
				art, err := b.Render(context.Background(), span(content), 1)
				if !errors.Is(err, render.ErrRenderBackend) {
					t.Fatalf("run %d: Render() = %+v, %v, want ErrRenderBackend", run, art, err)
				}
				ran := false
				for _, c := range runner.Calls() {
					ran = ran || c.Name == tt.tool
				}
				if !ran {
					t.Errorf("run %d: %s was not invoked", run, tt.tool)
				}
				if store.Has(store.Identify(content), tt.ext) {
					t.Errorf("run %d: failed .%s output left in the cache", run, tt.ext)
				}
			}
		})
	}
}

func TestCheckSVG(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"namespaced svg", rendertest.SVG, false},
		{"bare svg", "<svg/>", false},
		{"other root", "<math/>", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := render.CheckSVG([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckSVG() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestMathMLBackend - In-process equations
// ---------------------------------------------------------------------------

func TestMathMLBackend_Render(t *testing.T) {
	t.Parallel()

	set, store, runner := newSet(t, render.EngineMathML)

	art, err := set.Equation.Render(context.Background(), span(`\frac{a}{b}`), render.BlockScale)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.HasPrefix(art.Intermediate, "<math") {
		t.Errorf("Intermediate = %q, want MathML", art.Intermediate)
	}
	if !strings.HasSuffix(art.Image, ".html") {
		t.Errorf("Image = %q, want .html page", art.Image)
	}
	if n := runner.Count(); n != 0 {
		t.Errorf("mathml ran %d commands, want 0", n)
	}

	page, err := os.ReadFile(filepath.Join(store.Dir(), art.Image))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(page), art.Intermediate) {
		t.Error("page does not embed the formula")
	}

	again, err := set.Equation.Render(context.Background(), span(`\frac{a}{b}`), render.InlineScale)
	if err != nil {
		t.Fatal(err)
	}
	if again.Intermediate != art.Intermediate {
		t.Errorf("cached Intermediate = %q, want %q", again.Intermediate, art.Intermediate)
	}
}

// ---------------------------------------------------------------------------
// TestParseEngine
// ---------------------------------------------------------------------------

func TestParseEngine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    render.Engine
		wantErr bool
	}{
		{"", render.EngineLatex, false},
		{"LaTeX", render.EngineLatex, false},
		{" mathml ", render.EngineMathML, false},
		{"katex", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := render.ParseEngine(tt.in)
			if tt.wantErr {
				if !errors.Is(err, render.ErrUnknownEngine) {
					t.Errorf("ParseEngine(%q) error = %v, want ErrUnknownEngine", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseEngine(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestExecRunner
// ---------------------------------------------------------------------------

func TestExecRunner_BinaryNotFound(t *testing.T) {
	t.Parallel()

	r := &render.ExecRunner{
		LookPath: func(string) (string, error) { return "", errors.New("not in PATH") },
	}
	_, _, err := r.Run(context.Background(), render.Command{Name: "latex"})
	if !errors.Is(err, render.ErrBinaryNotFound) {
		t.Errorf("Run() error = %v, want ErrBinaryNotFound", err)
	}
}

func TestCommand_String(t *testing.T) {
	t.Parallel()

	c := render.Command{Name: "dvisvgm", Args: []string{"-b", "1"}}
	if got := c.String(); got != "dvisvgm -b 1" {
		t.Errorf("String() = %q", got)
	}
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
