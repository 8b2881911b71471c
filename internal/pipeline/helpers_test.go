package pipeline_test

import (
	"context"
	"sync"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/format"
	"github.com/alnah/go-scimd/internal/pipeline"
	"github.com/alnah/go-scimd/internal/render"
	"github.com/alnah/go-scimd/internal/source"
)

// recordBackend returns an svg artifact named after the content and
// records every call.
type recordBackend struct {
	mu     sync.Mutex
	spans  []source.Span
	scales []float64
	err    error
}

func (b *recordBackend) Render(_ context.Context, span source.Span, scale float64) (*render.Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spans = append(b.spans, span)
	b.scales = append(b.scales, scale)
	if b.err != nil {
		return nil, b.err
	}
	id := cache.Identify(span.Text)
	return &render.Artifact{Hash: id, Image: id + ".svg", Source: span.Text}, nil
}

func (b *recordBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.spans)
}

func recordSet(b *recordBackend) render.Set {
	return render.Set{Latex: b, Gnuplot: b, GnuplotOnly: b, Equation: b}
}

func newScanner(b *recordBackend, target format.Target, fragments string) *pipeline.Scanner {
	return pipeline.NewScanner(pipeline.Config{
		Target:      target,
		Backends:    recordSet(b),
		FragmentDir: fragments,
	})
}

func svgName(content string) string {
	return cache.Identify(content) + ".svg"
}
