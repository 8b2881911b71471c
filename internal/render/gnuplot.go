package render

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/source"
)

// Script extensions keep the two gnuplot flavours of identical content apart.
const (
	epslatexScriptExt = "tex.gp"
	svgScriptExt      = "svg.gp"
)

func runGnuplot(ctx context.Context, runner CommandRunner, store *cache.Store, script string) error {
	_, stderr, err := runner.Run(ctx, Command{
		Name: "gnuplot",
		Args: []string{script},
		Dir:  store.Dir(),
	})
	if err != nil {
		if errors.Is(err, ErrBinaryNotFound) || ctx.Err() != nil {
			return err
		}
		return &ToolError{Tool: "gnuplot", Output: stderr, Err: err}
	}
	return nil
}

// GnuplotBackend renders gnuplot scripts through the epslatex terminal, so
// labels are typeset by LaTeX.
type GnuplotBackend struct {
	tools *texTools
}

// Render runs the script, then compiles the generated standalone document.
// The artifact's intermediate form is that document.
func (b *GnuplotBackend) Render(ctx context.Context, span source.Span, scale float64) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logFound(b.tools.logger, "gnuplot figure", span)

	store := b.tools.store
	id := store.Identify(span.Text)
	unlock := store.Lock(id)
	defer unlock()

	if !store.Has(id, "tex") {
		var sb strings.Builder
		sb.WriteString("set terminal epslatex color standalone\n")
		sb.WriteString("set output '" + cache.Name(id, "tex") + "'\n")
		sb.WriteString(span.Text)
		sb.WriteString("\nunset output\n")

		script, err := store.WriteFile(id, epslatexScriptExt, []byte(sb.String()))
		if err != nil {
			return nil, err
		}
		if err := runGnuplot(ctx, b.tools.runner, store, script); err != nil {
			store.Discard(id, "tex")
			return nil, err
		}
		if !store.Has(id, "tex") {
			return nil, &ToolError{Tool: "gnuplot", Output: "no tex output for " + id}
		}
	}

	if err := b.tools.toSVG(ctx, id, scale); err != nil {
		return nil, err
	}
	tex, err := store.ReadFile(id, "tex")
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Hash:         id,
		Image:        cache.Name(id, "svg"),
		Intermediate: string(tex),
		Source:       span.Text,
	}, nil
}

// GnuplotOnlyBackend renders gnuplot scripts straight to SVG.
type GnuplotOnlyBackend struct {
	store  *cache.Store
	runner CommandRunner
	logger *slog.Logger
}

// Render runs the script with the svg terminal and checks the produced
// document. Scale does not apply.
func (b *GnuplotOnlyBackend) Render(ctx context.Context, span source.Span, _ float64) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logFound(b.logger, "gnuplot figure", span)

	id := b.store.Identify(span.Text)
	unlock := b.store.Lock(id)
	defer unlock()

	if b.store.Has(id, "svg") {
		b.logger.Debug("cache hit", "hash", id)
		return cachedArtifact(id, "svg", span), nil
	}

	var sb strings.Builder
	sb.WriteString("set terminal svg\n")
	sb.WriteString("set encoding utf8\n")
	sb.WriteString("set output '" + cache.Name(id, "svg") + "'\n")
	sb.WriteString(span.Text)
	sb.WriteString("\nunset output\n")

	script, err := b.store.WriteFile(id, svgScriptExt, []byte(sb.String()))
	if err != nil {
		return nil, err
	}
	if err := runGnuplot(ctx, b.runner, b.store, script); err != nil {
		b.store.Discard(id, "svg")
		return nil, err
	}

	data, err := b.store.ReadFile(id, "svg")
	if err != nil {
		return nil, &ToolError{Tool: "gnuplot", Output: "no svg output for " + id, Err: err}
	}
	if err := CheckSVG(data); err != nil {
		b.store.Discard(id, "svg")
		return nil, err
	}
	return &Artifact{Hash: id, Image: cache.Name(id, "svg"), Source: span.Text}, nil
}
