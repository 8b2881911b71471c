package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/source"
)

const mathMLPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body>
%s
</body></html>
`

// MathMLBackend converts math content to MathML in process. Each artifact
// is a small HTML page holding the formula.
type MathMLBackend struct {
	store  *cache.Store
	logger *slog.Logger
	md     goldmark.Markdown
}

// NewMathMLBackend creates a MathML backend writing into store.
func NewMathMLBackend(store *cache.Store, logger *slog.Logger) *MathMLBackend {
	return &MathMLBackend{
		store:  store,
		logger: logger,
		md: goldmark.New(
			goldmark.WithExtensions(treeblood.MathML()),
		),
	}
}

// Render converts span.Text. Scale does not apply to MathML.
func (b *MathMLBackend) Render(ctx context.Context, span source.Span, _ float64) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logFound(b.logger, "equation", span)

	id := b.store.Identify(span.Text)
	unlock := b.store.Lock(id)
	defer unlock()

	if b.store.Has(id, "html") {
		page, err := b.store.ReadFile(id, "html")
		if err != nil {
			return nil, err
		}
		return &Artifact{
			Hash:         id,
			Image:        cache.Name(id, "html"),
			Intermediate: extractMath(string(page)),
			Source:       span.Text,
		}, nil
	}

	mathml, err := b.convert(span.Text)
	if err != nil {
		return nil, err
	}
	if _, err := b.store.WriteFile(id, "html", []byte(fmt.Sprintf(mathMLPage, mathml))); err != nil {
		return nil, err
	}
	return &Artifact{
		Hash:         id,
		Image:        cache.Name(id, "html"),
		Intermediate: mathml,
		Source:       span.Text,
	}, nil
}

func (b *MathMLBackend) convert(latex string) (string, error) {
	// Display math delimiters make the extension emit a block formula.
	src := "$$" + strings.TrimSpace(latex) + "$$"

	var buf bytes.Buffer
	if err := b.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("%w: mathml: %v", ErrRenderBackend, err)
	}
	out := extractMath(buf.String())
	if out == "" {
		return "", fmt.Errorf("%w: mathml: no formula produced", ErrRenderBackend)
	}
	return out, nil
}

// extractMath returns the first <math> element of an HTML fragment.
func extractMath(s string) string {
	start := strings.Index(s, "<math")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "</math>")
	if end < start {
		return ""
	}
	return s[start : end+len("</math>")]
}
