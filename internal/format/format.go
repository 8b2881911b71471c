// Package format turns rendered artifacts into target markup.
//
// Image-embedding targets (HTML, Markdown) reference the artifact image
// under assets/ and carry anchors equal to reference keys. Native targets
// (LaTeX, Tectonic) embed the artifact text in math delimiters, fenced as
// raw LaTeX, and leave numbering and anchors to the typesetter.
//
// All functions are pure.
package format

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/alnah/go-scimd/internal/render"
)

// ErrTargetNotSupported is returned for unknown target names.
var ErrTargetNotSupported = errors.New("renderer not supported")

// Target is the output format of the downstream renderer.
type Target int

// Supported targets.
const (
	HTML Target = iota
	Markdown
	Tectonic
	LaTeX
)

var targetNames = [...]string{
	HTML:     "html",
	Markdown: "markdown",
	Tectonic: "tectonic",
	LaTeX:    "latex",
}

// ParseTarget converts a renderer name, case-insensitively.
func ParseTarget(s string) (Target, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range targetNames {
		if n == name {
			return Target(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrTargetNotSupported, s)
}

// Targets lists the supported renderer names.
func Targets() []string {
	return append([]string(nil), targetNames[:]...)
}

func (t Target) String() string {
	if t < 0 || int(t) >= len(targetNames) {
		return fmt.Sprintf("Target(%d)", int(t))
	}
	return targetNames[t]
}

// EmbedsImages reports whether the target references artifact images.
func (t Target) EmbedsImages() bool {
	return t == HTML || t == Markdown
}

// MIMEType returns the media type of an artifact image by extension.
func MIMEType(image string) string {
	switch strings.ToLower(path.Ext(image)) {
	case ".svg":
		return "image/svg+xml"
	case ".html", ".htm":
		return "text/html"
	case ".png":
		return "image/png"
	}
	return "application/octet-stream"
}

// RefKind is the kind part of an inline reference.
type RefKind string

// Reference kinds.
const (
	RefFigure       RefKind = "fig"
	RefBibliography RefKind = "bib"
	RefEquation     RefKind = "equ"
)

// ParseRefKind reports whether s names a reference kind.
func ParseRefKind(s string) (RefKind, bool) {
	switch k := RefKind(s); k {
	case RefFigure, RefBibliography, RefEquation:
		return k, true
	}
	return "", false
}

// FigureLabel is the label a figure registers: "Figure 2.1".
func FigureLabel(head string, n int) string {
	return fmt.Sprintf("Figure %s%d", head, n)
}

// EquationLabel is the label an equation registers: "2.1".
func EquationLabel(head string, n int) string {
	return fmt.Sprintf("%s%d", head, n)
}

func asset(art *render.Artifact) string {
	return "assets/" + art.Image
}

// nativeText is what native targets typeset. MathML pages are useless to
// LaTeX, so equations rendered that way fall back to their source.
func nativeText(art *render.Artifact) string {
	if MIMEType(art.Image) == "text/html" {
		return strings.TrimSpace(art.Source)
	}
	return strings.TrimSpace(art.Text())
}

func rawLatex(body string) string {
	return "```{=latex}\n" + body + "\n```"
}

// Figure formats a captioned figure.
func Figure(t Target, art *render.Artifact, key, head string, n int, title string) string {
	label := FigureLabel(head, n)
	switch t {
	case HTML:
		return fmt.Sprintf(
			`<figure id="%s" class="figure"><object data="%s" type="%s"/></object><figcaption>%s %s</figcaption></figure>`,
			key, asset(art), MIMEType(art.Image), label, title)
	case Markdown:
		return fmt.Sprintf("<a id=\"%s\"></a>\n![%s %s](%s)", key, label, title, asset(art))
	default:
		return rawLatex("\\begin{figure}[htbp]\n\\centering\n" + nativeText(art) +
			"\n\\caption{" + title + "}\n\\end{figure}")
	}
}

// NumberedEquation formats a display equation with its number.
func NumberedEquation(t Target, art *render.Artifact, key, head string, n int) string {
	label := EquationLabel(head, n)
	switch t {
	case HTML:
		return fmt.Sprintf(
			`<div id="%s" class="equation"><div class="equation_inner"><object data="%s" type="%s"></object></div><span>(%s)</span></div>`,
			key, asset(art), MIMEType(art.Image), label)
	case Markdown:
		return fmt.Sprintf("<a id=\"%s\"></a>\n![(%s)](%s) (%s)", key, label, asset(art), label)
	case LaTeX:
		return rawLatex("\\begin{equation}\n" + nativeText(art) + "\n\\end{equation}")
	default:
		return rawLatex("\\[\n" + nativeText(art) + "\n\\]")
	}
}

// Equation formats an unnumbered display equation.
func Equation(t Target, art *render.Artifact) string {
	switch t {
	case HTML:
		return fmt.Sprintf(
			`<div class="equation"><div class="equation_inner"><object data="%s" type="%s"></object></div></div>`,
			asset(art), MIMEType(art.Image))
	case Markdown:
		return fmt.Sprintf("![equation](%s)", asset(art))
	case LaTeX:
		return rawLatex("\\begin{equation*}\n" + nativeText(art) + "\n\\end{equation*}")
	default:
		return rawLatex("\\[\n" + nativeText(art) + "\n\\]")
	}
}

// InlineEquation formats math embedded in running text.
func InlineEquation(t Target, art *render.Artifact) string {
	switch t {
	case HTML:
		return fmt.Sprintf(`<object class="equation_inline" data="%s" type="%s"></object>`,
			asset(art), MIMEType(art.Image))
	case Markdown:
		return fmt.Sprintf("![equation](%s)", asset(art))
	default:
		return `\(` + nativeText(art) + `\)`
	}
}

// Reference formats a resolved inline reference.
func Reference(t Target, kind RefKind, key, label string) string {
	switch t {
	case HTML:
		switch kind {
		case RefFigure:
			return fmt.Sprintf(`<a class="fig_ref" href='#%s'>%s</a>`, key, label)
		case RefBibliography:
			return fmt.Sprintf(`<a class="bib_ref" href='bibliography.html#%s'>%s</a>`, key, label)
		default:
			return fmt.Sprintf(`<a class="equ_ref" href='#%s'>Eq. (%s)</a>`, key, label)
		}
	case Markdown:
		switch kind {
		case RefFigure:
			return fmt.Sprintf("[%s](#%s)", label, key)
		case RefBibliography:
			return fmt.Sprintf("[%s](bibliography.md#%s)", label, key)
		default:
			return fmt.Sprintf("[Eq. (%s)](#%s)", label, key)
		}
	default:
		return label
	}
}
