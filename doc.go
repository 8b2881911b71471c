// Package scimd preprocesses the chapters of a scientific book.
//
// Chapters embed two micro-syntaxes. Block directives span lines between
// $$ markers, or a single $$kind, key, title$$ line:
//
//	$$latex, fig1, A standalone LaTeX figure
//	\documentclass[preview]{standalone}
//	...
//	$$
//
//	$$equation, eq1
//	E = mc^2
//	$$
//
// Inline spans sit between single $ markers on one line: $x^2$ is inline
// math, $ref:fig:fig1$ links to a figure, $ref:equ:eq1$ to an equation and
// $ref:bib:knuth84$ to a bibliography entry.
//
// # Quick Start
//
//	pre, err := scimd.NewPreprocessor(
//	    scimd.WithCacheDir("src/assets"),
//	    scimd.WithFragmentDir("src/fragments"),
//	    scimd.WithTarget(scimd.HTML),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := pre.Process(ctx, docs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = pre.CopyAssets(res, "book/assets")
//
// # Processing
//
// Process runs two passes:
//
//  1. The block pass renders every directive of every chapter, numbers
//     figures and equations per chapter and fills the reference table.
//  2. The inline pass, run once the table is complete, replaces inline
//     math and resolves references across chapters.
//
// Rendering goes through a content-addressed cache: an artifact is named
// after a hash of its content, so an unchanged formula is never rendered
// twice, across runs included.
//
// # Renderers
//
// Figures and equations are rendered by external tools: latex and dvisvgm
// for LaTeX content, gnuplot for plots. Equations can instead be converted
// to MathML in process with WithMathEngine("mathml").
package scimd
