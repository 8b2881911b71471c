package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	scimd "github.com/alnah/go-scimd"
	"github.com/alnah/go-scimd/internal/bibliography"
	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/mdbook"
)

// bibliographyPath is the chapter path of the generated bibliography.
// Inline bibliography references link to it.
const bibliographyPath = "bibliography.md"

// runPreprocess runs the mdbook preprocessor protocol: the [context, book]
// pair is read from stdin and the processed book written to stdout.
func runPreprocess(ctx context.Context, args []string, env *Environment) error {
	fs := newFlagSet("preprocess")
	var cf commonFlags
	var rf renderFlags
	addCommonFlags(fs, &cf)
	addRenderFlags(fs, &rf)

	positional, err := parseArgs(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printPreprocessUsage(env.Stdout)
			return nil
		}
		return err
	}
	if len(positional) > 0 {
		return fmt.Errorf("%w: preprocess takes no arguments, got %q", ErrUsage, positional)
	}

	bookCtx, book, err := mdbook.Decode(env.Stdin)
	if err != nil {
		return err
	}
	settings, err := bookCtx.Settings()
	if err != nil {
		return err
	}

	cfg, logger, err := configure(env, &cf, func(cfg *config.Config) {
		applySettings(bookCtx, settings, cfg)
		applyRenderFlags(fs, &rf, cfg)
	})
	if err != nil {
		return err
	}
	logger.Debug("preprocessing book",
		"root", bookCtx.Root, "renderer", bookCtx.Renderer, "mdbook_version", bookCtx.Version)

	sess, err := openSession(ctx, cfg, env, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	p, err := sess.preprocessor()
	if err != nil {
		return err
	}

	chapters := book.Chapters()
	docs := make([]*scimd.Document, len(chapters))
	for i, ch := range chapters {
		docs[i] = &scimd.Document{ID: ch.Path(), HeadNumber: ch.HeadNumber(), Text: ch.Content}
	}
	res, err := p.Process(ctx, docs)
	if err != nil {
		return err
	}
	for i, ch := range chapters {
		ch.Content = docs[i].Text
	}

	if sess.bibPage != "" {
		book.AppendChapter(bibliography.Title, bibliographyPath, sess.bibPage)
	}
	if assets := cfg.Resolve(cfg.Paths.Assets); assets != "" {
		if err := p.CopyAssets(res, assets); err != nil {
			return err
		}
	}
	logStats(logger, res)

	return mdbook.Encode(env.Stdout, book)
}

// applySettings layers the book.toml preprocessor table over cfg.
// The renderer mdbook runs decides the target unless the table names one.
func applySettings(bc *mdbook.Context, s mdbook.Settings, cfg *config.Config) {
	if bc.Root != "" {
		cfg.Paths.Root = bc.Root
	}
	if mdbook.Supports(bc.Renderer) {
		cfg.Render.Target = strings.ToLower(bc.Renderer)
	}
	if s.Renderer != "" {
		cfg.Render.Target = s.Renderer
	}
	if s.FragmentPath != "" {
		cfg.Paths.Fragments = s.FragmentPath
	}
	if s.CachePath != "" {
		cfg.Paths.Cache = s.CachePath
	}
	if s.AssetsPath != "" {
		cfg.Paths.Assets = s.AssetsPath
	}
	if s.Bibliography != "" {
		cfg.Bibliography.File = s.Bibliography
	}
	if s.Bib2xhtml != "" {
		cfg.Bibliography.Bib2xhtml = s.Bib2xhtml
	}
	if s.MathEngine != "" {
		cfg.Math.Engine = s.MathEngine
	}
}

// runSupports answers mdbook's renderer query: exit 0 when the renderer
// is supported, 1 otherwise.
func runSupports(args []string, env *Environment) int {
	if len(args) != 1 {
		fmt.Fprintln(env.Stderr, "Usage: scimd supports <renderer>")
		return ExitUsage
	}
	if mdbook.Supports(args[0]) {
		return ExitSuccess
	}
	return ExitGeneral
}
