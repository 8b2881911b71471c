package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-scimd/internal/config"
)

// ErrUsage wraps invalid command lines.
var ErrUsage = errors.New("invalid usage")

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config    string
	quiet     bool
	verbose   bool
	logFormat string
}

// renderFlags holds flags that override the render configuration.
type renderFlags struct {
	target       string
	engine       string
	hash         string
	cacheDir     string
	fragmentDir  string
	assetsDir    string
	bibliography string
	bib2xhtml    string
	workers      int
	manifest     bool
}

// buildFlags holds flags of the build command.
type buildFlags struct {
	common  commonFlags
	render  renderFlags
	output  string
	diff    bool
	context int
	html    string
}

// cacheFlags holds flags of the cache command.
type cacheFlags struct {
	common   commonFlags
	cacheDir string
	json     bool
	dryRun   bool
}

// doctorFlags holds flags of the doctor command.
type doctorFlags struct {
	common     commonFlags
	json       bool
	showConfig bool
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	return fs
}

func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only log errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log debug details")
	fs.StringVar(&f.logFormat, "log-format", "", "log encoding: text or json")
}

func addRenderFlags(fs *flag.FlagSet, f *renderFlags) {
	fs.StringVarP(&f.target, "target", "t", "", "output format: html, markdown, latex, tectonic")
	fs.StringVar(&f.engine, "math-engine", "", "equation renderer: latex or mathml")
	fs.StringVar(&f.hash, "hash", "", "cache hash: sha256 or blake3")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "render cache directory")
	fs.StringVar(&f.fragmentDir, "fragments", "", "LaTeX fragment directory")
	fs.StringVar(&f.assetsDir, "assets", "", "directory receiving the used artifacts")
	fs.StringVar(&f.bibliography, "bibliography", "", "BibTeX database")
	fs.StringVar(&f.bib2xhtml, "bib2xhtml", "", "directory holding bib2xhtml.pl")
	fs.IntVarP(&f.workers, "workers", "w", 1, "concurrent chapters (0 = auto)")
	fs.BoolVar(&f.manifest, "manifest", false, "record used artifacts in the cache manifest")
}

// parseArgs parses args and returns the positional arguments.
// flag.ErrHelp is returned unwrapped so commands can print their usage.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return fs.Args(), nil
}

// applyRenderFlags copies explicitly set flags into cfg.
func applyRenderFlags(fs *flag.FlagSet, f *renderFlags, cfg *config.Config) {
	if fs.Changed("target") {
		cfg.Render.Target = f.target
	}
	if fs.Changed("math-engine") {
		cfg.Math.Engine = f.engine
	}
	if fs.Changed("hash") {
		cfg.Render.Hash = f.hash
	}
	if fs.Changed("cache-dir") {
		cfg.Paths.Cache = f.cacheDir
	}
	if fs.Changed("fragments") {
		cfg.Paths.Fragments = f.fragmentDir
	}
	if fs.Changed("assets") {
		cfg.Paths.Assets = f.assetsDir
	}
	if fs.Changed("bibliography") {
		cfg.Bibliography.File = f.bibliography
	}
	if fs.Changed("bib2xhtml") {
		cfg.Bibliography.Bib2xhtml = f.bib2xhtml
	}
	if fs.Changed("workers") {
		cfg.Render.Workers = f.workers
	}
	if fs.Changed("manifest") {
		cfg.Manifest.Enabled = f.manifest
	}
}

// applyCommonFlags copies the logging flags into cfg.
// --quiet wins over --verbose.
func applyCommonFlags(f *commonFlags, cfg *config.Config) {
	switch {
	case f.quiet:
		cfg.Log.Level = "error"
	case f.verbose:
		cfg.Log.Level = "debug"
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
}
