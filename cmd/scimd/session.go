package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	scimd "github.com/alnah/go-scimd"
	"github.com/alnah/go-scimd/internal/bibliography"
	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/fileutil"
	"github.com/alnah/go-scimd/internal/hints"
	"github.com/alnah/go-scimd/internal/logging"
	"github.com/alnah/go-scimd/internal/manifest"
)

// loadConfig resolves the config file from the flag, then SCIMD_CONFIG.
// Without either, the defaults are used.
func loadConfig(flagPath string, env *envConfig) (*config.Config, error) {
	name := flagPath
	if name == "" {
		name = env.ConfigPath
	}
	if name == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadConfig(name)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) && !fileutil.IsFilePath(name) {
			return nil, fmt.Errorf("%w%s", err, hints.ForConfigNotFound(config.SearchPaths(name)))
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the stderr logger described by cfg.
func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidValue, err)
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidValue, err)
	}
	return logging.New(w, level, format), nil
}

// session is the state shared by the commands that preprocess chapters.
type session struct {
	cfg      *config.Config
	env      *Environment
	logger   *slog.Logger
	manifest *manifest.Manifest

	// references seeds the reference table with bibliography labels.
	references map[string]string
	// bibPage is the rendered bibliography chapter; empty without bib2xhtml.
	bibPage string
}

// openSession opens the manifest and loads the bibliography. Call close
// when done.
func openSession(ctx context.Context, cfg *config.Config, env *Environment, logger *slog.Logger) (*session, error) {
	s := &session{cfg: cfg, env: env, logger: logger}

	if cfg.Manifest.Enabled {
		m, err := manifest.Open(ctx, cfg.ManifestPath())
		if err != nil {
			return nil, err
		}
		s.manifest = m
	}

	if err := s.loadBibliography(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) loadBibliography(ctx context.Context) error {
	file := s.cfg.Bibliography.File
	if file == "" {
		return nil
	}
	path := s.cfg.Resolve(file)

	if s.cfg.Bibliography.Bib2xhtml == "" {
		keys, err := bibliography.Load(path)
		if err != nil {
			return err
		}
		s.references = bibliography.Labels(keys)
		s.logger.Debug("bibliography loaded", "file", path, "entries", len(keys))
		return nil
	}

	frag, err := bibliography.Render(ctx, s.env.Runner, path, s.cfg.Resolve(s.cfg.Bibliography.Bib2xhtml))
	if err != nil {
		return err
	}
	s.references = frag.Labels
	s.bibPage = bibliography.Page(frag)
	s.logger.Debug("bibliography rendered", "file", path, "entries", len(frag.Labels))
	return nil
}

// preprocessor creates a Preprocessor from the session configuration.
func (s *session) preprocessor() (*scimd.Preprocessor, error) {
	target, err := scimd.ParseTarget(s.cfg.Render.Target)
	if err != nil {
		return nil, err
	}
	opts := []scimd.Option{
		scimd.WithCacheDir(s.cfg.Resolve(s.cfg.Paths.Cache)),
		scimd.WithFragmentDir(s.cfg.Resolve(s.cfg.Paths.Fragments)),
		scimd.WithTarget(target),
		scimd.WithHash(s.cfg.Render.Hash),
		scimd.WithMathEngine(s.cfg.Math.Engine),
		scimd.WithRunner(s.env.Runner),
		scimd.WithLogger(s.logger),
		scimd.WithWorkers(s.cfg.Render.Workers),
		scimd.WithScales(s.cfg.Render.BlockScale, s.cfg.Render.InlineScale),
	}
	if len(s.references) > 0 {
		opts = append(opts, scimd.WithReferences(s.references))
	}
	if s.manifest != nil {
		opts = append(opts, scimd.WithManifest(s.manifest))
	}
	return scimd.NewPreprocessor(opts...)
}

func (s *session) close() {
	if s.manifest == nil {
		return
	}
	if err := s.manifest.Close(); err != nil {
		s.logger.Warn("closing manifest", "error", err)
	}
}

// logStats reports what a build did.
func logStats(logger *slog.Logger, res *scimd.Result) {
	logger.Info("build finished",
		"build_id", res.BuildID,
		"documents", res.Stats.Documents,
		"figures", res.Stats.Figures,
		"equations", res.Stats.Equations,
		"inline_math", res.Stats.InlineMath,
		"references", res.Stats.References,
		"skipped", res.Stats.Skipped,
		"artifacts", len(res.Used))
}

// printError writes err with the hints matching its cause.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "scimd: %v%s\n", err, hintFor(err))
}

func hintFor(err error) string {
	var latexErr *scimd.LatexError
	switch {
	case errors.Is(err, scimd.ErrBinaryNotFound):
		tool := missingTool(err)
		hint := hints.ForBinaryNotFound(tool)
		if tool == "latex" || tool == "dvisvgm" {
			hint += hints.ForMathMLFallback()
		}
		return hint
	case errors.As(err, &latexErr):
		return hints.ForLatexError()
	case errors.Is(err, bibliography.ErrInvalidBibliography):
		return hints.ForInvalidBibliography()
	case errors.Is(err, scimd.ErrUnevenMarkers):
		return hints.ForUnevenMarkers()
	case errors.Is(err, scimd.ErrCacheIO):
		return hints.ForCacheDirectory()
	}
	return ""
}

// missingTool extracts the binary name from "renderer binary not found: <name>: ...".
func missingTool(err error) string {
	msg := err.Error()
	marker := scimd.ErrBinaryNotFound.Error() + ": "
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	name, _, _ := strings.Cut(msg[i+len(marker):], ":")
	return strings.TrimSpace(name)
}

// configure layers the configuration: file, environment, then the
// command's own overrides, then the logging flags. The result is validated.
func configure(env *Environment, cf *commonFlags, override func(*config.Config)) (*config.Config, *slog.Logger, error) {
	envCfg := loadEnvConfig(env.Getenv)
	cfg, err := loadConfig(cf.config, envCfg)
	if err != nil {
		return nil, nil, err
	}
	applyEnvConfig(envCfg, cfg)
	if override != nil {
		override(cfg)
	}
	applyCommonFlags(cf, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(env.Stderr, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
