package scimd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/logging"
	"github.com/alnah/go-scimd/internal/manifest"
	"github.com/alnah/go-scimd/internal/pipeline"
	"github.com/alnah/go-scimd/internal/reftable"
	"github.com/alnah/go-scimd/internal/render"
)

// Compile-time interface implementation checks.
var (
	_ render.Backend       = (*render.LatexBackend)(nil)
	_ render.Backend       = (*render.EquationBackend)(nil)
	_ render.Backend       = (*render.GnuplotBackend)(nil)
	_ render.Backend       = (*render.GnuplotOnlyBackend)(nil)
	_ render.Backend       = (*render.MathMLBackend)(nil)
	_ render.CommandRunner = (*render.ExecRunner)(nil)
	_ pipeline.Lookup      = (*reftable.Table)(nil)
)

// Preprocessor rewrites chapters. Create with NewPreprocessor.
// A Preprocessor may be reused for several builds; each Process call
// starts from an empty reference table.
type Preprocessor struct {
	cfg      preprocessorConfig
	store    *cache.Store
	scanner  *pipeline.Scanner
	logger   *slog.Logger
	manifest *manifest.Manifest
}

// NewPreprocessor creates a Preprocessor. The cache directory is created
// if missing.
func NewPreprocessor(opts ...Option) (*Preprocessor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	alg, err := cache.ParseAlgorithm(cfg.hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	if cfg.blockScale < 0 || cfg.inlineScale < 0 {
		return nil, fmt.Errorf("%w: negative scale", ErrInvalidOption)
	}
	store, err := cache.NewStore(cfg.cacheDir, alg)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.Discard()
	}

	var backends render.Set
	if cfg.backends != nil {
		backends = *cfg.backends
	} else {
		engine, err := render.ParseEngine(cfg.engine)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}
		runner := cfg.runner
		if runner == nil {
			runner = &render.ExecRunner{}
		}
		backends = render.NewSet(store, runner, engine, logger)
	}

	scanner := pipeline.NewScanner(pipeline.Config{
		Target:      cfg.target,
		Backends:    backends,
		FragmentDir: cfg.fragmentDir,
		BlockScale:  cfg.blockScale,
		InlineScale: cfg.inlineScale,
		Logger:      logger,
	})

	return &Preprocessor{
		cfg:      cfg,
		store:    store,
		scanner:  scanner,
		logger:   logger,
		manifest: cfg.manifest,
	}, nil
}

// CacheDir returns the absolute cache directory.
func (p *Preprocessor) CacheDir() string {
	return p.store.Dir()
}

// Target returns the configured output format.
func (p *Preprocessor) Target() Target {
	return p.cfg.target
}

// Process runs the block pass over every document, then the inline pass,
// replacing each document's Text. On failure the documents are left
// untouched and the error is a *DocumentError naming the first failing
// document. Recovers from internal panics to prevent crashes from
// propagating to callers.
func (p *Preprocessor) Process(ctx context.Context, docs []*Document) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	buildID := p.cfg.buildID
	if buildID == "" {
		buildID = logging.NewBuildID()
	}
	ctx = logging.WithBuildID(ctx, buildID)
	logger := logging.FromContext(ctx, p.logger)

	table := reftable.New()
	for _, k := range slices.Sorted(maps.Keys(p.cfg.references)) {
		if err := table.Insert(k, p.cfg.references[k]); err != nil {
			return nil, err
		}
	}

	res := &Result{BuildID: buildID}
	res.Stats.Documents = len(docs)
	var used pipeline.UsedArtifacts

	// Phase 1: blocks, all documents.
	blocks, idx, err := forEach(ctx, p.cfg.workers, docs, func(ctx context.Context, _ int, d *Document) (*pipeline.BlockResult, error) {
		return p.scanner.Blocks(ctx, chapter(d, d.Text))
	})
	if err != nil {
		return nil, docError(docs, idx, PhaseBlocks, err)
	}
	for i, b := range blocks {
		if err := table.Merge(b.Entries); err != nil {
			return nil, docError(docs, i, PhaseBlocks, err)
		}
		used.Merge(&b.Used)
		res.Stats.Figures += b.Figures
		res.Stats.Equations += b.Equations
		res.Stats.Skipped += b.Skipped
	}

	// Phase 2: inline spans, with the complete table.
	inlines, idx, err := forEach(ctx, p.cfg.workers, docs, func(ctx context.Context, i int, d *Document) (*pipeline.InlineResult, error) {
		return p.scanner.Inline(ctx, chapter(d, blocks[i].Text), table)
	})
	if err != nil {
		return nil, docError(docs, idx, PhaseInline, err)
	}
	for i, r := range inlines {
		docs[i].Text = r.Text
		used.Merge(&r.Used)
		res.Stats.InlineMath += r.Math
		res.Stats.References += r.References
	}

	res.References = table.Snapshot()
	res.Used = used.Names()

	p.record(ctx, logger, buildID, res.Used)
	logger.Info("build complete",
		"documents", res.Stats.Documents,
		"figures", res.Stats.Figures,
		"equations", res.Stats.Equations,
		"inline", res.Stats.InlineMath,
		"artifacts", len(res.Used),
	)
	return res, nil
}

func chapter(d *Document, text string) pipeline.Chapter {
	return pipeline.Chapter{ID: d.ID, Head: d.HeadNumber, Text: text}
}

func docError(docs []*Document, idx int, phase Phase, err error) error {
	if idx < 0 || idx >= len(docs) {
		return err
	}
	return &DocumentError{ID: docs[idx].ID, Phase: phase, Err: err}
}

// record indexes used artifacts in the manifest: new images are recorded,
// known ones only get their last use and build refreshed. Failures are
// logged; the manifest never fails a build.
func (p *Preprocessor) record(ctx context.Context, logger *slog.Logger, buildID string, used []string) {
	if p.manifest == nil {
		return
	}
	for _, name := range used {
		info, err := os.Stat(filepath.Join(p.store.Dir(), name))
		if err != nil {
			logger.Warn("artifact missing from cache", "image", name, "error", err)
			continue
		}
		_, known, err := p.manifest.Get(ctx, name)
		if err != nil {
			logger.Warn("manifest lookup failed", "image", name, "error", err)
			return
		}
		if known {
			if err := p.manifest.Touch(ctx, name, buildID); err != nil {
				logger.Warn("manifest update failed", "image", name, "error", err)
				return
			}
			continue
		}
		hash, _, _ := strings.Cut(name, ".")
		err = p.manifest.Record(ctx, manifest.Record{
			Image:   name,
			Hash:    hash,
			Kind:    strings.TrimPrefix(path.Ext(name), "."),
			Bytes:   info.Size(),
			BuildID: buildID,
		})
		if err != nil {
			logger.Warn("manifest update failed", "image", name, "error", err)
			return
		}
	}
}

// CopyAssets copies the artifacts used by a build from the cache into
// dest, creating it if needed. Nothing is copied when dest is the cache
// directory itself.
func (p *Preprocessor) CopyAssets(res *Result, dest string) error {
	if res == nil {
		return errors.New("nil result")
	}
	if same, err := sameDir(p.store.Dir(), dest); err == nil && same {
		return nil
	}
	for _, name := range res.Used {
		if err := p.store.CopyTo(name, dest); err != nil {
			return err
		}
	}
	return nil
}

func sameDir(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
