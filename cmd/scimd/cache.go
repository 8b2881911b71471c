package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-scimd/internal/archive"
	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/fileutil"
	"github.com/alnah/go-scimd/internal/manifest"
)

// cacheStats is the output of "cache stats".
type cacheStats struct {
	Dir       string `json:"dir"`
	Entries   int    `json:"entries"`
	Files     int    `json:"files"`
	Bytes     int64  `json:"bytes"`
	Manifest  bool   `json:"manifest"`
	Recorded  int    `json:"recorded,omitempty"`
	Builds    int    `json:"builds,omitempty"`
	LastBuild string `json:"last_build,omitempty"`
}

// runCache dispatches the cache subcommands.
func runCache(ctx context.Context, args []string, env *Environment) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printCacheUsage(env.Stdout)
		if len(args) == 0 {
			return fmt.Errorf("%w: cache needs a subcommand", ErrUsage)
		}
		return nil
	}
	sub, rest := args[0], args[1:]

	fset := newFlagSet("cache " + sub)
	var f cacheFlags
	addCommonFlags(fset, &f.common)
	fset.StringVar(&f.cacheDir, "cache-dir", "", "render cache directory")
	switch sub {
	case "stats":
		fset.BoolVar(&f.json, "json", false, "output in JSON format")
	case "prune":
		fset.BoolVarP(&f.dryRun, "dry-run", "n", false, "list stale artifacts without removing them")
	case "export", "import":
	default:
		return fmt.Errorf("%w: unknown cache subcommand %q", ErrUsage, sub)
	}

	positional, err := parseArgs(fset, rest)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printCacheUsage(env.Stdout)
			return nil
		}
		return err
	}

	cfg, logger, err := configure(env, &f.common, func(cfg *config.Config) {
		if fset.Changed("cache-dir") {
			cfg.Paths.Cache = f.cacheDir
		}
	})
	if err != nil {
		return err
	}
	alg, err := cache.ParseAlgorithm(cfg.Render.Hash)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidValue, err)
	}
	store, err := cache.NewStore(cfg.Resolve(cfg.Paths.Cache), alg)
	if err != nil {
		return err
	}

	switch sub {
	case "stats":
		if len(positional) != 0 {
			return fmt.Errorf("%w: cache stats takes no arguments", ErrUsage)
		}
		st, err := collectStats(ctx, store, cfg)
		if err != nil {
			return err
		}
		if f.json {
			enc := json.NewEncoder(env.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printStats(env.Stdout, st)
		return nil

	case "prune":
		if len(positional) != 0 {
			return fmt.Errorf("%w: cache prune takes no arguments", ErrUsage)
		}
		if !hasManifest(cfg) {
			return fmt.Errorf("%w: no manifest at %s; build with manifest.enabled first", ErrUsage, cfg.ManifestPath())
		}
		m, err := manifest.Open(ctx, cfg.ManifestPath())
		if err != nil {
			return err
		}
		defer m.Close()
		removed, freed, err := prune(ctx, store, m, f.dryRun, env.Stdout)
		if err != nil {
			return err
		}
		logger.Info("cache pruned", "entries", removed, "bytes", freed, "dry_run", f.dryRun)
		return nil

	case "export":
		if len(positional) != 1 {
			return fmt.Errorf("%w: cache export takes one archive path", ErrUsage)
		}
		n, err := archive.Export(ctx, store, positional[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stderr, "exported %d files to %s\n", n, positional[0])
		return nil

	default: // import
		if len(positional) != 1 {
			return fmt.Errorf("%w: cache import takes one archive path", ErrUsage)
		}
		n, err := archive.Import(ctx, positional[0], store)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stderr, "imported %d files into %s\n", n, store.Dir())
		return nil
	}
}

func collectStats(ctx context.Context, store *cache.Store, cfg *config.Config) (*cacheStats, error) {
	entries, err := store.Entries()
	if err != nil {
		return nil, err
	}
	st := &cacheStats{Dir: store.Dir(), Entries: len(entries), Manifest: hasManifest(cfg)}
	for _, e := range entries {
		st.Files += len(e.Files)
		st.Bytes += e.Bytes
	}
	if !st.Manifest {
		return st, nil
	}

	m, err := manifest.Open(ctx, cfg.ManifestPath())
	if err != nil {
		return nil, err
	}
	defer m.Close()
	ms, err := m.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.Recorded = ms.Artifacts
	st.Builds = ms.Builds
	st.LastBuild = ms.LastBuild
	return st, nil
}

// hasManifest reports whether a manifest is configured or was left by an
// earlier build.
func hasManifest(cfg *config.Config) bool {
	return cfg.Manifest.Enabled || fileutil.FileExists(cfg.ManifestPath())
}

func printStats(w io.Writer, st *cacheStats) {
	fmt.Fprintf(w, "cache:     %s\n", st.Dir)
	fmt.Fprintf(w, "entries:   %d (%d files, %d bytes)\n", st.Entries, st.Files, st.Bytes)
	if !st.Manifest {
		fmt.Fprintln(w, "manifest:  none")
		return
	}
	fmt.Fprintf(w, "manifest:  %d artifacts over %d builds\n", st.Recorded, st.Builds)
	if st.LastBuild != "" {
		fmt.Fprintf(w, "build:     %s\n", st.LastBuild)
	}
}

// prune removes the cache entries whose artifacts the last recorded build
// did not use. An entry still referenced by a current artifact is kept.
// Returns the number of entries removed and the bytes freed.
func prune(ctx context.Context, store *cache.Store, m *manifest.Manifest, dryRun bool, w io.Writer) (int, int64, error) {
	last, err := m.LastBuild(ctx)
	if err != nil || last == "" {
		return 0, 0, err
	}
	all, err := m.All(ctx)
	if err != nil {
		return 0, 0, err
	}
	live := make(map[string]bool)
	for _, r := range all {
		if r.BuildID == last {
			live[r.Hash] = true
		}
	}
	stale, err := m.Stale(ctx, last)
	if err != nil {
		return 0, 0, err
	}

	removed := 0
	var freed int64
	done := make(map[string]bool)
	for _, r := range stale {
		if err := ctx.Err(); err != nil {
			return removed, freed, err
		}
		id, _, _ := strings.Cut(r.Image, ".")
		if !live[id] && !done[id] {
			done[id] = true
			if dryRun {
				fmt.Fprintf(w, "would remove %s.*\n", id)
			} else {
				n, err := store.Remove(id)
				if err != nil {
					return removed, freed, err
				}
				freed += n
				fmt.Fprintf(w, "removed %s.* (%d bytes)\n", id, n)
			}
			removed++
		}
		if !dryRun {
			if err := m.Delete(ctx, r.Image); err != nil {
				return removed, freed, err
			}
		}
	}
	return removed, freed, nil
}
