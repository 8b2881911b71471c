package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	scimd "github.com/alnah/go-scimd"
	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/diff"
	"github.com/alnah/go-scimd/internal/fileutil"
	"github.com/alnah/go-scimd/internal/preview"
)

// Sentinel errors for the build command.
var (
	ErrNoChapters   = errors.New("no markdown chapters found")
	ErrReadChapter  = errors.New("failed to read chapter")
	ErrWriteChapter = errors.New("failed to write chapter")
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions = 0o644 // rw-r--r--: owner read+write, others read
)

// summaryFile is mdbook's table of contents, never a chapter.
const summaryFile = "SUMMARY.md"

// chapterFile is a chapter found on disk.
type chapterFile struct {
	Rel  string // path relative to the source directory, slash separated
	Path string
}

// runBuild preprocesses a directory of chapters without mdbook.
func runBuild(ctx context.Context, args []string, env *Environment) error {
	fset := newFlagSet("build")
	var f buildFlags
	addCommonFlags(fset, &f.common)
	addRenderFlags(fset, &f.render)
	fset.StringVarP(&f.output, "output", "o", "build", "output directory")
	fset.BoolVar(&f.diff, "diff", false, "print a unified diff instead of writing chapters")
	fset.IntVar(&f.context, "context", diff.DefaultContext, "diff context lines")
	fset.StringVar(&f.html, "html", "", "also write an HTML preview into this directory")

	positional, err := parseArgs(fset, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printBuildUsage(env.Stdout)
			return nil
		}
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("%w: build takes one source directory", ErrUsage)
	}
	if f.context < 0 {
		return fmt.Errorf("%w: --context must not be negative", ErrUsage)
	}
	srcDir := positional[0]

	cfg, logger, err := configure(env, &f.common, func(cfg *config.Config) {
		applyRenderFlags(fset, &f.render, cfg)
	})
	if err != nil {
		return err
	}

	files, err := discoverChapters(srcDir, cfg)
	if err != nil {
		return err
	}
	docs := make([]*scimd.Document, len(files))
	originals := make([]string, len(files))
	for i, cf := range files {
		data, err := os.ReadFile(cf.Path) // #nosec G304 -- discovered under the source directory
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrReadChapter, cf.Path, err)
		}
		originals[i] = string(data)
		docs[i] = &scimd.Document{ID: cf.Rel, HeadNumber: strconv.Itoa(i+1) + ".", Text: originals[i]}
	}

	sess, err := openSession(ctx, cfg, env, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	p, err := sess.preprocessor()
	if err != nil {
		return err
	}
	res, err := p.Process(ctx, docs)
	if err != nil {
		return err
	}
	logStats(logger, res)

	if f.diff {
		changes := make([]diff.Change, 0, len(docs))
		for i, d := range docs {
			patch, err := diff.Unified(d.ID, originals[i], d.Text, f.context)
			if err != nil {
				return err
			}
			changes = append(changes, diff.Change{Name: d.ID, Patch: patch})
		}
		n, err := diff.Write(env.Stdout, changes)
		if err != nil {
			return err
		}
		logger.Info("dry run", "chapters_changed", n)
		return nil
	}

	outDir := f.output
	for _, d := range docs {
		if err := writeChapter(outDir, d.ID, d.Text); err != nil {
			return err
		}
	}
	if sess.bibPage != "" {
		if err := writeChapter(outDir, bibliographyPath, sess.bibPage); err != nil {
			return err
		}
	}
	if err := p.CopyAssets(res, filepath.Join(outDir, "assets")); err != nil {
		return err
	}
	logger.Info("chapters written", "dir", outDir, "count", len(docs))

	if f.html == "" {
		return nil
	}
	pages := make([]preview.Page, 0, len(docs)+1)
	for _, d := range docs {
		pages = append(pages, preview.Page{Title: chapterTitle(d.ID, d.Text), File: preview.FileName(d.ID), Markdown: d.Text})
	}
	if sess.bibPage != "" {
		pages = append(pages, preview.Page{Title: "Bibliography", File: preview.FileName(bibliographyPath), Markdown: sess.bibPage})
	}
	index, err := preview.NewConverter(outDir).WriteSite(ctx, f.html, pages)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stderr, "preview: %s\n", index)
	return nil
}

// discoverChapters lists the .md files under dir in lexical order,
// skipping SUMMARY.md and the configured cache and fragment directories.
func discoverChapters(dir string, cfg *config.Config) ([]chapterFile, error) {
	if !fileutil.DirExists(dir) {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrReadChapter, dir)
	}
	skip := make(map[string]bool)
	for _, p := range []string{cfg.Paths.Cache, cfg.Paths.Fragments} {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(cfg.Resolve(p)); err == nil {
			skip[abs] = true
		}
	}

	var files []chapterFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, err := filepath.Abs(path); err == nil && skip[abs] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") || d.Name() == summaryFile {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, chapterFile{Rel: filepath.ToSlash(rel), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadChapter, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChapters, dir)
	}
	return files, nil
}

func writeChapter(outDir, rel, text string) error {
	path := filepath.Join(outDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteChapter, err)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(text), filePermissions); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteChapter, path, err)
	}
	return nil
}

// chapterTitle returns the first ATX heading, or the file name.
func chapterTitle(rel, text string) string {
	for _, line := range strings.Split(text, "\n") {
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(title)
		}
	}
	return strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
}
