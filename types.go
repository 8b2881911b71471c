package scimd

import (
	"log/slog"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/format"
	"github.com/alnah/go-scimd/internal/manifest"
	"github.com/alnah/go-scimd/internal/render"
	"github.com/alnah/go-scimd/internal/source"
)

// Target is the output format of the downstream renderer.
type Target = format.Target

// Supported targets.
const (
	HTML     = format.HTML
	Markdown = format.Markdown
	Tectonic = format.Tectonic
	LaTeX    = format.LaTeX
)

// ParseTarget converts a renderer name such as "html", case-insensitively.
func ParseTarget(s string) (Target, error) {
	return format.ParseTarget(s)
}

// Renderer extension points.
type (
	// Backend renders a content span into an artifact.
	Backend = render.Backend
	// Backends holds the backend used for each directive family.
	Backends = render.Set
	// Artifact is the rendered form of one piece of content.
	Artifact = render.Artifact
	// CommandRunner runs the external renderer tools.
	CommandRunner = render.CommandRunner
	// Command is one external tool invocation.
	Command = render.Command
	// Span is a piece of chapter text with its position.
	Span = source.Span
	// Position is a 1-based line and column.
	Position = source.Position
	// Manifest is the SQLite index of cached artifacts.
	Manifest = manifest.Manifest
)

// Document is one chapter. Process replaces Text in place.
type Document struct {
	ID         string // identifier used in errors and logs
	HeadNumber string // dotted chapter number such as "2" or "1.3."; may be empty
	Text       string
}

// Stats counts what a build did.
type Stats struct {
	Documents  int
	Figures    int
	Equations  int // numbered display equations
	InlineMath int
	References int // inline references resolved
	Skipped    int // directives dropped for a missing fragment
}

// Result is the outcome of a successful Process call.
type Result struct {
	BuildID    string
	References map[string]string // every key defined or seeded, with its label
	Used       []string          // artifact file names in first-use order
	Stats      Stats
}

// Option configures a Preprocessor.
type Option func(*preprocessorConfig)

// preprocessorConfig holds Preprocessor configuration.
type preprocessorConfig struct {
	cacheDir    string
	fragmentDir string
	target      Target
	hash        string
	engine      string
	backends    *render.Set
	runner      render.CommandRunner
	logger      *slog.Logger
	references  map[string]string
	manifest    *manifest.Manifest
	workers     int
	blockScale  float64
	inlineScale float64
	buildID     string
}

// Default locations, relative to the working directory.
const (
	DefaultCacheDir    = "src/assets"
	DefaultFragmentDir = "src/fragments"
)

// WithCacheDir sets the directory holding generated sources and images.
func WithCacheDir(dir string) Option {
	return func(c *preprocessorConfig) {
		c.cacheDir = dir
	}
}

// WithFragmentDir sets the directory body-less directives load <key>.tex from.
func WithFragmentDir(dir string) Option {
	return func(c *preprocessorConfig) {
		c.fragmentDir = dir
	}
}

// WithTarget sets the output format.
func WithTarget(t Target) Option {
	return func(c *preprocessorConfig) {
		c.target = t
	}
}

// WithHash selects the content hash: "sha256" (default) or "blake3".
func WithHash(name string) Option {
	return func(c *preprocessorConfig) {
		c.hash = name
	}
}

// WithMathEngine selects how equations render: "latex" (default) or "mathml".
// Ignored when WithBackends is set.
func WithMathEngine(name string) Option {
	return func(c *preprocessorConfig) {
		c.engine = name
	}
}

// WithBackends replaces the renderer backends.
func WithBackends(b Backends) Option {
	return func(c *preprocessorConfig) {
		c.backends = &b
	}
}

// WithRunner replaces the command runner of the default backends.
func WithRunner(r CommandRunner) Option {
	return func(c *preprocessorConfig) {
		c.runner = r
	}
}

// WithLogger sets the logger. Defaults to discarding logs.
func WithLogger(l *slog.Logger) Option {
	return func(c *preprocessorConfig) {
		c.logger = l
	}
}

// WithReferences seeds the reference table, for example with
// bibliography labels. The map is copied.
func WithReferences(refs map[string]string) Option {
	return func(c *preprocessorConfig) {
		if c.references == nil {
			c.references = make(map[string]string, len(refs))
		}
		for k, v := range refs {
			c.references[k] = v
		}
	}
}

// WithManifest records used artifacts in m after each successful build.
func WithManifest(m *Manifest) Option {
	return func(c *preprocessorConfig) {
		c.manifest = m
	}
}

// WithWorkers sets how many chapters are scanned concurrently within a
// pass. Zero picks a value from GOMAXPROCS. Defaults to 1.
func WithWorkers(n int) Option {
	return func(c *preprocessorConfig) {
		c.workers = ResolveWorkers(n)
	}
}

// WithScales sets the zoom of display and inline math. Zero keeps a default.
func WithScales(block, inline float64) Option {
	return func(c *preprocessorConfig) {
		c.blockScale = block
		c.inlineScale = inline
	}
}

// WithBuildID fixes the build id instead of generating one per Process call.
func WithBuildID(id string) Option {
	return func(c *preprocessorConfig) {
		c.buildID = id
	}
}

func defaultConfig() preprocessorConfig {
	return preprocessorConfig{
		cacheDir:    DefaultCacheDir,
		fragmentDir: DefaultFragmentDir,
		target:      HTML,
		hash:        string(cache.SHA256),
		workers:     1,
	}
}
