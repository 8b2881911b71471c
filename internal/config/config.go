// Package config loads the scimd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-scimd/internal/fileutil"
	"github.com/alnah/go-scimd/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// AppName is the directory name used under the user config directory.
const AppName = "scimd"

// Field limits.
const (
	MaxPathLength = 4096
	MaxScale      = 10.0
	MaxWorkers    = 64
)

// Config holds all configuration for a preprocessing run.
type Config struct {
	Paths        PathsConfig        `yaml:"paths"`
	Render       RenderConfig       `yaml:"render"`
	Math         MathConfig         `yaml:"math"`
	Bibliography BibliographyConfig `yaml:"bibliography"`
	Manifest     ManifestConfig     `yaml:"manifest"`
	Log          LogConfig          `yaml:"log"`
}

// PathsConfig locates the book and its asset directories. Relative paths
// are resolved against the book root.
type PathsConfig struct {
	Root      string `yaml:"root"`      // book root (default: current directory)
	Fragments string `yaml:"fragments"` // LaTeX fragment sources (default: src/fragments)
	Cache     string `yaml:"cache"`     // render cache (default: src/assets)
	Assets    string `yaml:"assets"`    // published assets; empty = the cache itself
}

// RenderConfig controls output formatting.
type RenderConfig struct {
	Target      string  `yaml:"target"`      // html, markdown, latex, tectonic (default: html)
	Hash        string  `yaml:"hash"`        // sha256 or blake3 (default: sha256)
	BlockScale  float64 `yaml:"blockScale"`  // 0 = default
	InlineScale float64 `yaml:"inlineScale"` // 0 = default
	Workers     int     `yaml:"workers"`     // 0 = auto, 1 = sequential
}

// MathConfig selects the equation renderer.
type MathConfig struct {
	Engine string `yaml:"engine"` // latex or mathml (default: latex)
}

// BibliographyConfig points at a BibTeX database and the bib2xhtml tool.
type BibliographyConfig struct {
	File      string `yaml:"file"`      // .bib file; empty = no bibliography
	Bib2xhtml string `yaml:"bib2xhtml"` // directory holding bib2xhtml.pl; empty = ordinal labels only
}

// ManifestConfig enables the SQLite record of cached artifacts.
type ManifestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: <cache>/manifest.db
}

// LogConfig sets log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: warn)
	Format string `yaml:"format"` // text or json (default: text)
}

// Allowed enum values.
var (
	validTargets   = []string{"html", "markdown", "latex", "tectonic"}
	validHashes    = []string{"sha256", "blake3"}
	validEngines   = []string{"latex", "mathml"}
	validLogLevels = []string{"debug", "info", "warn", "warning", "error"}
	validFormats   = []string{"text", "json"}
)

// Validate checks enum values, ranges and path lengths.
// Called by LoadConfig, and by callers that build a Config by hand.
func (c *Config) Validate() error {
	paths := []struct {
		name  string
		value string
	}{
		{"paths.root", c.Paths.Root},
		{"paths.fragments", c.Paths.Fragments},
		{"paths.cache", c.Paths.Cache},
		{"paths.assets", c.Paths.Assets},
		{"bibliography.file", c.Bibliography.File},
		{"bibliography.bib2xhtml", c.Bibliography.Bib2xhtml},
		{"manifest.path", c.Manifest.Path},
	}
	for _, p := range paths {
		if err := validateFieldLength(p.name, p.value, MaxPathLength); err != nil {
			return err
		}
	}

	if err := validateEnum("render.target", c.Render.Target, validTargets); err != nil {
		return err
	}
	if err := validateEnum("render.hash", c.Render.Hash, validHashes); err != nil {
		return err
	}
	if err := validateEnum("math.engine", c.Math.Engine, validEngines); err != nil {
		return err
	}
	if err := validateEnum("log.level", c.Log.Level, validLogLevels); err != nil {
		return err
	}
	if err := validateEnum("log.format", c.Log.Format, validFormats); err != nil {
		return err
	}

	if err := validateScale("render.blockScale", c.Render.BlockScale); err != nil {
		return err
	}
	if err := validateScale("render.inlineScale", c.Render.InlineScale); err != nil {
		return err
	}
	if c.Render.Workers < 0 || c.Render.Workers > MaxWorkers {
		return fmt.Errorf("%w: render.workers: must be between 0 and %d, got %d",
			ErrInvalidValue, MaxWorkers, c.Render.Workers)
	}

	if c.Bibliography.Bib2xhtml != "" && c.Bibliography.File == "" {
		return fmt.Errorf("%w: bibliography.bib2xhtml: requires bibliography.file", ErrInvalidValue)
	}
	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// validateEnum accepts an empty value (meaning the default) or one of allowed.
func validateEnum(fieldName, value string, allowed []string) error {
	if value == "" {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %q (must be one of %s)",
		ErrInvalidValue, fieldName, value, strings.Join(allowed, ", "))
}

func validateScale(fieldName string, v float64) error {
	if v < 0 || v > MaxScale {
		return fmt.Errorf("%w: %s: must be between 0 and %.0f, got %.2f", ErrInvalidValue, fieldName, MaxScale, v)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Fragments: "src/fragments",
			Cache:     "src/assets",
		},
		Render: RenderConfig{Target: "html", Hash: "sha256", Workers: 1},
		Math:   MathConfig{Engine: "latex"},
		Log:    LogConfig{Level: "warn", Format: "text"},
	}
}

// Resolve returns path relative to the book root. Absolute and empty paths
// are returned unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Paths.Root == "" {
		return path
	}
	return filepath.Join(c.Paths.Root, path)
}

// ManifestPath returns the manifest database location.
func (c *Config) ManifestPath() string {
	if c.Manifest.Path != "" {
		return c.Resolve(c.Manifest.Path)
	}
	return filepath.Join(c.Resolve(c.Paths.Cache), "manifest.db")
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's searched in standard locations. Fields absent from the
// file keep their DefaultConfig values.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !fileutil.IsFilePath(nameOrPath) {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.Unmarshal(data, cfg, yamlutil.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveConfigPath searches for a config file by name.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, <user config dir>/scimd/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, AppName, name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// SearchPaths lists where LoadConfig looks for a config name, for hints.
func SearchPaths(name string) []string {
	paths := []string{name + ".yaml", name + ".yml"}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(userConfigDir, AppName, name+".yaml"),
			filepath.Join(userConfigDir, AppName, name+".yml"))
	}
	return paths
}
