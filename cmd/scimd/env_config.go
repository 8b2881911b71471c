package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/alnah/go-scimd/internal/config"
)

// envPrefix marks the variables scimd reads.
const envPrefix = "SCIMD_"

// envConfig holds configuration from environment variables.
// Provides CI-friendly overrides without requiring YAML files.
type envConfig struct {
	ConfigPath string // SCIMD_CONFIG: config file name or path
	CacheDir   string // SCIMD_CACHE_DIR: render cache directory
	LogLevel   string // SCIMD_LOG_LEVEL: debug, info, warn, error
	LogFormat  string // SCIMD_LOG_FORMAT: text or json
	MathEngine string // SCIMD_MATH_ENGINE: latex or mathml
	Workers    int    // SCIMD_WORKERS: concurrent chapters
}

// knownEnvVars lists valid SCIMD_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"SCIMD_CONFIG":      true,
	"SCIMD_CACHE_DIR":   true,
	"SCIMD_LOG_LEVEL":   true,
	"SCIMD_LOG_FORMAT":  true,
	"SCIMD_MATH_ENGINE": true,
	"SCIMD_WORKERS":     true,
}

// loadEnvConfig reads configuration through getenv.
func loadEnvConfig(getenv func(string) string) *envConfig {
	cfg := &envConfig{
		ConfigPath: getenv("SCIMD_CONFIG"),
		CacheDir:   getenv("SCIMD_CACHE_DIR"),
		LogLevel:   getenv("SCIMD_LOG_LEVEL"),
		LogFormat:  getenv("SCIMD_LOG_FORMAT"),
		MathEngine: getenv("SCIMD_MATH_ENGINE"),
	}

	if workers := getenv("SCIMD_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}
	return cfg
}

// warnUnknownEnvVars writes a warning for each unrecognized SCIMD_*
// variable, in name order.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	var unknown []string
	for _, env := range environ {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		name, _, _ := strings.Cut(env, "=")
		if !knownEnvVars[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
	}
}

// applyEnvConfig overrides config file values with set variables.
// Precedence: CLI flags > mdbook settings > env vars > config file > defaults
// (the later layers are applied by the commands).
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	if env.CacheDir != "" {
		cfg.Paths.Cache = env.CacheDir
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Log.Format = env.LogFormat
	}
	if env.MathEngine != "" {
		cfg.Math.Engine = env.MathEngine
	}
	if env.Workers > 0 {
		cfg.Render.Workers = env.Workers
	}
}
