// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"strings"

	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// toolPackages names what provides each external renderer tool.
var toolPackages = map[string]string{
	"latex":    "a TeX distribution (TeX Live, MiKTeX)",
	"dvisvgm":  "dvisvgm (shipped with TeX Live)",
	"gnuplot":  "gnuplot",
	"tectonic": "tectonic",
}

// ForBinaryNotFound returns hints for a renderer tool missing from PATH.
func ForBinaryNotFound(tool string) string {
	var hints []string
	if pkg, ok := toolPackages[tool]; ok {
		hints = append(hints, "install "+pkg)
	} else if tool != "" {
		hints = append(hints, "install "+tool)
	}

	inCI := os.Getenv("CI") != "" ||
		os.Getenv("GITHUB_ACTIONS") != "" ||
		os.Getenv("GITLAB_CI") != ""
	if inCI || IsInContainer() {
		hints = append(hints, "in Docker/CI, add texlive-latex-extra, dvisvgm and gnuplot to the image")
	}
	hints = append(hints, "run 'scimd doctor' to check all tools")
	return formatHints(hints)
}

// ForLatexError returns hints for a LaTeX compile failure.
func ForLatexError() string {
	return format("the equation is wrapped in $\\displaystyle ... $; drop surrounding $ or \\[ \\] from the source")
}

// ForMathMLFallback suggests the pure Go math engine when LaTeX is unavailable.
func ForMathMLFallback() string {
	return format("set math.engine: mathml to render equations without LaTeX")
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating a config in the user config directory.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"
	marker := string(os.PathSeparator) + config.AppName + string(os.PathSeparator)
	for _, p := range searchedPaths {
		if strings.Contains(p, marker) {
			hint += " or create " + p
			break
		}
	}
	return format(hint)
}

// ForCacheDirectory returns hints for cache directory errors.
func ForCacheDirectory() string {
	return format("check the cache directory exists and is writable, or set SCIMD_CACHE_DIR")
}

// ForInvalidBibliography returns hints for bib2xhtml failures.
func ForInvalidBibliography() string {
	return format("run bibtex on the .bib file to see the reported errors")
}

// ForUnevenMarkers returns hints for an unclosed inline $ span.
func ForUnevenMarkers() string {
	return format(`escape a literal dollar sign as \$`)
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
