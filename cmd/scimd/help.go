package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: scimd [command] [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Scientific Markdown preprocessor: renders $$ figure and equation")
	fmt.Fprintln(w, "directives and $ inline math to images, and resolves $ref:...$ links.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  preprocess  Run as an mdbook preprocessor (default)")
	fmt.Fprintln(w, "  supports    Report whether a renderer is supported")
	fmt.Fprintln(w, "  build       Preprocess a directory of chapters")
	fmt.Fprintln(w, "  cache       Inspect, prune, export or import the render cache")
	fmt.Fprintln(w, "  doctor      Check renderer tools and configuration")
	fmt.Fprintln(w, "  version     Show version information")
	fmt.Fprintln(w, "  help        Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'scimd help <command>' for details on a specific command.")
}

// printCommonFlags prints the flags every command accepts.
func printCommonFlags(w io.Writer) {
	fmt.Fprintln(w, "Common:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only log errors")
	fmt.Fprintln(w, "  -v, --verbose             Log debug details")
	fmt.Fprintln(w, "      --log-format <s>      Log encoding: text, json")
}

// printRenderFlags prints the flags overriding the render configuration.
func printRenderFlags(w io.Writer) {
	fmt.Fprintln(w, "Rendering:")
	fmt.Fprintln(w, "  -t, --target <s>          Output format: html, markdown, latex, tectonic")
	fmt.Fprintln(w, "      --math-engine <s>     Equation renderer: latex, mathml")
	fmt.Fprintln(w, "      --hash <s>            Cache hash: sha256, blake3")
	fmt.Fprintln(w, "      --cache-dir <dir>     Render cache directory")
	fmt.Fprintln(w, "      --fragments <dir>     LaTeX fragment directory")
	fmt.Fprintln(w, "      --assets <dir>        Directory receiving the used artifacts")
	fmt.Fprintln(w, "      --bibliography <file> BibTeX database")
	fmt.Fprintln(w, "      --bib2xhtml <dir>     Directory holding bib2xhtml.pl")
	fmt.Fprintln(w, "  -w, --workers <n>         Concurrent chapters (0 = auto)")
	fmt.Fprintln(w, "      --manifest            Record used artifacts in the cache manifest")
}

// printEnvironment prints the recognized environment variables.
func printEnvironment(w io.Writer) {
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  SCIMD_CONFIG              Config file name or path")
	fmt.Fprintln(w, "  SCIMD_CACHE_DIR           Render cache directory")
	fmt.Fprintln(w, "  SCIMD_LOG_LEVEL           debug, info, warn, error")
	fmt.Fprintln(w, "  SCIMD_LOG_FORMAT          text, json")
	fmt.Fprintln(w, "  SCIMD_MATH_ENGINE         latex, mathml")
	fmt.Fprintln(w, "  SCIMD_WORKERS             Concurrent chapters")
}

// printPreprocessUsage prints usage for the preprocess command.
func printPreprocessUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: scimd [preprocess] [flags] < input.json > output.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Read mdbook's [context, book] JSON from stdin, process every chapter")
	fmt.Fprintln(w, "and write the book back to stdout. Settings come from the config file,")
	fmt.Fprintln(w, "then the [preprocessor.scientific] table of book.toml, then flags.")
	fmt.Fprintln(w)
	printCommonFlags(w)
	fmt.Fprintln(w)
	printRenderFlags(w)
	fmt.Fprintln(w)
	printEnvironment(w)
}

// printSupportsUsage prints usage for the supports command.
func printSupportsUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: scimd supports <renderer>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit 0 if the renderer is supported, 1 otherwise.")
	fmt.Fprintln(w, "Supported: html, markdown, latex, tectonic.")
}

// printBuildUsage prints usage for the build command.
func printBuildUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: scimd build <dir> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Preprocess every .md file under dir, in path order, without mdbook.")
	fmt.Fprintln(w, "Chapter n is numbered \"n.\".")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <dir>        Output directory (default: build)")
	fmt.Fprintln(w, "      --diff                Print a unified diff instead of writing chapters")
	fmt.Fprintln(w, "      --context <n>         Diff context lines (default: 3)")
	fmt.Fprintln(w, "      --html <dir>          Also write an HTML preview")
	fmt.Fprintln(w)
	printCommonFlags(w)
	fmt.Fprintln(w)
	printRenderFlags(w)
}

// printCacheUsage prints usage for the cache command.
func printCacheUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: scimd cache <subcommand> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Subcommands:")
	fmt.Fprintln(w, "  stats                     Count cached artifacts (--json)")
	fmt.Fprintln(w, "  prune                     Remove artifacts unused by the last build (-n, --dry-run)")
	fmt.Fprintln(w, "  export <file.tar.xz>      Archive the cache")
	fmt.Fprintln(w, "  import <file.tar.xz>      Add an archive to the cache")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "      --cache-dir <dir>     Render cache directory")
	fmt.Fprintln(w)
	printCommonFlags(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: scimd doctor [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check renderer tools, the bibliography and the cache directory.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "      --json                Output in JSON format")
	fmt.Fprintln(w, "      --show-config         Print the effective configuration")
	fmt.Fprintln(w)
	printCommonFlags(w)
}

// runHelp prints help for a command and returns an exit code.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}
	switch args[0] {
	case "preprocess":
		printPreprocessUsage(env.Stdout)
	case "supports":
		printSupportsUsage(env.Stdout)
	case "build":
		printBuildUsage(env.Stdout)
	case "cache":
		printCacheUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: scimd version")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: scimd help [command]")
	default:
		fmt.Fprintf(env.Stderr, "unknown command: %s\n\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
	return ExitSuccess
}
