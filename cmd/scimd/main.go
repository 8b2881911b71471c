// Command scimd is a scientific Markdown preprocessor for mdbook.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	os.Exit(runMain(os.Args, DefaultEnv()))
}

// runMain runs the command named in args and returns the exit code.
// Without a command, scimd acts as an mdbook preprocessor.
func runMain(args []string, env *Environment) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(env.Stderr, "scimd: internal error: %v\n", r)
			code = ExitGeneral
		}
	}()

	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply and the program continues safely.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	warnUnknownEnvVars(env.Stderr, env.Environ())

	ctx, stop := notifyContext(context.Background())
	defer stop()

	cmd, rest := "preprocess", []string{}
	if len(args) > 1 {
		cmd, rest = args[1], args[2:]
		if len(cmd) > 0 && cmd[0] == '-' && !isHelpFlag(cmd) && !isVersionFlag(cmd) {
			// Flags without a command belong to preprocess.
			cmd, rest = "preprocess", args[1:]
		}
	}

	var err error
	switch {
	case cmd == "preprocess":
		err = runPreprocess(ctx, rest, env)
	case cmd == "supports":
		return runSupports(rest, env)
	case cmd == "build":
		err = runBuild(ctx, rest, env)
	case cmd == "cache":
		err = runCache(ctx, rest, env)
	case cmd == "doctor":
		return runDoctorCmd(rest, env)
	case cmd == "version" || isVersionFlag(cmd):
		fmt.Fprintf(env.Stdout, "scimd %s\n", Version)
		return ExitSuccess
	case cmd == "help" || isHelpFlag(cmd):
		return runHelp(rest, env)
	default:
		fmt.Fprintf(env.Stderr, "unknown command: %s\n\n", cmd)
		printUsage(env.Stderr)
		return ExitUsage
	}

	if err != nil {
		printError(env.Stderr, err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func isHelpFlag(s string) bool    { return s == "-h" || s == "--help" }
func isVersionFlag(s string) bool { return s == "--version" }

// notifyContext returns a context that is canceled when a shutdown signal
// is received. Call stop() to release resources.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}
