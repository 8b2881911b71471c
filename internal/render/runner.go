package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/alnah/go-scimd/internal/process"
)

// Command describes one external process invocation.
type Command struct {
	Name  string   // binary name, resolved through PATH
	Args  []string // arguments
	Dir   string   // working directory
	Stdin string   // data written to standard input
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandRunner abstracts command execution to enable testing without real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec.
// The call blocks until the process exits. Each tool runs in its own
// process group, killed as a whole when ctx is canceled.
type ExecRunner struct {
	// LookPath resolves binaries. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Run executes cmd and returns its captured output.
// A binary missing from PATH yields ErrBinaryNotFound.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, string, error) {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	bin, err := lookPath(cmd.Name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, cmd.Name, err)
	}

	c := exec.CommandContext(ctx, bin, cmd.Args...) // #nosec G204 -- binaries are fixed renderer tools
	process.Isolate(c)
	c.Dir = cmd.Dir
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err = c.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.String(), stderr.String(), ctxErr
	}
	return stdout.String(), stderr.String(), err
}
