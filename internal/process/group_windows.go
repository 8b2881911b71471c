//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// Isolate makes canceling the context cmd was created with kill cmd and
// its children. Call before cmd.Start.
func Isolate(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return KillGroup(cmd.Process.Pid)
	}
}

// KillGroup kills a process tree using taskkill.
// /F = force kill, /T = terminate child processes (tree kill).
func KillGroup(pid int) error {
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
