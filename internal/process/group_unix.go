//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// Isolate starts cmd in a new process group. Canceling the context cmd was
// created with kills the whole group instead of the leader only.
// Call before cmd.Start.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error {
		return KillGroup(cmd.Process.Pid)
	}
}

// KillGroup sends SIGKILL to the process group led by pid.
func KillGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
