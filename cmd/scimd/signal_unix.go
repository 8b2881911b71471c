//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals cancel the running command.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
