//go:build windows

package main

import "os"

// shutdownSignals cancel the running command. Windows has no SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt}
