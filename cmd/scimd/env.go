package main

import (
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/alnah/go-scimd/internal/render"
)

// Environment holds injectable dependencies for testability.
// Includes I/O, time, process environment, and the external tool runner.
type Environment struct {
	Now      func() time.Time
	Stdin    io.Reader
	Stdout   io.Writer // carries the mdbook protocol; logs never go here
	Stderr   io.Writer
	Getenv   func(string) string
	Environ  func() []string
	LookPath func(string) (string, error)
	Runner   render.CommandRunner
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:      time.Now,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Getenv:   os.Getenv,
		Environ:  os.Environ,
		LookPath: exec.LookPath,
		Runner:   &render.ExecRunner{},
	}
}
