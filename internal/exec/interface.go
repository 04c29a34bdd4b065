// Package exec runs shell commands with bounded time and captured output.
package exec

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

// RunOptions control a single command run.
type RunOptions struct {
	// Dir is the working directory. Empty means the runner's default.
	Dir string
	// Timeout bounds the run. Zero means only ctx bounds it.
	Timeout time.Duration
	// Env adds KEY=VALUE pairs to the inherited environment.
	Env []string
}

// CommandResult is what a command produced. It is returned even when the
// command exits non-zero or times out, so partial output is never lost.
type CommandResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Combined returns stdout followed by stderr.
func (r *CommandResult) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Success reports a zero exit without timeout.
func (r *CommandResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes command through "sh -c". A non-zero exit is reported in
	// the result, not as an error. Timeouts return the partial result and
	// ErrTimeout.
	Run(ctx context.Context, command string, opts RunOptions) (*CommandResult, error)

	// LookPath reports whether an executable is on PATH.
	LookPath(name string) bool
}
