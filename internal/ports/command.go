// Package ports defines interfaces for external dependencies.
package ports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimedOutExitCode is reported when a command is killed for exceeding its deadline.
const TimedOutExitCode = -1

// TruncationMarker is appended to a captured stream that hit its size limit.
const TruncationMarker = "\n...[output truncated]\n"

// CommandResult represents the result of executing an external command.
// It is a value type: runners hand over ownership of the byte slices.
type CommandResult struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Duration  time.Duration
	TimedOut  bool
	Truncated bool
}

// Success returns true if the command exited with code 0 within its deadline.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// StdoutString returns stdout as a string.
func (r CommandResult) StdoutString() string {
	return string(r.Stdout)
}

// StderrString returns stderr as a string.
func (r CommandResult) StderrString() string {
	return string(r.Stderr)
}

// FirstStderrLine returns the first non-empty line of stderr, trimmed.
func (r CommandResult) FirstStderrLine() string {
	for _, line := range bytes.Split(r.Stderr, []byte("\n")) {
		if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// CommandCall records a command invocation.
type CommandCall struct {
	Argv    []string
	Timeout time.Duration
}

// String renders the call as a space separated command line.
func (c CommandCall) String() string {
	return strings.Join(c.Argv, " ")
}

// CommandRunner executes external commands.
//
// Run never returns an error for a nonzero exit status; that is encoded in
// CommandResult.ExitCode. The only error it returns is a *LaunchError, for
// commands that could not be started at all. A timeout <= 0 disables the
// per-call deadline.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, timeout time.Duration) (CommandResult, error)
}

// ErrEmptyCommand is wrapped by a LaunchError when argv is empty.
var ErrEmptyCommand = errors.New("empty command")

// LaunchError reports that a command could not be started: the executable is
// missing, not executable, or the remote session could not be opened.
type LaunchError struct {
	Argv []string
	Err  error
}

// NewLaunchError creates a LaunchError for argv.
func NewLaunchError(argv []string, err error) *LaunchError {
	return &LaunchError{Argv: append([]string(nil), argv...), Err: err}
}

// Error implements error.
func (e *LaunchError) Error() string {
	name := "<empty>"
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	return fmt.Sprintf("failed to launch %s: %v", name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError reports whether err is or wraps a *LaunchError.
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	return errors.As(err, &launchErr)
}
