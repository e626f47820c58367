// Package command provides command execution adapters.
package command

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// DefaultOutputLimit bounds each captured stream.
const DefaultOutputLimit = 1 << 20

// waitDelay bounds how long Wait blocks on pipes held open by orphans after
// the process group has been killed.
const waitDelay = 2 * time.Second

// LocalRunner executes commands on the local host.
type LocalRunner struct {
	outputLimit int
}

// Option configures a LocalRunner.
type Option func(*LocalRunner)

// WithOutputLimit sets the per-stream capture limit in bytes.
func WithOutputLimit(n int) Option {
	return func(r *LocalRunner) {
		if n > 0 {
			r.outputLimit = n
		}
	}
}

// NewLocalRunner creates a new LocalRunner.
func NewLocalRunner(opts ...Option) *LocalRunner {
	r := &LocalRunner{outputLimit: DefaultOutputLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes argv and returns the result. The child runs in its own process
// group, which is killed as a whole when the timeout or ctx expires.
func (r *LocalRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (ports.CommandResult, error) {
	if len(argv) == 0 {
		return ports.CommandResult{}, ports.NewLaunchError(argv, ports.ErrEmptyCommand)
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	configureProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	stdout := NewCappedBuffer(r.outputLimit)
	stderr := NewCappedBuffer(r.outputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := ports.CommandResult{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Duration:  duration,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	isExit := errors.As(err, &exitErr)

	switch {
	case runCtx.Err() != nil && (isExit || errors.Is(err, runCtx.Err())):
		result.TimedOut = true
		result.ExitCode = ports.TimedOutExitCode
		return result, nil
	case errors.Is(err, exec.ErrWaitDelay):
		if cmd.ProcessState != nil {
			result.ExitCode = cmd.ProcessState.ExitCode()
		}
		return result, nil
	case isExit:
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		return result, ports.NewLaunchError(argv, err)
	}
}

// Ensure LocalRunner implements ports.CommandRunner.
var _ ports.CommandRunner = (*LocalRunner)(nil)
