package sshexec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/adapters/command"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"golang.org/x/crypto/ssh"
)

// closeWait bounds how long Run waits for a killed session to wind down.
const closeWait = 2 * time.Second

// Runner executes commands on one remote host. Each Run uses a new session
// on a shared connection; Runner is safe for sequential use.
type Runner struct {
	client      *ssh.Client
	outputLimit int
	closers     []func() error
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutputLimit sets the per-stream capture limit in bytes.
func WithOutputLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.outputLimit = n
		}
	}
}

// NewRunner wraps an established client.
func NewRunner(client *ssh.Client, opts ...Option) *Runner {
	r := &Runner{client: client, outputLimit: command.DefaultOutputLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dial connects and authenticates to target.
func Dial(ctx context.Context, target Target, opts ...Option) (*Runner, error) {
	return dial(ctx, target, defaultAuthConfig(), opts...)
}

func dial(ctx context.Context, target Target, auth authConfig, opts ...Option) (*Runner, error) {
	methods, closers, err := auth.authMethods(target.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth methods: %w", err)
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	hostKeys, err := auth.hostKeyCallback(target)
	if err != nil {
		closeAll()
		return nil, err
	}

	timeout := target.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	cfg := &ssh.ClientConfig{
		User:            target.User,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	addr := target.Addr()
	dialer := &net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		_ = netConn.Close()
		closeAll()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}

	r := NewRunner(ssh.NewClient(sshConn, chans, reqs), opts...)
	r.closers = closers
	return r, nil
}

// Run executes argv in a new session. The remote login shell receives argv
// shell-quoted. On timeout or cancellation the remote process is sent
// SIGKILL and the session is closed.
func (r *Runner) Run(ctx context.Context, argv []string, timeout time.Duration) (ports.CommandResult, error) {
	if len(argv) == 0 {
		return ports.CommandResult{}, ports.NewLaunchError(argv, ports.ErrEmptyCommand)
	}

	session, err := r.client.NewSession()
	if err != nil {
		return ports.CommandResult{}, ports.NewLaunchError(argv, fmt.Errorf("failed to create session: %w", err))
	}
	defer func() { _ = session.Close() }()

	stdout := command.NewCappedBuffer(r.outputLimit)
	stderr := command.NewCappedBuffer(r.outputLimit)
	session.Stdout = stdout
	session.Stderr = stderr

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := session.Start(QuoteArgv(argv)); err != nil {
		return ports.CommandResult{}, ports.NewLaunchError(argv, fmt.Errorf("failed to start remote command: %w", err))
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		timedOut = true
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		select {
		case <-done:
		case <-time.After(closeWait):
		}
	}

	result := ports.CommandResult{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Duration:  time.Since(start),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	if timedOut {
		result.TimedOut = true
		result.ExitCode = ports.TimedOutExitCode
		return result, nil
	}

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	case errors.As(waitErr, &missingErr):
		result.ExitCode = -1
	default:
		// The connection failed mid-command.
		result.ExitCode = -1
		result.Stderr = append(result.Stderr, []byte(waitErr.Error())...)
	}
	return result, nil
}

// Close closes the connection and any agent socket.
func (r *Runner) Close() error {
	err := r.client.Close()
	for _, c := range r.closers {
		_ = c()
	}
	return err
}

// Ensure Runner implements ports.CommandRunner.
var _ ports.CommandRunner = (*Runner)(nil)
