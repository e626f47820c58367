// Package host models the capability handed to every provisioning step: the
// command runner for the target machine, per-step defaults, explicit step
// parameters and facts about the operating system.
package host

import (
	"context"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/adapters/logging"
	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// DefaultTimeout applies to a command when neither the step nor the run sets one.
const DefaultTimeout = 300 * time.Second

// Env is the capability passed to step conditions and actions. Steps must
// get everything they need from it rather than from globals or the process
// environment.
type Env struct {
	Runner  ports.CommandRunner
	Timeout time.Duration
	Vars    map[string]string
	Facts   Facts
	Logger  ports.Logger
}

// NewEnv creates an Env with the default timeout and no vars.
func NewEnv(runner ports.CommandRunner) *Env {
	return &Env{
		Runner:  runner,
		Timeout: DefaultTimeout,
		Vars:    map[string]string{},
		Logger:  logging.NewNopLogger(),
	}
}

// Run executes argv with the env's timeout.
func (e *Env) Run(ctx context.Context, argv ...string) (ports.CommandResult, error) {
	return e.RunWithTimeout(ctx, e.Timeout, argv...)
}

// RunWithTimeout executes argv with an explicit timeout.
func (e *Env) RunWithTimeout(ctx context.Context, timeout time.Duration, argv ...string) (ports.CommandResult, error) {
	e.log().Debug(ctx, "running command", ports.F("argv", ports.CommandCall{Argv: argv}.String()), ports.F("timeout", timeout))
	return e.Runner.Run(ctx, argv, timeout)
}

// Var returns the value of key, or fallback when it is unset or empty.
func (e *Env) Var(key, fallback string) string {
	if v, ok := e.Vars[key]; ok && v != "" {
		return v
	}
	return fallback
}

// WithTimeout returns a shallow copy of the env using timeout.
func (e *Env) WithTimeout(timeout time.Duration) *Env {
	clone := *e
	clone.Timeout = timeout
	return &clone
}

func (e *Env) log() ports.Logger {
	return logging.OrNop(e.Logger)
}
