package execution

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/adapters/logging"
	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// Engine makes a single step idempotent: check, apply if needed, verify.
type Engine struct {
	dryRun bool
	now    func() time.Time
}

// NewEngine creates a new Engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithDryRun returns an Engine that evaluates preconditions only.
func (e *Engine) WithDryRun(dryRun bool) *Engine {
	return &Engine{dryRun: dryRun, now: e.now}
}

// WithClock returns an Engine using now for outcome timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	return &Engine{dryRun: e.dryRun, now: now}
}

// DryRun reports whether the engine applies nothing.
func (e *Engine) DryRun() bool {
	return e.dryRun
}

// Ensure brings s to its desired state.
//
// Check failures count as "condition not met". Apply failures, timeouts and
// unmet postconditions become a Failed outcome. The only error returned is
// a *ports.LaunchError from apply, which the caller must treat as fatal; the
// outcome is Failed in that case too.
func (e *Engine) Ensure(ctx context.Context, s step.Step, env *host.Env) (StepOutcome, error) {
	start := e.now()
	if s.Timeout > 0 {
		env = env.WithTimeout(s.Timeout)
	}
	log := logging.OrNop(env.Logger).With(ports.F("step", s.Name))

	outcome := func(status Status, result *ports.CommandResult, err error) StepOutcome {
		now := e.now()
		return StepOutcome{
			StepName:  s.Name,
			Status:    status,
			Critical:  s.Critical,
			Result:    result,
			Err:       err,
			Duration:  now.Sub(start),
			Timestamp: now,
		}
	}

	if s.Satisfied(ctx, env) {
		log.Debug(ctx, "precondition satisfied")
		return outcome(StatusSkipped, nil, nil), nil
	}

	if e.dryRun {
		log.Debug(ctx, "precondition not satisfied, dry run")
		return outcome(StatusWouldApply, nil, nil), nil
	}

	log.Debug(ctx, "applying")
	result, err := s.Run(ctx, env)
	res := &result

	if err != nil {
		var launchErr *ports.LaunchError
		if errors.As(err, &launchErr) {
			return outcome(StatusFailed, nil, err), err
		}
		return outcome(StatusFailed, res, &StepFailure{Step: s.Name, ExitCode: result.ExitCode, Err: err}), nil
	}

	if result.TimedOut {
		failure := &StepFailure{Step: s.Name, ExitCode: result.ExitCode, TimedOut: true, Timeout: env.Timeout}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// killed by cancellation, not by the step deadline
			failure.Timeout, failure.Err = 0, ctxErr
		}
		return outcome(StatusFailed, res, failure), nil
	}

	if result.ExitCode != 0 {
		return outcome(StatusFailed, res, &StepFailure{Step: s.Name, ExitCode: result.ExitCode}), nil
	}

	if !s.Verified(ctx, env) {
		return outcome(StatusFailed, res, &StepFailure{Step: s.Name, Err: ErrPostcondition}), nil
	}

	return outcome(StatusApplied, res, nil), nil
}
