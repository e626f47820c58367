// Package step defines provisioning steps and the ordered plans that
// contain them.
package step

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// Condition inspects host state. Checks that cannot run report false.
type Condition func(ctx context.Context, env *host.Env) bool

// Action changes host state through env.Runner.
type Action func(ctx context.Context, env *host.Env) (ports.CommandResult, error)

// Step is one idempotent provisioning unit.
type Step struct {
	// Name is unique within a plan.
	Name        string
	Description string

	// Precondition reports whether the desired state already holds. A nil
	// precondition is never satisfied.
	Precondition Condition

	Apply Action

	// Postcondition verifies the state after Apply. Defaults to Precondition.
	Postcondition Condition

	// Critical steps abort a fail-fast run when they fail.
	Critical bool

	// Timeout overrides the env's per-command timeout when positive.
	Timeout time.Duration
}

// Satisfied evaluates the precondition.
func (s Step) Satisfied(ctx context.Context, env *host.Env) bool {
	return evaluate(ctx, s.Precondition, env)
}

// Verified evaluates the postcondition, falling back to the precondition.
func (s Step) Verified(ctx context.Context, env *host.Env) bool {
	if s.Postcondition != nil {
		return evaluate(ctx, s.Postcondition, env)
	}
	return evaluate(ctx, s.Precondition, env)
}

// Run invokes Apply. A missing action is ErrNoApply; a panic is recovered
// into an error wrapping ErrApplyPanicked.
func (s Step) Run(ctx context.Context, env *host.Env) (result ports.CommandResult, err error) {
	if s.Apply == nil {
		return ports.CommandResult{}, ErrNoApply
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = ports.CommandResult{ExitCode: -1}, fmt.Errorf("%w: %v", ErrApplyPanicked, r)
		}
	}()
	return s.Apply(ctx, env)
}

// evaluate runs cond, treating a nil condition or a panicking check as
// "not met".
func evaluate(ctx context.Context, cond Condition, env *host.Env) (met bool) {
	if cond == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			met = false
		}
	}()
	return cond(ctx, env)
}
