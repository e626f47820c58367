package step

import (
	"bytes"
	"context"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// CommandSucceeds is satisfied when argv exits 0 within the env timeout.
func CommandSucceeds(argv ...string) Condition {
	return func(ctx context.Context, env *host.Env) bool {
		result, err := env.Run(ctx, argv...)
		return err == nil && result.Success()
	}
}

// OutputContains is satisfied when argv exits 0 and its stdout contains substr.
func OutputContains(substr string, argv ...string) Condition {
	return func(ctx context.Context, env *host.Env) bool {
		result, err := env.Run(ctx, argv...)
		return err == nil && result.Success() && bytes.Contains(result.Stdout, []byte(substr))
	}
}

// Both is satisfied when a and b are.
func Both(a, b Condition) Condition {
	return func(ctx context.Context, env *host.Env) bool {
		return evaluate(ctx, a, env) && evaluate(ctx, b, env)
	}
}

// Not inverts cond.
func Not(cond Condition) Condition {
	return func(ctx context.Context, env *host.Env) bool {
		return !evaluate(ctx, cond, env)
	}
}

// RunCommand runs argv.
func RunCommand(argv ...string) Action {
	return func(ctx context.Context, env *host.Env) (ports.CommandResult, error) {
		return env.Run(ctx, argv...)
	}
}

// RunScript runs script with sh -c.
func RunScript(script string) Action {
	return RunCommand("sh", "-c", script)
}

// Sequence runs actions in order, stopping at the first error or
// unsuccessful result, which it returns.
func Sequence(actions ...Action) Action {
	return func(ctx context.Context, env *host.Env) (ports.CommandResult, error) {
		var last ports.CommandResult
		for _, action := range actions {
			result, err := action(ctx, env)
			if err != nil || !result.Success() {
				return result, err
			}
			last = result
		}
		return last, nil
	}
}
