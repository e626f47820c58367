package execution

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches step failures caused by a command exceeding its deadline.
var ErrTimeout = errors.New("step timed out")

// ErrPostcondition matches step failures whose apply succeeded but whose
// verification did not.
var ErrPostcondition = errors.New("postcondition not met")

// StepFailure explains why a step failed. It is recorded on the outcome and
// never propagated out of the orchestrator.
type StepFailure struct {
	Step     string
	ExitCode int
	TimedOut bool
	Timeout  time.Duration
	Err      error
}

// Error implements error.
func (f *StepFailure) Error() string {
	switch {
	case f.TimedOut:
		if f.Timeout > 0 {
			return fmt.Sprintf("step %s: apply timed out after %s", f.Step, f.Timeout)
		}
		return fmt.Sprintf("step %s: apply was cancelled", f.Step)
	case f.Err != nil && errors.Is(f.Err, ErrPostcondition):
		return fmt.Sprintf("step %s: %v after apply", f.Step, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("step %s: apply failed: %v", f.Step, f.Err)
	default:
		return fmt.Sprintf("step %s: apply exited with code %d", f.Step, f.ExitCode)
	}
}

// Unwrap returns the underlying cause.
func (f *StepFailure) Unwrap() error {
	return f.Err
}

// Is makes errors.Is(err, ErrTimeout) true for timed-out steps.
func (f *StepFailure) Is(target error) bool {
	return target == ErrTimeout && f.TimedOut
}
