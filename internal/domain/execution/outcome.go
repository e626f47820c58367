package execution

import (
	"time"

	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// StepOutcome records what happened to one step. Outcomes are values and
// are never modified after they are appended to a report.
type StepOutcome struct {
	StepName  string
	Status    Status
	Critical  bool
	Result    *ports.CommandResult
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// TimedOut reports whether the apply action hit its deadline.
func (o StepOutcome) TimedOut() bool {
	return o.Result != nil && o.Result.TimedOut
}

// ExitCode returns the apply exit code, or 0 when apply did not run.
func (o StepOutcome) ExitCode() int {
	if o.Result == nil {
		return 0
	}
	return o.Result.ExitCode
}

// Failed reports whether the step failed.
func (o StepOutcome) Failed() bool {
	return o.Status == StatusFailed
}
