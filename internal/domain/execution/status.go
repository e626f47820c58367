// Package execution runs provisioning plans: the engine makes one step
// idempotent, the orchestrator walks a plan and produces a run report.
package execution

// Status is the outcome of ensuring one step.
type Status string

const (
	// StatusSkipped means the precondition held and nothing was applied.
	StatusSkipped Status = "skipped"
	// StatusApplied means apply succeeded and the postcondition holds.
	StatusApplied Status = "applied"
	// StatusFailed means apply failed, timed out, or did not establish the postcondition.
	StatusFailed Status = "failed"
	// StatusWouldApply is reported in dry runs for steps that need applying.
	StatusWouldApply Status = "would-apply"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsOK reports whether the status counts towards a successful run.
func (s Status) IsOK() bool {
	switch s {
	case StatusSkipped, StatusApplied, StatusWouldApply:
		return true
	case StatusFailed:
		return false
	}
	return false
}

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	// RunSuccess means every step was skipped, applied, or would apply.
	RunSuccess RunStatus = "success"
	// RunPartialFailure means at least one step failed without aborting the run.
	RunPartialFailure RunStatus = "partial-failure"
	// RunAborted means a critical failure, launch failure, or cancellation stopped the run early.
	RunAborted RunStatus = "aborted"
)

// String returns the string representation of the run status.
func (s RunStatus) String() string {
	return string(s)
}
