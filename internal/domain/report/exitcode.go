// Package report turns a run report into operator-facing text and a
// process exit code.
package report

import "github.com/felixgeelhaar/hostprep/internal/domain/execution"

// Process exit codes.
const (
	ExitSuccess        = 0
	ExitPartialFailure = 1
	ExitAborted        = 2
	// ExitUsage is returned for bad flags, arguments or configuration (EX_USAGE).
	ExitUsage = 64
)

// ExitCode maps a run status to a process exit code. Unknown statuses are
// treated as aborted.
func ExitCode(status execution.RunStatus) int {
	switch status {
	case execution.RunSuccess:
		return ExitSuccess
	case execution.RunPartialFailure:
		return ExitPartialFailure
	case execution.RunAborted:
		return ExitAborted
	}
	return ExitAborted
}
