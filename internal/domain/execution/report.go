package execution

import (
	"time"

	"github.com/google/uuid"
)

// RunMeta identifies a run.
type RunMeta struct {
	RunID     uuid.UUID
	Plan      string
	DryRun    bool
	Notice    string
	StartedAt time.Time
}

// RunReport is the ordered record of a run. The orchestrator creates it at
// the start of a run and finalizes it at the end; after that it is
// read-only.
type RunReport struct {
	meta       RunMeta
	outcomes   []StepOutcome
	status     RunStatus
	err        error
	finishedAt time.Time
	finalized  bool
}

func newRunReport(meta RunMeta, capacity int) *RunReport {
	return &RunReport{meta: meta, outcomes: make([]StepOutcome, 0, capacity)}
}

// NewRunReport builds a finalized report from recorded outcomes, for
// example when replaying an audit log.
func NewRunReport(meta RunMeta, outcomes []StepOutcome, status RunStatus, err error, finishedAt time.Time) *RunReport {
	r := newRunReport(meta, len(outcomes))
	r.outcomes = append(r.outcomes, outcomes...)
	r.finalize(status, err, finishedAt)
	return r
}

func (r *RunReport) append(o StepOutcome) {
	if r.finalized {
		return
	}
	r.outcomes = append(r.outcomes, o)
}

func (r *RunReport) finalize(status RunStatus, err error, at time.Time) {
	if r.finalized {
		return
	}
	r.status = status
	r.err = err
	r.finishedAt = at
	r.finalized = true
}

// RunID returns the unique run identifier.
func (r *RunReport) RunID() uuid.UUID { return r.meta.RunID }

// Meta returns the run metadata.
func (r *RunReport) Meta() RunMeta { return r.meta }

// Plan returns the plan name.
func (r *RunReport) Plan() string { return r.meta.Plan }

// DryRun reports whether no step was allowed to apply.
func (r *RunReport) DryRun() bool { return r.meta.DryRun }

// Notice returns the plan's operator message.
func (r *RunReport) Notice() string { return r.meta.Notice }

// StartedAt returns when the run started.
func (r *RunReport) StartedAt() time.Time { return r.meta.StartedAt }

// FinishedAt returns when the run was finalized.
func (r *RunReport) FinishedAt() time.Time { return r.finishedAt }

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.finishedAt.IsZero() {
		return 0
	}
	return r.finishedAt.Sub(r.meta.StartedAt)
}

// Status returns the terminal status. It is empty until finalized.
func (r *RunReport) Status() RunStatus { return r.status }

// Err returns the fatal error that aborted the run, if any.
func (r *RunReport) Err() error { return r.err }

// Finalized reports whether the run has ended.
func (r *RunReport) Finalized() bool { return r.finalized }

// Outcomes returns a copy of the outcomes in execution order.
func (r *RunReport) Outcomes() []StepOutcome {
	out := make([]StepOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Len returns the number of recorded outcomes.
func (r *RunReport) Len() int { return len(r.outcomes) }

// Summary counts outcomes by status.
type Summary struct {
	Total      int
	Skipped    int
	Applied    int
	Failed     int
	WouldApply int
}

// Summary returns counts of outcomes by status.
func (r *RunReport) Summary() Summary {
	s := Summary{Total: len(r.outcomes)}
	for _, o := range r.outcomes {
		switch o.Status {
		case StatusSkipped:
			s.Skipped++
		case StatusApplied:
			s.Applied++
		case StatusFailed:
			s.Failed++
		case StatusWouldApply:
			s.WouldApply++
		}
	}
	return s
}
