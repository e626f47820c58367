// Package auditlog persists run outcomes as append-only JSON lines.
package auditlog

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/execution"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/google/uuid"
)

// Record kinds.
const (
	KindStep        = "step"
	KindRunFinished = "run_finished"
)

// Record is one line of the audit log.
type Record struct {
	Kind       string    `json:"kind"`
	RunID      string    `json:"run_id"`
	Plan       string    `json:"plan"`
	DryRun     bool      `json:"dry_run,omitempty"`
	Step       string    `json:"step,omitempty"`
	Status     string    `json:"status"`
	Critical   bool      `json:"critical,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	TimedOut   bool      `json:"timed_out,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Steps      int       `json:"steps,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// OutcomeRecord converts a step outcome of report into a record.
func OutcomeRecord(report *execution.RunReport, o execution.StepOutcome) Record {
	rec := Record{
		Kind:       KindStep,
		RunID:      report.RunID().String(),
		Plan:       report.Plan(),
		DryRun:     report.DryRun(),
		Step:       o.StepName,
		Status:     o.Status.String(),
		Critical:   o.Critical,
		TimedOut:   o.TimedOut(),
		DurationMS: o.Duration.Milliseconds(),
		Timestamp:  o.Timestamp.UTC(),
	}
	if o.Result != nil {
		code := o.Result.ExitCode
		rec.ExitCode = &code
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return rec
}

// FinishRecord converts the end of a finalized run into a record.
func FinishRecord(report *execution.RunReport) Record {
	rec := Record{
		Kind:       KindRunFinished,
		RunID:      report.RunID().String(),
		Plan:       report.Plan(),
		DryRun:     report.DryRun(),
		Status:     report.Status().String(),
		DurationMS: report.Duration().Milliseconds(),
		Steps:      report.Len(),
		Timestamp:  report.FinishedAt().UTC(),
	}
	if err := report.Err(); err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// Run groups the records of one run in the order they were written.
type Run struct {
	RunID    string
	Plan     string
	Steps    []Record
	Finish   *Record
	Complete bool
}

// GroupRuns splits records into runs, ordered by first appearance.
func GroupRuns(records []Record) []Run {
	var runs []Run
	index := map[string]int{}
	for _, rec := range records {
		i, ok := index[rec.RunID]
		if !ok {
			i = len(runs)
			index[rec.RunID] = i
			runs = append(runs, Run{RunID: rec.RunID, Plan: rec.Plan})
		}
		switch rec.Kind {
		case KindRunFinished:
			finish := rec
			runs[i].Finish = &finish
			runs[i].Complete = true
		default:
			runs[i].Steps = append(runs[i].Steps, rec)
		}
	}
	return runs
}

// Report rebuilds a run report from the recorded lines. Runs without a
// run_finished record (the process died mid-run) are reported as aborted.
func (r Run) Report() (*execution.RunReport, error) {
	id, err := uuid.Parse(r.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", r.RunID, err)
	}

	meta := execution.RunMeta{RunID: id, Plan: r.Plan}
	outcomes := make([]execution.StepOutcome, 0, len(r.Steps))
	for _, rec := range r.Steps {
		meta.DryRun = meta.DryRun || rec.DryRun
		outcomes = append(outcomes, rec.outcome())
	}
	if len(outcomes) > 0 {
		meta.StartedAt = r.Steps[0].Timestamp.Add(-time.Duration(r.Steps[0].DurationMS) * time.Millisecond)
	}

	status := execution.RunAborted
	finishedAt := meta.StartedAt
	var fatal error
	if r.Finish != nil {
		status = execution.RunStatus(r.Finish.Status)
		finishedAt = r.Finish.Timestamp
		meta.DryRun = meta.DryRun || r.Finish.DryRun
		if meta.StartedAt.IsZero() {
			meta.StartedAt = finishedAt.Add(-time.Duration(r.Finish.DurationMS) * time.Millisecond)
		}
		if r.Finish.Error != "" {
			fatal = recordedError(r.Finish.Error)
		}
	}
	return execution.NewRunReport(meta, outcomes, status, fatal, finishedAt), nil
}

func (rec Record) outcome() execution.StepOutcome {
	o := execution.StepOutcome{
		StepName:  rec.Step,
		Status:    execution.Status(rec.Status),
		Critical:  rec.Critical,
		Duration:  time.Duration(rec.DurationMS) * time.Millisecond,
		Timestamp: rec.Timestamp,
	}
	if rec.ExitCode != nil || rec.TimedOut {
		result := resultFor(rec)
		o.Result = &result
	}
	if rec.Error != "" {
		o.Err = recordedError(rec.Error)
	}
	return o
}

// recordedError is an error message read back from the log.
type recordedError string

func (e recordedError) Error() string { return string(e) }

func resultFor(rec Record) ports.CommandResult {
	result := ports.CommandResult{TimedOut: rec.TimedOut}
	if rec.ExitCode != nil {
		result.ExitCode = *rec.ExitCode
	} else if rec.TimedOut {
		result.ExitCode = ports.TimedOutExitCode
	}
	return result
}
