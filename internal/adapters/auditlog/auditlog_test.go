package auditlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/execution"
	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/testutil/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRunID = uuid.MustParse("5d1c2b3a-4e5f-4a6b-8c7d-9e0f1a2b3c4d")

func sampleReport() (*execution.RunReport, []execution.StepOutcome) {
	ts := time.Date(2024, 6, 1, 8, 0, 5, 0, time.UTC)
	outcomes := []execution.StepOutcome{
		{StepName: "apt:update", Status: execution.StatusSkipped, Critical: true, Duration: 40 * time.Millisecond, Timestamp: ts},
		{
			StepName:  "cargo:install:snarkos",
			Status:    execution.StatusFailed,
			Critical:  true,
			Result:    &ports.CommandResult{ExitCode: ports.TimedOutExitCode, TimedOut: true},
			Err:       &execution.StepFailure{Step: "cargo:install:snarkos", TimedOut: true, Timeout: time.Second},
			Duration:  time.Second,
			Timestamp: ts.Add(time.Second),
		},
	}
	meta := execution.RunMeta{RunID: testRunID, Plan: "node", StartedAt: ts.Add(-40 * time.Millisecond)}
	return execution.NewRunReport(meta, outcomes, execution.RunAborted, nil, ts.Add(2*time.Second)), outcomes
}

func TestOutcomeRecord(t *testing.T) {
	t.Parallel()

	report, outcomes := sampleReport()

	skipped := OutcomeRecord(report, outcomes[0])
	assert.Equal(t, KindStep, skipped.Kind)
	assert.Equal(t, testRunID.String(), skipped.RunID)
	assert.Equal(t, "node", skipped.Plan)
	assert.Equal(t, "skipped", skipped.Status)
	assert.Nil(t, skipped.ExitCode, "apply never ran")
	assert.Equal(t, int64(40), skipped.DurationMS)
	assert.Empty(t, skipped.Error)

	failed := OutcomeRecord(report, outcomes[1])
	require.NotNil(t, failed.ExitCode)
	assert.Equal(t, -1, *failed.ExitCode)
	assert.True(t, failed.TimedOut)
	assert.True(t, failed.Critical)
	assert.Equal(t, "step cargo:install:snarkos: apply timed out after 1s", failed.Error)
}

func TestFinishRecord(t *testing.T) {
	t.Parallel()

	report, _ := sampleReport()
	rec := FinishRecord(report)

	assert.Equal(t, KindRunFinished, rec.Kind)
	assert.Equal(t, "aborted", rec.Status)
	assert.Equal(t, 2, rec.Steps)
	assert.Equal(t, report.Duration().Milliseconds(), rec.DurationMS)
	assert.Equal(t, report.FinishedAt(), rec.Timestamp)
}

func TestFileSink_WritesJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	report, outcomes := sampleReport()
	ctx := context.Background()
	for _, o := range outcomes {
		require.NoError(t, sink.RecordOutcome(ctx, report, o))
	}
	require.NoError(t, sink.RecordFinish(ctx, report))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "close is idempotent")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"kind":"step"`)
	assert.Contains(t, lines[0], `"step":"apt:update"`)
	assert.Contains(t, lines[1], `"timed_out":true`)
	assert.Contains(t, lines[1], `"exit_code":-1`)
	assert.Contains(t, lines[2], `"kind":"run_finished"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestFileSink_AppendsAcrossOpens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	report, outcomes := sampleReport()

	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(path)
		require.NoError(t, err)
		require.NoError(t, sink.RecordOutcome(context.Background(), report, outcomes[0]))
		require.NoError(t, sink.Close())
	}

	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFileSink_AppendAfterClose(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSink(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	err = sink.Append(Record{Kind: KindStep, RunID: "x"})
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestFileSink_Rotates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	fixed := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	sink, err := NewFileSink(path, WithMaxSize(200), WithRotationClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	report, outcomes := sampleReport()
	require.NoError(t, sink.RecordOutcome(context.Background(), report, outcomes[1]))
	require.NoError(t, sink.RecordOutcome(context.Background(), report, outcomes[1]))
	require.NoError(t, sink.Close())

	rotated, err := ReadRecords(filepath.Join(dir, "audit-20240601-093000.000000000.jsonl"))
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	current, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, current, 1)
}

func TestFileSink_RotationsWithinOneTickKeepEveryFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	fixed := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	sink, err := NewFileSink(path, WithMaxSize(200), WithRotationClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	report, outcomes := sampleReport()
	for range 4 {
		require.NoError(t, sink.RecordOutcome(context.Background(), report, outcomes[1]))
	}
	require.NoError(t, sink.Close())

	for _, name := range []string{
		"audit-20240601-093000.000000000.jsonl",
		"audit-20240601-093000.000000000-1.jsonl",
		"audit-20240601-093000.000000000-2.jsonl",
		"audit.jsonl",
	} {
		records, err := ReadRecords(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Len(t, records, 1, name)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestReadRecords_SkipsMalformedLines(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"kind":"step","run_id":"a","plan":"node","step":"s1","status":"applied","duration_ms":1,"timestamp":"2024-06-01T08:00:00Z"}`,
		`not json`,
		``,
		`{"kind":"step","plan":"node"}`,
		`{"kind":"run_finished","run_id":"a","plan":"node","status":"success","duration_ms":3,"timestamp":"2024-06-01T08:00:01Z"}`,
		`{"kind":"step","run_id":"a","pla`,
	}, "\n")

	records, err := DecodeRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "s1", records[0].Step)
	assert.Equal(t, KindRunFinished, records[1].Kind)
}

func TestReadRecords_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := ReadRecords(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGroupRuns(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Kind: KindStep, RunID: "r1", Plan: "node", Step: "a"},
		{Kind: KindStep, RunID: "r2", Plan: "other", Step: "x"},
		{Kind: KindStep, RunID: "r1", Plan: "node", Step: "b"},
		{Kind: KindRunFinished, RunID: "r1", Plan: "node", Status: "success"},
	}

	runs := GroupRuns(records)
	require.Len(t, runs, 2)

	assert.Equal(t, "r1", runs[0].RunID)
	assert.Len(t, runs[0].Steps, 2)
	assert.True(t, runs[0].Complete)
	require.NotNil(t, runs[0].Finish)
	assert.Equal(t, "success", runs[0].Finish.Status)

	assert.Equal(t, "other", runs[1].Plan)
	assert.False(t, runs[1].Complete)
}

func TestRun_ReportRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	report, outcomes := sampleReport()
	for _, o := range outcomes {
		require.NoError(t, sink.RecordOutcome(context.Background(), report, o))
	}
	require.NoError(t, sink.RecordFinish(context.Background(), report))
	require.NoError(t, sink.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	runs := GroupRuns(records)
	require.Len(t, runs, 1)

	replayed, err := runs[0].Report()
	require.NoError(t, err)
	assert.Equal(t, testRunID, replayed.RunID())
	assert.Equal(t, execution.RunAborted, replayed.Status())
	assert.Equal(t, report.Summary(), replayed.Summary())
	assert.True(t, replayed.StartedAt().Equal(report.StartedAt()))
	assert.True(t, replayed.FinishedAt().Equal(report.FinishedAt()))

	got := replayed.Outcomes()
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Result)
	assert.True(t, got[1].TimedOut())
	assert.Equal(t, -1, got[1].ExitCode())
	assert.EqualError(t, got[1].Err, "step cargo:install:snarkos: apply timed out after 1s")
}

func TestRun_ReportIncompleteRunIsAborted(t *testing.T) {
	t.Parallel()

	run := Run{
		RunID: testRunID.String(),
		Plan:  "node",
		Steps: []Record{{Kind: KindStep, RunID: testRunID.String(), Step: "a", Status: "applied"}},
	}
	replayed, err := run.Report()
	require.NoError(t, err)
	assert.Equal(t, execution.RunAborted, replayed.Status())
	assert.Equal(t, 1, replayed.Len())
}

func TestRun_ReportInvalidID(t *testing.T) {
	t.Parallel()

	_, err := Run{RunID: "not-a-uuid"}.Report()
	assert.ErrorContains(t, err, "invalid run id")
}

func TestMemorySink_WithOrchestrator(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddExit([]string{"check", "a"}, 0)
	runner.AddExit([]string{"check", "b"}, 1)
	runner.AddExit([]string{"install", "b"}, 3)

	plan := step.MustNewPlan("node",
		step.Step{Name: "a", Precondition: step.CommandSucceeds("check", "a"), Apply: step.RunCommand("install", "a")},
		step.Step{Name: "b", Precondition: step.CommandSucceeds("check", "b"), Apply: step.RunCommand("install", "b")},
	)

	sink := NewMemorySink()
	report, err := execution.NewOrchestrator(execution.WithSink(sink)).
		Execute(context.Background(), plan, host.NewEnv(runner), execution.DefaultPolicy())
	require.NoError(t, err)

	records := sink.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "skipped", records[0].Status)
	assert.Equal(t, "failed", records[1].Status)
	require.NotNil(t, records[1].ExitCode)
	assert.Equal(t, 3, *records[1].ExitCode)
	assert.Equal(t, KindRunFinished, records[2].Kind)
	assert.Equal(t, report.Status().String(), records[2].Status)
	for _, rec := range records {
		assert.Equal(t, report.RunID().String(), rec.RunID)
	}
}
