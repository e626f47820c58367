package execution

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/adapters/logging"
	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/google/uuid"
)

// Policy controls how failures and side effects are handled for a run.
type Policy struct {
	// FailFast stops the run at the first failed critical step.
	FailFast bool
	// DryRun evaluates preconditions only; no step is applied.
	DryRun bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{FailFast: true}
}

// Sink receives outcomes as they are recorded, e.g. an audit log.
type Sink interface {
	RecordOutcome(ctx context.Context, report *RunReport, outcome StepOutcome) error
	RecordFinish(ctx context.Context, report *RunReport) error
}

// Orchestrator executes plans step by step, strictly in declared order.
type Orchestrator struct {
	engine *Engine
	logger ports.Logger
	sinks  []Sink
	now    func() time.Time
	newID  func() uuid.UUID

	mu    sync.RWMutex
	state RunState
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger for run lifecycle messages.
func WithLogger(l ports.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logging.OrNop(l) }
}

// WithSink adds an outcome sink.
func WithSink(s Sink) OrchestratorOption {
	return func(o *Orchestrator) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithEngine replaces the step engine.
func WithEngine(e *Engine) OrchestratorOption {
	return func(o *Orchestrator) { o.engine = e }
}

// WithRunClock sets the clock used for report timestamps.
func WithRunClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDGenerator sets the run ID source.
func WithRunIDGenerator(gen func() uuid.UUID) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = gen }
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine: NewEngine(),
		logger: logging.NewNopLogger(),
		now:    time.Now,
		newID:  uuid.New,
		state:  RunStatePending,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the lifecycle state of the current or most recent run.
func (o *Orchestrator) State() RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// Execute runs plan against env.
//
// The report is always non-nil and finalized, and complete up to the point
// where the run stopped. The returned error is non-nil only for a launch
// failure, which aborts the run regardless of policy.
func (o *Orchestrator) Execute(ctx context.Context, plan *step.Plan, env *host.Env, policy Policy) (*RunReport, error) {
	meta := RunMeta{
		RunID:     o.newID(),
		Plan:      plan.Name(),
		DryRun:    policy.DryRun,
		Notice:    plan.Notice(),
		StartedAt: o.now(),
	}
	report := newRunReport(meta, plan.Len())

	lc, err := newLifecycle(plan.Name())
	if err != nil {
		report.finalize(RunAborted, err, o.now())
		o.setState(RunStateAborted)
		return report, err
	}
	defer lc.stop()

	lc.send(EventStart)
	o.setState(lc.state())

	log := o.logger.With(ports.F("run_id", meta.RunID.String()))
	runEnv := *env
	runEnv.Logger = log
	engine := o.engine.WithDryRun(policy.DryRun)

	log.Info(ctx, "run started",
		ports.F("plan", plan.Name()),
		ports.F("steps", plan.Len()),
		ports.F("fail_fast", policy.FailFast),
		ports.F("dry_run", policy.DryRun),
	)

	degraded := false
	var fatal error
	status := RunSuccess

loop:
	for _, s := range plan.Steps() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Error(ctx, "run cancelled", ports.F("before_step", s.Name), ports.F("error", ctxErr))
			fatal = ctxErr
			status = RunAborted
			break
		}

		outcome, launchErr := engine.Ensure(ctx, s, &runEnv)
		report.append(outcome)
		o.logOutcome(ctx, log, outcome)
		o.emitOutcome(ctx, log, report, outcome)

		switch {
		case launchErr != nil:
			log.Error(ctx, "launch failed, aborting run", ports.F("step", s.Name), ports.F("error", launchErr))
			fatal = launchErr
			status = RunAborted
			break loop
		case outcome.Failed() && s.Critical && policy.FailFast:
			log.Error(ctx, "critical step failed, aborting run", ports.F("step", s.Name))
			status = RunAborted
			break loop
		case outcome.Failed():
			degraded = true
		}
	}

	if status != RunAborted && degraded {
		status = RunPartialFailure
	}
	if status == RunAborted && fatal == nil && ctx.Err() != nil {
		fatal = ctx.Err()
	}

	report.finalize(status, fatal, o.now())
	lc.send(terminalEvent(status))
	o.setState(lc.state())

	log.Info(ctx, "run finished",
		ports.F("status", status.String()),
		ports.F("outcomes", report.Len()),
		ports.F("duration", report.Duration()),
	)
	o.emitFinish(ctx, log, report)

	if fatal != nil && ports.IsLaunchError(fatal) {
		return report, fatal
	}
	return report, nil
}

func (o *Orchestrator) logOutcome(ctx context.Context, log ports.Logger, outcome StepOutcome) {
	fields := []ports.Field{
		ports.F("step", outcome.StepName),
		ports.F("status", outcome.Status.String()),
		ports.F("duration", outcome.Duration),
	}
	if outcome.Result != nil {
		fields = append(fields, ports.F("exit_code", outcome.Result.ExitCode))
	}
	if outcome.Failed() {
		if outcome.Err != nil {
			fields = append(fields, ports.F("error", outcome.Err))
		}
		log.Warn(ctx, "step failed", fields...)
		return
	}
	log.Info(ctx, "step "+outcome.Status.String(), fields...)
}

func (o *Orchestrator) emitOutcome(ctx context.Context, log ports.Logger, report *RunReport, outcome StepOutcome) {
	for _, s := range o.sinks {
		if err := s.RecordOutcome(ctx, report, outcome); err != nil {
			log.Warn(ctx, "failed to record outcome", ports.F("step", outcome.StepName), ports.F("error", err))
		}
	}
}

func (o *Orchestrator) emitFinish(ctx context.Context, log ports.Logger, report *RunReport) {
	for _, s := range o.sinks {
		if err := s.RecordFinish(ctx, report); err != nil {
			log.Warn(ctx, "failed to record run result", ports.F("error", err))
		}
	}
}
