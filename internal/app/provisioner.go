package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/hostprep/internal/adapters/auditlog"
	"github.com/felixgeelhaar/hostprep/internal/adapters/command"
	"github.com/felixgeelhaar/hostprep/internal/adapters/logging"
	"github.com/felixgeelhaar/hostprep/internal/adapters/sshexec"
	"github.com/felixgeelhaar/hostprep/internal/domain/config"
	"github.com/felixgeelhaar/hostprep/internal/domain/execution"
	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/domain/report"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// Connector opens the command runner for a run. The returned close func
// releases it.
type Connector func(ctx context.Context, cfg config.Config) (ports.CommandRunner, func() error, error)

// Provisioner runs plans according to a Config.
type Provisioner struct {
	cfg       config.Config
	// logger is nil unless set by WithLogger; see loggerFor.
	logger    ports.Logger
	logOut    io.Writer
	out       io.Writer
	renderer  *report.Renderer
	connect   Connector
	orchestOp []execution.OrchestratorOption
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger passed to the run.
func WithLogger(l ports.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// WithLogOutput sets where the logger built from the config writes
// (default: os.Stderr).
func WithLogOutput(w io.Writer) Option {
	return func(p *Provisioner) { p.logOut = w }
}

// WithOutput sets where the rendered report is written.
func WithOutput(w io.Writer) Option {
	return func(p *Provisioner) { p.out = w }
}

// WithRenderer sets the report renderer.
func WithRenderer(r *report.Renderer) Option {
	return func(p *Provisioner) { p.renderer = r }
}

// WithConnector replaces runner selection.
func WithConnector(c Connector) Option {
	return func(p *Provisioner) { p.connect = c }
}

// WithRunner uses runner for every run.
func WithRunner(runner ports.CommandRunner) Option {
	return WithConnector(func(context.Context, config.Config) (ports.CommandRunner, func() error, error) {
		return runner, func() error { return nil }, nil
	})
}

// WithOrchestratorOptions passes options to the orchestrator.
func WithOrchestratorOptions(opts ...execution.OrchestratorOption) Option {
	return func(p *Provisioner) { p.orchestOp = append(p.orchestOp, opts...) }
}

// NewProvisioner validates cfg and creates a Provisioner.
func NewProvisioner(cfg config.Config, opts ...Option) (*Provisioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provisioner{
		cfg:      cfg,
		logOut:   os.Stderr,
		out:      io.Discard,
		renderer: report.NewRenderer(report.PlainStyles()),
		connect:  Connect,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Connect selects the local runner, or an SSH runner when cfg.Host is set.
func Connect(ctx context.Context, cfg config.Config) (ports.CommandRunner, func() error, error) {
	if cfg.Host == "" {
		return command.NewLocalRunner(), func() error { return nil }, nil
	}
	target, err := sshexec.ParseTarget(cfg.Host)
	if err != nil {
		return nil, nil, config.NewValidationFailedError("host", err.Error()).
			WithSuggestion("Use the form user@host[:port].").
			WithUnderlying(err)
	}
	target.IdentityFile = cfg.Identity
	target.KnownHosts = cfg.KnownHosts
	target.InsecureIgnoreHostKey = cfg.InsecureHostKey

	runner, err := sshexec.Dial(ctx, target)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", target, err)
	}
	return runner, runner.Close, nil
}

// LoadPlan loads the configured plan file, or builds the node plan.
func (p *Provisioner) LoadPlan() (*step.Plan, error) {
	return LoadPlan(p.cfg)
}

// LoadPlan loads cfg.PlanFile with cfg.Vars as overrides, or builds the
// node plan from cfg.Vars when no file is set.
func LoadPlan(cfg config.Config) (*step.Plan, error) {
	if cfg.PlanFile == "" {
		plan, err := NodePlan(cfg.Vars)
		if err != nil {
			return nil, config.NewPlanInvalidError(NodePlanName, err.Error()).WithUnderlying(err)
		}
		return plan, nil
	}
	pf, err := config.LoadPlanFile(cfg.PlanFile)
	if err != nil {
		return nil, err
	}
	return pf.ToPlan(cfg.Vars)
}

// Run executes plan and writes the rendered report. It returns the report,
// the process exit code and any fatal error. A nil report means the run
// never started.
func (p *Provisioner) Run(ctx context.Context, plan *step.Plan) (*execution.RunReport, int, error) {
	runner, closeRunner, err := p.connect(ctx, p.cfg)
	if err != nil {
		return nil, report.ExitAborted, err
	}
	defer func() { _ = closeRunner() }()

	logger := p.loggerFor(ctx)
	env := host.NewEnv(runner)
	env.Timeout = p.cfg.Timeout
	env.Logger = logger
	for k, v := range p.cfg.Vars {
		env.Vars[k] = v
	}
	loadFacts(ctx, env, logger)

	opts := []execution.OrchestratorOption{execution.WithLogger(logger)}
	if p.cfg.AuditLog != "" {
		sink, err := auditlog.NewFileSink(p.cfg.AuditLog)
		if err != nil {
			return nil, report.ExitAborted, &config.UserError{
				Code:       config.ErrCodeFilePermission,
				Message:    "cannot open audit log",
				Context:    p.cfg.AuditLog,
				Suggestion: "Check that the directory is writable, or drop --audit-log.",
				Underlying: err,
			}
		}
		defer func() { _ = sink.Close() }()
		opts = append(opts, execution.WithSink(sink))
	}
	opts = append(opts, p.orchestOp...)

	policy := execution.Policy{FailFast: p.cfg.FailFast, DryRun: p.cfg.DryRun}
	rep, runErr := execution.NewOrchestrator(opts...).Execute(ctx, plan, env, policy)

	text, code := p.renderer.Render(rep)
	if _, err := io.WriteString(p.out, text); err != nil {
		logger.Warn(ctx, "failed to write report", ports.F("error", err))
	}
	return rep, code, runErr
}

// loggerFor returns the logger set with WithLogger, else the one attached
// to ctx, else a console logger built from the config's level and format.
func (p *Provisioner) loggerFor(ctx context.Context) ports.Logger {
	if p.logger != nil {
		return p.logger
	}
	if l := ports.LoggerFromContext(ctx); l != nil {
		return l
	}
	return logging.NewConsoleLogger(
		logging.WithOutput(p.logOut),
		logging.WithLevel(p.cfg.Level()),
		logging.WithJSONFormat(p.cfg.JSONLogs),
	)
}

// loadFacts fills env.Facts. Failure to read them is not fatal.
func loadFacts(ctx context.Context, env *host.Env, logger ports.Logger) {
	facts, err := host.ReadFacts(ctx, env.Runner)
	if err != nil {
		logger.Debug(ctx, "could not read os-release", ports.F("error", err))
		return
	}
	env.Facts = facts
	if !facts.IsDebianFamily() {
		logger.Warn(ctx, "target is not Debian-based, apt steps will likely fail", ports.F("os", facts.String()))
		return
	}
	logger.Debug(ctx, "target facts", ports.F("os", facts.String()))
}
