package main

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/hostprep/internal/app"
	"github.com/felixgeelhaar/hostprep/internal/domain/config"
	"github.com/felixgeelhaar/hostprep/internal/domain/report"
	"github.com/spf13/cobra"
)

// maxTimeoutSeconds is the largest --timeout that fits a time.Duration.
const maxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

type provisionOptions struct {
	failFast        bool
	timeoutSeconds  int
	dryRun          bool
	planFile        string
	vars            []string
	host            string
	identity        string
	knownHosts      string
	insecureHostKey bool
	auditLog        string
}

func newProvisionCmd(c *cli) *cobra.Command {
	opts := &provisionOptions{}
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Bring the host to the state described by the plan",
		Long: `Provision walks the plan in order. For each step it checks whether the
desired state already holds, applies the step only when it does not, and
verifies the result. Re-running on a provisioned host changes nothing.

Without --plan the built-in node plan is used:
  apt:update, apt:packages:build-deps, rustup:toolchain:stable,
  cargo:install:snarkos, ufw:allow:4133-tcp, ufw:allow:3033-tcp

Exit codes: 0 success, 1 partial failure, 2 aborted, 64 usage error.

Examples:
  hostprep provision --dry-run
  hostprep provision --var branch=testnet --var node_port=4130
  hostprep provision --host ubuntu@10.0.0.5 --identity ~/.ssh/node
  hostprep provision --plan extra.yaml --fail-fast=false`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd, c, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.failFast, "fail-fast", true, "stop at the first failed critical step")
	f.IntVar(&opts.timeoutSeconds, "timeout", int(config.DefaultTimeout/time.Second), "per-command timeout in seconds")
	f.BoolVar(&opts.dryRun, "dry-run", false, "check every step without applying anything")
	f.StringVar(&opts.planFile, "plan", "", "plan file (.yaml, .yml or .toml); default is the built-in node plan")
	f.StringArrayVar(&opts.vars, "var", nil, "plan variable as key=value (repeatable)")
	f.StringVar(&opts.host, "host", "", "provision a remote host over SSH (user@host[:port])")
	f.StringVar(&opts.identity, "identity", "", "SSH private key for --host")
	f.StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file for --host (default: ~/.ssh/known_hosts)")
	f.BoolVar(&opts.insecureHostKey, "insecure-ignore-host-key", false, "do not verify the SSH host key")
	f.StringVar(&opts.auditLog, "audit-log", defaultAuditLog(), "append step records to this JSONL file (empty disables)")

	_ = cmd.RegisterFlagCompletionFunc("plan", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml", "toml"}, cobra.ShellCompDirectiveFilterFileExt
	})
	return cmd
}

func (o *provisionOptions) config(c *cli) (config.Config, error) {
	cfg := c.logConfig()
	if secs := int64(o.timeoutSeconds); secs > maxTimeoutSeconds || secs < -maxTimeoutSeconds {
		return cfg, &usageError{err: fmt.Errorf("--timeout %d is out of range (max %d seconds)", secs, maxTimeoutSeconds)}
	}
	vars, err := config.ParseVars(o.vars)
	if err != nil {
		return cfg, err
	}
	cfg.FailFast = o.failFast
	cfg.Timeout = time.Duration(o.timeoutSeconds) * time.Second
	cfg.DryRun = o.dryRun
	cfg.PlanFile = o.planFile
	cfg.Vars = vars
	cfg.Host = o.host
	cfg.Identity = o.identity
	cfg.KnownHosts = o.knownHosts
	cfg.InsecureHostKey = o.insecureHostKey
	cfg.AuditLog = o.auditLog
	return cfg, nil
}

func runProvision(cmd *cobra.Command, c *cli, opts *provisionOptions) error {
	cfg, err := opts.config(c)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	provisioner, err := app.NewProvisioner(cfg,
		app.WithLogOutput(c.stderr),
		app.WithOutput(out),
		app.WithRenderer(report.NewRenderer(report.TerminalStyles(lipgloss.NewRenderer(out)))),
		app.WithConnector(c.connect),
	)
	if err != nil {
		return err
	}

	plan, err := provisioner.LoadPlan()
	if err != nil {
		return err
	}

	_, code, err := provisioner.Run(cmd.Context(), plan)
	if err != nil && config.GetUserError(err) != nil {
		return err
	}
	if code != report.ExitSuccess || err != nil {
		return &exitError{code: code, err: err}
	}
	return nil
}
