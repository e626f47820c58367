package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/felixgeelhaar/hostprep/internal/adapters/logging"
	"github.com/felixgeelhaar/hostprep/internal/app"
	"github.com/felixgeelhaar/hostprep/internal/domain/config"
	"github.com/felixgeelhaar/hostprep/internal/domain/report"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/spf13/cobra"
)

// cli carries the global flags and the process boundary.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	// connect opens the command runner for provision.
	connect app.Connector

	verbose  bool
	jsonLogs bool
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr, connect: app.Connect}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "hostprep",
		Short: "Idempotent, auditable host provisioning",
		Long: `hostprep prepares a host to build and run a node by walking an ordered plan
of idempotent steps: each step checks whether its desired state already
holds, applies it only when it does not, and verifies the result.

  Plan → Check → Apply → Verify → Report`,
		SilenceErrors: true, // We handle error formatting ourselves
		SilenceUsage:  true, // Don't show usage on error
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmd.SetContext(ports.ContextWithLogger(cmd.Context(), c.newLogger(c.logConfig())))
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&c.jsonLogs, "json-logs", false, "write logs as JSON lines")

	root.AddCommand(
		newProvisionCmd(c),
		newPlanCmd(c),
		newHistoryCmd(c),
		newVersionCmd(c),
	)
	return root
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, c *cli) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(c)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return report.ExitSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			printErrorTo(c.stderr, exitErr.err, c.verbose)
		}
		return exitErr.code
	}

	printErrorTo(c.stderr, err, c.verbose)
	return exitCodeFor(err)
}

// exitError carries a run's exit code out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

// usageError marks bad flags and arguments.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var exitErr *exitError
	var usageErr *usageError
	var list *config.ErrorList
	switch {
	case err == nil:
		return report.ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.code
	case errors.As(err, &usageErr), errors.As(err, &list), config.GetUserError(err) != nil:
		return report.ExitUsage
	case strings.HasPrefix(err.Error(), "unknown command"):
		return report.ExitUsage
	}
	return report.ExitPartialFailure
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &usageError{err: err}
	}
	return nil
}

// formatError returns a user-friendly error message.
// With verbose=false: shows only the user message and suggestion.
// With verbose=true: also shows the underlying technical error.
func formatError(err error, verbose bool) string {
	var list *config.ErrorList
	if errors.As(err, &list) {
		var b strings.Builder
		for i, ue := range list.Errors() {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("  - " + formatError(ue, verbose))
		}
		return fmt.Sprintf("%d problems found:\n%s", list.Len(), b.String())
	}

	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Message
		if userErr.Context != "" {
			msg += fmt.Sprintf(" (at %s)", userErr.Context)
		}
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		if verbose && userErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", userErr.Underlying)
		}
		return msg
	}
	return err.Error()
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error, verbose bool) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err, verbose))
}

// logConfig maps the global flags onto the logging fields of a Config.
func (c *cli) logConfig() config.Config {
	cfg := config.Default()
	cfg.JSONLogs = c.jsonLogs
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg
}

// newLogger builds the console logger for cfg's level and format.
func (c *cli) newLogger(cfg config.Config) ports.Logger {
	return logging.NewConsoleLogger(
		logging.WithOutput(c.stderr),
		logging.WithLevel(cfg.Level()),
		logging.WithJSONFormat(cfg.JSONLogs),
	)
}

// defaultAuditLog is where runs are recorded unless --audit-log says otherwise.
func defaultAuditLog() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hostprep", "audit.jsonl")
}
