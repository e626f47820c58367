// Package config holds run configuration and the plan file format.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/validation"
)

// DefaultTimeout is the per-command timeout when none is configured.
const DefaultTimeout = 300 * time.Second

// Config is the resolved configuration for one provisioning run.
type Config struct {
	FailFast bool
	Timeout  time.Duration
	DryRun   bool

	// AuditLog is the JSONL file that receives step records. Empty disables it.
	AuditLog string
	// PlanFile is a YAML or TOML plan. Empty selects the built-in node plan.
	PlanFile string

	// Host is "user@host[:port]" for remote runs. Empty runs locally.
	Host     string
	Identity string
	// KnownHosts overrides ~/.ssh/known_hosts for remote runs.
	KnownHosts      string
	InsecureHostKey bool

	// Vars are explicit step parameters, overriding plan file vars.
	Vars map[string]string

	LogLevel string
	JSONLogs bool
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		FailFast: true,
		Timeout:  DefaultTimeout,
		Vars:     map[string]string{},
		LogLevel: "info",
	}
}

// Level returns the parsed log level, Info when unset.
func (c Config) Level() ports.Level {
	if c.LogLevel == "" {
		return ports.LevelInfo
	}
	level, err := ports.ParseLevel(c.LogLevel)
	if err != nil {
		return ports.LevelInfo
	}
	return level
}

// Validate checks the configuration. The returned error is a *UserError
// for a single problem or an *ErrorList for several.
func (c Config) Validate() error {
	errs := NewErrorList()

	if c.Timeout <= 0 {
		errs.AddValidation("timeout", fmt.Sprintf("must be positive, got %s", c.Timeout),
			"Pass --timeout with a number of seconds, e.g. --timeout 600.")
	}
	if c.LogLevel != "" {
		if _, err := ports.ParseLevel(c.LogLevel); err != nil {
			errs.AddValidation("log-level", err.Error(), "Use debug, info, warn or error.")
		}
	}
	if c.Identity != "" && c.Host == "" {
		errs.AddValidation("identity", "requires --host", "Pass --host user@host to run over SSH.")
	}
	if c.InsecureHostKey && c.KnownHosts != "" {
		errs.AddValidation("known-hosts", "cannot be combined with --insecure-ignore-host-key", "Drop one of the two flags.")
	}
	if c.Host != "" && strings.ContainsAny(c.Host, " \t\n") {
		errs.AddValidation("host", fmt.Sprintf("%q contains whitespace", c.Host), "Use the form user@host[:port].")
	}
	for _, key := range sortedKeys(c.Vars) {
		if err := validation.ValidateVarName(key); err != nil {
			errs.AddValidation("var", err.Error(), "Variable names are letters, digits and underscores.")
		}
	}

	if errs.Len() == 1 {
		return errs.Errors()[0]
	}
	return errs.AsError()
}

// ParseVars parses repeated "key=value" flags. Later values win.
func ParseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok {
			return nil, NewValidationFailedError("var", fmt.Sprintf("%q is not key=value", pair)).
				WithSuggestion("Pass variables as --var node_port=4133.")
		}
		if err := validation.ValidateVarName(key); err != nil {
			return nil, NewValidationFailedError("var", err.Error()).WithUnderlying(err)
		}
		vars[key] = value
	}
	return vars, nil
}

// MergeVars returns base overlaid with overrides.
func MergeVars(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
