// Package shell builds steps from ad-hoc commands and scripts, as declared
// in plan files.
package shell

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/step"
)

// Errors for ad-hoc step definitions.
var (
	ErrRunAndScript = errors.New("run and script are mutually exclusive")
	ErrEmptyArgv    = errors.New("command argv cannot be empty")
)

// StepConfig describes an ad-hoc step.
type StepConfig struct {
	Name        string
	Description string

	// Check is an argv whose zero exit means the step is already done.
	Check []string
	// Unless is a script whose zero exit means the step is already done.
	// With Check also set, both must succeed.
	Unless string

	// Exactly one of Run (argv) and Script (sh -c) is set.
	Run    []string
	Script string

	// Verify is an argv checked after apply. Defaults to the precondition.
	Verify []string

	Critical bool
	Timeout  time.Duration
}

// Step converts cfg into a step.
func (cfg StepConfig) Step() (step.Step, error) {
	if err := step.ValidateName(cfg.Name); err != nil {
		return step.Step{}, fmt.Errorf("step %q: %w", cfg.Name, err)
	}

	s := step.Step{
		Name:        cfg.Name,
		Description: cfg.Description,
		Critical:    cfg.Critical,
		Timeout:     cfg.Timeout,
	}

	switch {
	case len(cfg.Run) > 0 && cfg.Script != "":
		return step.Step{}, fmt.Errorf("step %q: %w", cfg.Name, ErrRunAndScript)
	case len(cfg.Run) > 0:
		if err := checkArgv(cfg.Run); err != nil {
			return step.Step{}, fmt.Errorf("step %q run: %w", cfg.Name, err)
		}
		s.Apply = step.RunCommand(cfg.Run...)
	case strings.TrimSpace(cfg.Script) != "":
		s.Apply = step.RunScript(cfg.Script)
	default:
		return step.Step{}, fmt.Errorf("step %q: %w", cfg.Name, step.ErrNoApply)
	}

	if len(cfg.Check) > 0 {
		if err := checkArgv(cfg.Check); err != nil {
			return step.Step{}, fmt.Errorf("step %q check: %w", cfg.Name, err)
		}
		s.Precondition = step.CommandSucceeds(cfg.Check...)
	}
	if strings.TrimSpace(cfg.Unless) != "" {
		unless := step.CommandSucceeds("sh", "-c", cfg.Unless)
		if s.Precondition != nil {
			s.Precondition = step.Both(s.Precondition, unless)
		} else {
			s.Precondition = unless
		}
	}
	if len(cfg.Verify) > 0 {
		if err := checkArgv(cfg.Verify); err != nil {
			return step.Step{}, fmt.Errorf("step %q verify: %w", cfg.Name, err)
		}
		s.Postcondition = step.CommandSucceeds(cfg.Verify...)
	}

	if s.Description == "" {
		s.Description = describe(cfg)
	}
	return s, nil
}

// ScriptStep runs script with sh -c unless the unless script succeeds.
func ScriptStep(name, script, unless string, critical bool) (step.Step, error) {
	return StepConfig{Name: name, Script: script, Unless: unless, Critical: critical}.Step()
}

// CommandStep runs argv unless check succeeds.
func CommandStep(name string, argv, check []string, critical bool) (step.Step, error) {
	return StepConfig{Name: name, Run: argv, Check: check, Critical: critical}.Step()
}

func checkArgv(argv []string) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return ErrEmptyArgv
	}
	return nil
}

func describe(cfg StepConfig) string {
	if len(cfg.Run) > 0 {
		return "Run " + strings.Join(cfg.Run, " ")
	}
	first, _, _ := strings.Cut(strings.TrimSpace(cfg.Script), "\n")
	return "Run script: " + first
}
