package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/provider/shell"
	"github.com/felixgeelhaar/hostprep/internal/validation"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a plan file encoding.
type Format string

// Supported plan file formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", &UserError{
		Code:       ErrCodeConfigInvalid,
		Message:    fmt.Sprintf("unsupported plan file extension %q", filepath.Ext(path)),
		Context:    path,
		Suggestion: "Name the plan file *.yaml, *.yml or *.toml.",
	}
}

// PlanFile is the on-disk plan definition.
type PlanFile struct {
	Name   string            `yaml:"name" toml:"name"`
	Notice string            `yaml:"notice,omitempty" toml:"notice,omitempty"`
	Vars   map[string]string `yaml:"vars,omitempty" toml:"vars,omitempty"`
	Steps  []StepEntry       `yaml:"steps" toml:"steps"`
}

// StepEntry is one step of a plan file.
type StepEntry struct {
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description,omitempty" toml:"description,omitempty"`
	// Critical defaults to true.
	Critical *bool `yaml:"critical,omitempty" toml:"critical,omitempty"`
	// Timeout is a Go duration such as "90s" or "10m".
	Timeout string   `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Check   []string `yaml:"check,omitempty" toml:"check,omitempty"`
	Unless  string   `yaml:"unless,omitempty" toml:"unless,omitempty"`
	Run     []string `yaml:"run,omitempty" toml:"run,omitempty"`
	Script  string   `yaml:"script,omitempty" toml:"script,omitempty"`
	Verify  []string `yaml:"verify,omitempty" toml:"verify,omitempty"`
}

// IsCritical resolves the critical default.
func (s StepEntry) IsCritical() bool {
	return s.Critical == nil || *s.Critical
}

// LoadPlanFile reads, parses and validates a plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, NewConfigNotFoundError(path)
		case errors.Is(err, os.ErrPermission):
			return nil, &UserError{
				Code:       ErrCodeFilePermission,
				Message:    "cannot read plan file",
				Context:    path,
				Suggestion: "Check the file permissions.",
				Underlying: err,
			}
		}
		return nil, err
	}

	pf, err := ParsePlanFile(data, format, path)
	if err != nil {
		return nil, err
	}
	if pf.Name == "" {
		pf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return pf, nil
}

// ParsePlanFile decodes data without validating it. Unknown fields are errors.
// path is used for error locations only.
func ParsePlanFile(data []byte, format Format, path string) (*PlanFile, error) {
	var pf PlanFile
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&pf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, NewPlanInvalidError(path, "plan file is empty").
					WithSuggestion("Declare at least a name and one step.")
			}
			return nil, NewYAMLParseError(path, err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&pf); err != nil {
			return nil, NewTOMLParseError(path, err)
		}
	default:
		return nil, NewUserError(ErrCodeConfigInvalid, fmt.Sprintf("unknown plan format %q", format)).WithContext(path)
	}
	return &pf, nil
}

// Validate collects every structural problem in the plan file.
func (pf *PlanFile) Validate() error {
	errs := NewErrorList()

	if strings.TrimSpace(pf.Name) == "" {
		errs.Add(NewPlanInvalidError("name", "plan name is required"))
	}
	for _, key := range sortedKeys(pf.Vars) {
		if err := validation.ValidateVarName(key); err != nil {
			errs.Add(NewPlanInvalidError("vars."+key, err.Error()))
		}
	}
	if len(pf.Steps) == 0 {
		errs.Add(NewPlanInvalidError("steps", "plan has no steps").
			WithSuggestion("Add a steps list with at least one step."))
	}

	seen := make(map[string]int, len(pf.Steps))
	for i, s := range pf.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		if s.Name != "" {
			where = fmt.Sprintf("steps[%d] (%s)", i, s.Name)
		}

		if err := step.ValidateName(s.Name); err != nil {
			errs.Add(NewPlanInvalidError(where, err.Error()).
				WithSuggestion(`Use names such as "node:datadir" or "apt:packages:tools".`))
		} else if first, dup := seen[s.Name]; dup {
			errs.Add(NewPlanInvalidError(where, fmt.Sprintf("duplicate step name, first declared at steps[%d]", first)))
		} else {
			seen[s.Name] = i
		}

		hasRun, hasScript := len(s.Run) > 0, strings.TrimSpace(s.Script) != ""
		switch {
		case hasRun && hasScript:
			errs.Add(NewPlanInvalidError(where, "run and script are mutually exclusive"))
		case !hasRun && !hasScript:
			errs.Add(NewPlanInvalidError(where, "step has nothing to run").
				WithSuggestion("Set run (an argv list) or script (sh -c)."))
		}

		if s.Timeout != "" {
			if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
				errs.Add(NewPlanInvalidError(where, fmt.Sprintf("invalid timeout %q", s.Timeout)).
					WithSuggestion(`Use a positive duration such as "90s" or "10m".`))
			}
		}
	}

	if errs.Len() == 1 {
		return errs.Errors()[0]
	}
	return errs.AsError()
}

// varRef matches ${name} references.
var varRef = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// expander substitutes plan vars and remembers references it could not
// resolve.
type expander struct {
	vars    map[string]string
	missing []string
}

// argv expands every element; unknown references are errors.
func (e *expander) argv(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, arg := range in {
		out[i] = e.strict(arg)
	}
	return out
}

func (e *expander) strict(s string) string {
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := varRef.FindStringSubmatch(ref)[1]
		v, ok := e.vars[name]
		if !ok {
			e.missing = append(e.missing, name)
			return ref
		}
		return v
	})
}

// script expands known references and leaves the rest for the shell.
func (e *expander) script(s string) string {
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := e.vars[varRef.FindStringSubmatch(ref)[1]]; ok {
			return v
		}
		return ref
	})
}

// ToPlan expands vars, with overrides taking precedence over the file's
// vars, and builds the executable plan.
func (pf *PlanFile) ToPlan(overrides map[string]string) (*step.Plan, error) {
	if err := pf.Validate(); err != nil {
		return nil, err
	}

	exp := &expander{vars: MergeVars(pf.Vars, overrides)}
	errs := NewErrorList()
	steps := make([]step.Step, 0, len(pf.Steps))
	for _, s := range pf.Steps {
		cfg := shell.StepConfig{
			Name:        s.Name,
			Description: exp.script(s.Description),
			Check:       exp.argv(s.Check),
			Unless:      exp.script(s.Unless),
			Run:         exp.argv(s.Run),
			Script:      exp.script(s.Script),
			Verify:      exp.argv(s.Verify),
			Critical:    s.IsCritical(),
		}
		if s.Timeout != "" {
			cfg.Timeout, _ = time.ParseDuration(s.Timeout)
		}

		if len(exp.missing) > 0 {
			errs.Add(NewPlanInvalidError(s.Name, "undefined variable ${"+strings.Join(exp.missing, "}, ${")+"}").
				WithSuggestion("Declare it under vars or pass --var name=value."))
			exp.missing = nil
			continue
		}

		built, err := cfg.Step()
		if err != nil {
			errs.Add(NewPlanInvalidError(s.Name, err.Error()).WithUnderlying(err))
			continue
		}
		steps = append(steps, built)
	}
	if errs.HasErrors() {
		if errs.Len() == 1 {
			return nil, errs.Errors()[0]
		}
		return nil, errs
	}

	plan, err := step.NewPlan(pf.Name, steps...)
	if err != nil {
		return nil, NewPlanInvalidError(pf.Name, err.Error()).WithUnderlying(err)
	}
	if pf.Notice != "" {
		plan = plan.WithNotice(exp.script(pf.Notice))
	}
	return plan, nil
}
