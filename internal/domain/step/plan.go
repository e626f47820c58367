package step

import (
	"errors"
	"fmt"
)

// Errors for plan construction.
var (
	ErrDuplicateStep = errors.New("duplicate step name")
	ErrNoApply       = errors.New("step has no apply action")
	ErrApplyPanicked = errors.New("apply panicked")
)

// Plan is an ordered, immutable sequence of steps. Order is dependency
// order; the plan is never reordered.
type Plan struct {
	name   string
	steps  []Step
	index  map[string]int
	notice string
}

// NewPlan validates steps and builds a plan.
func NewPlan(name string, steps ...Step) (*Plan, error) {
	p := &Plan{
		name:  name,
		steps: make([]Step, 0, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	for _, s := range steps {
		if err := ValidateName(s.Name); err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, err)
		}
		if s.Apply == nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, ErrNoApply)
		}
		if _, dup := p.index[s.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, s.Name)
		}
		p.index[s.Name] = len(p.steps)
		p.steps = append(p.steps, s)
	}
	return p, nil
}

// MustNewPlan is NewPlan for plans built from constants.
func MustNewPlan(name string, steps ...Step) *Plan {
	p, err := NewPlan(name, steps...)
	if err != nil {
		panic("invalid plan " + name + ": " + err.Error())
	}
	return p
}

// WithNotice returns a copy of the plan carrying an operator message shown
// after the run.
func (p *Plan) WithNotice(notice string) *Plan {
	clone := *p
	clone.notice = notice
	return &clone
}

// Name returns the plan name.
func (p *Plan) Name() string {
	return p.name
}

// Notice returns the operator message.
func (p *Plan) Notice() string {
	return p.notice
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	return len(p.steps)
}

// Steps returns a copy of the steps in order.
func (p *Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Names returns step names in order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Name
	}
	return out
}

// Lookup returns the step with name.
func (p *Plan) Lookup(name string) (Step, bool) {
	i, ok := p.index[name]
	if !ok {
		return Step{}, false
	}
	return p.steps[i], true
}
