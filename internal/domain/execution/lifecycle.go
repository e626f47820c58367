package execution

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// RunState is the orchestrator's lifecycle state.
type RunState string

const (
	statePending        = "pending"
	stateRunning        = "running"
	stateSuccess        = "success"
	statePartialFailure = "partial-failure"
	stateAborted        = "aborted"
)

// Lifecycle states.
const (
	RunStatePending        RunState = statePending
	RunStateRunning        RunState = stateRunning
	RunStateSuccess        RunState = stateSuccess
	RunStatePartialFailure RunState = statePartialFailure
	RunStateAborted        RunState = stateAborted
)

// Lifecycle events.
const (
	EventStart   = "START"
	EventSucceed = "SUCCEED"
	EventDegrade = "DEGRADE"
	EventAbort   = "ABORT"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateSuccess, RunStatePartialFailure, RunStateAborted:
		return true
	case RunStatePending, RunStateRunning:
		return false
	}
	return false
}

// lifecycleContext is the statekit context for a run.
type lifecycleContext struct {
	Plan        string
	Transitions int
}

// lifecycle wraps the run state machine:
// pending -> running -> success | partial-failure | aborted.
type lifecycle struct {
	interp *statekit.Interpreter[lifecycleContext]
}

func newLifecycle(plan string) (*lifecycle, error) {
	machine, err := statekit.NewMachine[lifecycleContext]("hostprep-run").
		WithInitial(statePending).
		WithContext(lifecycleContext{Plan: plan}).
		WithAction("countTransition", func(c *lifecycleContext, _ statekit.Event) {
			c.Transitions++
		}).
		State(statePending).
		On(EventStart).Target(stateRunning).Done().
		State(stateRunning).
		OnEntry("countTransition").
		On(EventSucceed).Target(stateSuccess).
		On(EventDegrade).Target(statePartialFailure).
		On(EventAbort).Target(stateAborted).Done().
		State(stateSuccess).OnEntry("countTransition").Done().
		State(statePartialFailure).OnEntry("countTransition").Done().
		State(stateAborted).OnEntry("countTransition").Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build run state machine: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &lifecycle{interp: interp}, nil
}

func (l *lifecycle) send(event string) {
	l.interp.Send(statekit.Event{Type: statekit.EventType(event)})
}

func (l *lifecycle) state() RunState {
	return RunState(l.interp.State().Value)
}

func (l *lifecycle) stop() {
	l.interp.Stop()
}

// terminalEvent maps a run status to the event that reaches it.
func terminalEvent(status RunStatus) string {
	switch status {
	case RunSuccess:
		return EventSucceed
	case RunPartialFailure:
		return EventDegrade
	case RunAborted:
		return EventAbort
	}
	return EventAbort
}
