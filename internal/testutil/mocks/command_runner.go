// Package mocks provides test doubles for testing.
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// CommandFunc produces a result dynamically, e.g. to model host state that
// changes once an install command has run.
type CommandFunc func(call ports.CommandCall) (ports.CommandResult, error)

// CommandRunner is a thread-safe test double for ports.CommandRunner.
// Unregistered commands fail with a *ports.LaunchError, like a missing binary.
type CommandRunner struct {
	mu      sync.RWMutex
	results map[string]ports.CommandResult
	errors  map[string]error
	funcs   map[string]CommandFunc
	calls   []ports.CommandCall
}

// NewCommandRunner creates a new CommandRunner mock.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{
		results: make(map[string]ports.CommandResult),
		errors:  make(map[string]error),
		funcs:   make(map[string]CommandFunc),
		calls:   make([]ports.CommandCall, 0),
	}
}

// AddResult registers an expected command and its result.
func (m *CommandRunner) AddResult(argv []string, result ports.CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[buildKey(argv)] = result
}

// AddExit registers a command that exits with code and no output.
func (m *CommandRunner) AddExit(argv []string, code int) {
	m.AddResult(argv, ports.CommandResult{ExitCode: code})
}

// AddError registers an expected command that should return an error.
func (m *CommandRunner) AddError(argv []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[buildKey(argv)] = err
}

// AddFunc registers a dynamic handler for a command.
func (m *CommandRunner) AddFunc(argv []string, fn CommandFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[buildKey(argv)] = fn
}

// Run executes a mock command.
func (m *CommandRunner) Run(_ context.Context, argv []string, timeout time.Duration) (ports.CommandResult, error) {
	call := ports.CommandCall{Argv: append([]string(nil), argv...), Timeout: timeout}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	key := buildKey(argv)
	fn, hasFn := m.funcs[key]
	err, hasErr := m.errors[key]
	result, hasResult := m.results[key]
	m.mu.Unlock()

	switch {
	case hasFn:
		return fn(call)
	case hasErr:
		return ports.CommandResult{}, err
	case hasResult:
		return result, nil
	}
	return ports.CommandResult{}, ports.NewLaunchError(argv, fmt.Errorf("no mock result for command: %s", key))
}

// Calls returns all recorded command invocations.
func (m *CommandRunner) Calls() []ports.CommandCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]ports.CommandCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns how many times argv was run.
func (m *CommandRunner) CallCount(argv ...string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := buildKey(argv)
	count := 0
	for _, c := range m.calls {
		if buildKey(c.Argv) == key {
			count++
		}
	}
	return count
}

// Reset clears all registered results, errors, and recorded calls.
func (m *CommandRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = make(map[string]ports.CommandResult)
	m.errors = make(map[string]error)
	m.funcs = make(map[string]CommandFunc)
	m.calls = make([]ports.CommandCall, 0)
}

func buildKey(argv []string) string {
	return strings.Join(argv, "\x1f")
}

// Ensure CommandRunner implements ports.CommandRunner.
var _ ports.CommandRunner = (*CommandRunner)(nil)
