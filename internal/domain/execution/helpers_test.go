package execution

import (
	"sync"

	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/testutil/mocks"
)

// fakeHost models host state behind a mock runner: "check <name>" exits 0
// once "install <name>" has succeeded.
type fakeHost struct {
	mu        sync.Mutex
	runner    *mocks.CommandRunner
	installed map[string]bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{runner: mocks.NewCommandRunner(), installed: map[string]bool{}}
}

func (h *fakeHost) isInstalled(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed[name]
}

// define registers check/install commands for name. installExit is the
// exit code of install; state only changes when it is 0 and sticks is true.
func (h *fakeHost) define(name string, installExit int, sticks bool) {
	h.runner.AddFunc([]string{"check", name}, func(_ ports.CommandCall) (ports.CommandResult, error) {
		if h.isInstalled(name) {
			return ports.CommandResult{ExitCode: 0}, nil
		}
		return ports.CommandResult{ExitCode: 1}, nil
	})
	h.runner.AddFunc([]string{"install", name}, func(_ ports.CommandCall) (ports.CommandResult, error) {
		if installExit == 0 && sticks {
			h.mu.Lock()
			h.installed[name] = true
			h.mu.Unlock()
		}
		return ports.CommandResult{ExitCode: installExit, Stderr: []byte("E: install " + name + " failed\n")}, nil
	})
}

func (h *fakeHost) step(name string, critical bool) step.Step {
	return step.Step{
		Name:         name,
		Precondition: step.CommandSucceeds("check", name),
		Apply:        step.RunCommand("install", name),
		Critical:     critical,
	}
}

func (h *fakeHost) applyCount(name string) int {
	return h.runner.CallCount("install", name)
}
