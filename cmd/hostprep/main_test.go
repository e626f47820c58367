package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/hostprep/internal/domain/config"
	"github.com/felixgeelhaar/hostprep/internal/domain/report"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCLI returns a cli whose commands run against runner.
func testCLI(runner ports.CommandRunner) (*cli, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	c := newCLI(&stdout, &stderr)
	c.connect = func(context.Context, config.Config) (ports.CommandRunner, func() error, error) {
		return runner, func() error { return nil }, nil
	}
	return c, &stdout, &stderr
}

func TestVersion(t *testing.T) {
	t.Parallel()

	c, stdout, _ := testCLI(nil)
	code := execute([]string{"version"}, c)
	assert.Equal(t, report.ExitSuccess, code)
	assert.Contains(t, stdout.String(), "hostprep dev")
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"provision", "--frobnicate"}},
		{"bad flag value", []string{"provision", "--timeout", "soon"}},
		{"positional args", []string{"provision", "extra"}},
		{"unknown command", []string{"deploy"}},
		{"zero timeout", []string{"provision", "--timeout", "0", "--audit-log", ""}},
		{"overflowing timeout", []string{"provision", "--timeout", "9223372037", "--audit-log", ""}},
		{"negative overflowing timeout", []string{"provision", "--timeout=-9223372037", "--audit-log", ""}},
		{"bad var", []string{"provision", "--var", "novalue", "--audit-log", ""}},
		{"identity without host", []string{"provision", "--identity", "/k", "--audit-log", ""}},
		{"bad port var", []string{"plan", "--var", "node_port=http"}},
		{"missing plan file", []string{"plan", "--plan", "/nonexistent/plan.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _, stderr := testCLI(mocks.NewCommandRunner())
			code := execute(tt.args, c)
			assert.Equal(t, report.ExitUsage, code, stderr.String())
			assert.True(t, strings.HasPrefix(stderr.String(), "Error: "), stderr.String())
		})
	}
}

func TestProvision_DryRun(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	c, stdout, _ := testCLI(runner)
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")

	code := execute([]string{"provision", "--dry-run", "--audit-log", auditPath}, c)
	assert.Equal(t, report.ExitSuccess, code)
	assert.Contains(t, stdout.String(), "Mode: dry run, nothing applied")
	assert.Contains(t, stdout.String(), "~ cargo:install:snarkos")
	assert.Contains(t, stdout.String(), "6 would apply")

	_, err := os.Stat(auditPath)
	require.NoError(t, err)
}

func TestProvision_GlobalLogFlags(t *testing.T) {
	t.Parallel()

	c, _, stderr := testCLI(mocks.NewCommandRunner())
	code := execute([]string{"--json-logs", "-v", "provision", "--dry-run", "--audit-log", ""}, c)
	assert.Equal(t, report.ExitSuccess, code)
	assert.Contains(t, stderr.String(), `"level":"DEBUG"`)

	c, _, stderr = testCLI(mocks.NewCommandRunner())
	code = execute([]string{"provision", "--dry-run", "--audit-log", ""}, c)
	assert.Equal(t, report.ExitSuccess, code)
	assert.NotContains(t, stderr.String(), "DEBUG")
}

func TestProvision_Aborted(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddResult([]string{"sudo", "env", "DEBIAN_FRONTEND=noninteractive", "apt-get", "update"},
		ports.CommandResult{ExitCode: 100, Stderr: []byte("E: network unreachable\n")})
	c, stdout, stderr := testCLI(runner)

	code := execute([]string{"provision", "--audit-log", ""}, c)
	assert.Equal(t, report.ExitAborted, code)
	assert.Contains(t, stdout.String(), "✗ apt:update")
	assert.Contains(t, stdout.String(), "Status:  Aborted (exit 2)")
	assert.NotContains(t, stderr.String(), "Error:")
}

func TestProvision_LaunchErrorPrintsError(t *testing.T) {
	t.Parallel()

	c, _, stderr := testCLI(mocks.NewCommandRunner())
	code := execute([]string{"provision", "--audit-log", ""}, c)
	assert.Equal(t, report.ExitAborted, code)
	assert.Contains(t, stderr.String(), "Error: failed to launch sudo")
}

func TestProvision_PartialFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := `name: tools
steps:
  - name: tools:optional
    critical: false
    run: ["false"]
  - name: tools:required
    run: [touch, /tmp/x]
    verify: [test, -e, /tmp/x]
`
	require.NoError(t, os.WriteFile(path, []byte(plan), 0o600))

	runner := mocks.NewCommandRunner()
	runner.AddExit([]string{"false"}, 1)
	runner.AddExit([]string{"touch", "/tmp/x"}, 0)
	runner.AddExit([]string{"test", "-e", "/tmp/x"}, 0)
	c, stdout, _ := testCLI(runner)

	code := execute([]string{"provision", "--plan", path, "--audit-log", ""}, c)
	assert.Equal(t, report.ExitPartialFailure, code)
	assert.Contains(t, stdout.String(), "✓ tools:required")
	assert.Contains(t, stdout.String(), "Partial Failure")
}

func TestPlanCommand(t *testing.T) {
	t.Parallel()

	c, stdout, _ := testCLI(nil)
	code := execute([]string{"plan", "--var", "node_port=4130"}, c)
	require.Equal(t, report.ExitSuccess, code)

	out := stdout.String()
	assert.Contains(t, out, "Plan: node (6 steps)")
	for _, name := range []string{"apt:update", "apt:packages:build-deps", "rustup:toolchain:stable", "cargo:install:snarkos", "ufw:allow:4130-tcp", "ufw:allow:3033-tcp"} {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "apt:update"), strings.Index(out, "cargo:install:snarkos"))
	assert.Contains(t, out, "After the run:")
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	runner := mocks.NewCommandRunner()
	c, _, _ := testCLI(runner)
	require.Equal(t, report.ExitSuccess, execute([]string{"provision", "--dry-run", "--audit-log", auditPath}, c))

	c, stdout, _ := testCLI(nil)
	require.Equal(t, report.ExitSuccess, execute([]string{"history", "--audit-log", auditPath}, c))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "RUN")
	assert.Contains(t, lines[1], "success (dry run)")

	runID := strings.Fields(lines[1])[0]
	c, stdout, _ = testCLI(nil)
	require.Equal(t, report.ExitSuccess, execute([]string{"history", "--audit-log", auditPath, "--run", runID}, c))
	assert.Contains(t, stdout.String(), "Plan: node")
	assert.Contains(t, stdout.String(), "6 would apply")

	c, stdout, _ = testCLI(nil)
	require.Equal(t, report.ExitSuccess, execute([]string{"history", "--audit-log", auditPath, "--json"}, c))
	assert.Contains(t, stdout.String(), `"kind": "run_finished"`)

	c, _, _ = testCLI(nil)
	assert.Equal(t, report.ExitUsage, execute([]string{"history", "--audit-log", auditPath, "--run", "zzzz"}, c))
}

func TestHistoryCommand_MissingLog(t *testing.T) {
	t.Parallel()

	c, stdout, _ := testCLI(nil)
	code := execute([]string{"history", "--audit-log", filepath.Join(t.TempDir(), "none.jsonl")}, c)
	assert.Equal(t, report.ExitSuccess, code)
	assert.Contains(t, stdout.String(), "No runs recorded")
}

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	list := config.NewErrorList()
	list.AddValidation("a", "b", "")
	list.AddValidation("c", "d", "")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, report.ExitSuccess},
		{"exit error", &exitError{code: report.ExitAborted}, report.ExitAborted},
		{"usage", &usageError{err: errors.New("bad flag")}, report.ExitUsage},
		{"user error", config.NewPlanInvalidError("x", "y"), report.ExitUsage},
		{"error list", list, report.ExitUsage},
		{"unknown command", errors.New(`unknown command "x" for "hostprep"`), report.ExitUsage},
		{"other", errors.New("disk on fire"), report.ExitPartialFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	ue := config.NewPlanInvalidError("steps[0]", "step has nothing to run").
		WithSuggestion("Set run or script.").
		WithUnderlying(errors.New("inner"))

	assert.Equal(t, "step has nothing to run (at steps[0])\n\nSuggestion: Set run or script.", formatError(ue, false))
	assert.Contains(t, formatError(ue, true), "Technical details: inner")
	assert.Equal(t, "plain", formatError(errors.New("plain"), false))

	list := config.NewErrorList()
	list.Add(config.NewPlanInvalidError("a", "first"))
	list.Add(config.NewPlanInvalidError("b", "second"))
	assert.Equal(t, "2 problems found:\n  - first (at a)\n  - second (at b)", formatError(list, false))
}

func TestHistoryHelp_MentionsRotation(t *testing.T) {
	t.Parallel()

	c, stdout, _ := testCLI(nil)
	require.Equal(t, report.ExitSuccess, execute([]string{"history", "--help"}, c))
	assert.Contains(t, stdout.String(), "Only the active log file is read.")
}
