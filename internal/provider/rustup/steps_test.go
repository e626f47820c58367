package rustup

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rustcArgv() []string {
	return []string{"sh", "-c", cargoBinScript, "rustc", "--version"}
}

func TestBin(t *testing.T) {
	t.Parallel()

	env := host.NewEnv(mocks.NewCommandRunner())
	assert.Equal(t, []string{"sh", "-c", cargoBinScript, "cargo", "install", "--list"}, Bin(env, "cargo", "install", "--list"))

	env.Vars[CargoHomeVar] = "/opt/cargo/"
	assert.Equal(t, []string{"/opt/cargo/bin/rustc", "--version"}, Bin(env, "rustc", "--version"))
}

func TestToolchainStep_Validation(t *testing.T) {
	t.Parallel()

	s, err := ToolchainStep(Toolchain{})
	require.NoError(t, err)
	assert.Equal(t, "rustup:toolchain:stable", s.Name)
	assert.True(t, s.Critical)

	_, err = ToolchainStep(Toolchain{Name: "stable;id"})
	assert.Error(t, err)

	_, err = ToolchainStep(Toolchain{MinVersion: "latest"})
	assert.ErrorContains(t, err, "invalid minimum version")

	_, err = ToolchainStep(Toolchain{InstallerURL: "http://sh.rustup.rs"})
	assert.ErrorContains(t, err, "rustup installer")
}

func TestToolchainStep_Precondition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		min    string
		result *ports.CommandResult
		want   bool
	}{
		{"new enough", "1.70.0", &ports.CommandResult{Stdout: []byte("rustc 1.75.0 (82e1608df 2023-12-21)\n")}, true},
		{"too old", "1.76.0", &ports.CommandResult{Stdout: []byte("rustc 1.75.0 (82e1608df 2023-12-21)\n")}, false},
		{"any version", "", &ports.CommandResult{Stdout: []byte("rustc 1.60.0\n")}, true},
		{"not installed", "", &ports.CommandResult{ExitCode: 127, Stderr: []byte("sh: 1: exec: /root/.cargo/bin/rustc: not found\n")}, false},
		{"garbled output", "", &ports.CommandResult{Stdout: []byte("hello\n")}, false},
		{"sh missing", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := mocks.NewCommandRunner()
			if tt.result != nil {
				runner.AddResult(rustcArgv(), *tt.result)
			}

			s, err := ToolchainStep(Toolchain{Name: "stable", MinVersion: tt.min})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Satisfied(context.Background(), host.NewEnv(runner)))
		})
	}
}

func TestToolchainStep_Apply(t *testing.T) {
	t.Parallel()

	script := "curl --proto '=https' --tlsv1.2 -sSf https://sh.rustup.rs | sh -s -- -y --default-toolchain stable"
	runner := mocks.NewCommandRunner()
	runner.AddExit([]string{"sh", "-c", script}, 0)

	s, err := ToolchainStep(Toolchain{Name: "stable"})
	require.NoError(t, err)

	result, err := s.Apply(context.Background(), host.NewEnv(runner))
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Equal(t, 1, runner.CallCount("sh", "-c", script))
}

func TestRustcVersion_Errors(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddResult(rustcArgv(), ports.CommandResult{ExitCode: -1, TimedOut: true})

	_, err := RustcVersion(context.Background(), host.NewEnv(runner))
	assert.ErrorContains(t, err, "timed out")
}
