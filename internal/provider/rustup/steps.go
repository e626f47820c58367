// Package rustup provides steps that install the Rust toolchain through
// the rustup installer.
package rustup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/provider/versionutil"
	"github.com/felixgeelhaar/hostprep/internal/validation"
)

// InstallerURL serves the rustup-init shell script.
const InstallerURL = "https://sh.rustup.rs"

// CargoHomeVar names the env var that overrides the cargo home directory.
const CargoHomeVar = "cargo_home"

// InstallTimeout bounds the download and toolchain install.
const InstallTimeout = 15 * time.Minute

// cargoBinScript resolves a rustup-managed binary the way rustup's own
// shims do, then execs it with the remaining arguments.
const cargoBinScript = `exec "${CARGO_HOME:-$HOME/.cargo}/bin/$0" "$@"`

// Bin returns argv that runs a binary from the cargo home of the target
// host. The env var cargo_home pins the directory explicitly.
func Bin(env *host.Env, tool string, args ...string) []string {
	if home := env.Var(CargoHomeVar, ""); home != "" {
		return append([]string{strings.TrimSuffix(home, "/") + "/bin/" + tool}, args...)
	}
	return append([]string{"sh", "-c", cargoBinScript, tool}, args...)
}

// Toolchain describes the toolchain to install.
type Toolchain struct {
	// Name is a rustup toolchain such as "stable" or "1.75.0".
	Name string
	// MinVersion is the lowest acceptable rustc version. Empty accepts any.
	MinVersion string
	// InstallerURL overrides the rustup-init location.
	InstallerURL string
}

// ToolchainStep installs rustup and the toolchain unless a rustc of at least
// MinVersion is already present.
func ToolchainStep(tc Toolchain) (step.Step, error) {
	if tc.Name == "" {
		tc.Name = "stable"
	}
	if err := validation.ValidatePackageName(tc.Name); err != nil {
		return step.Step{}, fmt.Errorf("rustup toolchain: %w", err)
	}
	if tc.MinVersion != "" && !versionutil.Valid(tc.MinVersion) {
		return step.Step{}, fmt.Errorf("rustup toolchain: invalid minimum version %q", tc.MinVersion)
	}
	if tc.InstallerURL == "" {
		tc.InstallerURL = InstallerURL
	}
	if err := validation.ValidateURL(tc.InstallerURL); err != nil {
		return step.Step{}, fmt.Errorf("rustup installer: %w", err)
	}

	desc := "Install the " + tc.Name + " Rust toolchain via rustup"
	if tc.MinVersion != "" {
		desc += " (rustc >= " + tc.MinVersion + ")"
	}

	script := fmt.Sprintf("curl --proto '=https' --tlsv1.2 -sSf %s | sh -s -- -y --default-toolchain %s", tc.InstallerURL, tc.Name)
	return step.Step{
		Name:         "rustup:toolchain:" + tc.Name,
		Description:  desc,
		Precondition: rustcAtLeast(tc.MinVersion),
		Apply:        step.RunScript(script),
		Critical:     true,
		Timeout:      InstallTimeout,
	}, nil
}

func rustcAtLeast(minVersion string) step.Condition {
	return func(ctx context.Context, env *host.Env) bool {
		version, err := RustcVersion(ctx, env)
		if err != nil {
			return false
		}
		return minVersion == "" || versionutil.AtLeast(version, minVersion)
	}
}

// RustcVersion returns the version reported by the installed rustc.
func RustcVersion(ctx context.Context, env *host.Env) (string, error) {
	result, err := env.Run(ctx, Bin(env, "rustc", "--version")...)
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", fmt.Errorf("rustc --version failed: %s", failureText(result))
	}
	version, ok := versionutil.Extract(result.StdoutString())
	if !ok {
		return "", fmt.Errorf("rustc --version: unrecognized output %q", strings.TrimSpace(result.StdoutString()))
	}
	return version, nil
}

func failureText(r ports.CommandResult) string {
	if r.TimedOut {
		return "timed out"
	}
	if line := r.FirstStderrLine(); line != "" {
		return line
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}
