// Package apt provides steps for package management on Debian/Ubuntu.
package apt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/validation"
)

// ListsDir holds the downloaded package indexes.
const ListsDir = "/var/lib/apt/lists"

// DefaultMaxListAge is how old package indexes may be before apt:update runs again.
const DefaultMaxListAge = 24 * time.Hour

// InstallTimeout bounds a single apt-get install.
const InstallTimeout = 30 * time.Minute

// aptGet runs apt-get as root without interactive prompts.
func aptGet(args ...string) []string {
	return append([]string{"sudo", "env", "DEBIAN_FRONTEND=noninteractive", "apt-get"}, args...)
}

// UpdateStep refreshes the package indexes unless they were refreshed
// within maxAge.
func UpdateStep(maxAge time.Duration) step.Step {
	if maxAge <= 0 {
		maxAge = DefaultMaxListAge
	}
	minutes := max(int(maxAge.Minutes()), 1)

	return step.Step{
		Name:        "apt:update",
		Description: fmt.Sprintf("Refresh apt package indexes older than %s", maxAge),
		// find prints the directory only when it was modified recently.
		Precondition:  step.OutputContains(ListsDir, "find", ListsDir, "-maxdepth", "0", "-mmin", "-"+strconv.Itoa(minutes)),
		Apply:         step.RunCommand(aptGet("update")...),
		Postcondition: step.CommandSucceeds("test", "-d", ListsDir),
		Critical:      true,
		Timeout:       10 * time.Minute,
	}
}

// PackagesStep installs pkgs in one apt-get transaction. label names the
// group, as in "apt:packages:build-deps".
func PackagesStep(label string, pkgs []string) (step.Step, error) {
	if len(pkgs) == 0 {
		return step.Step{}, fmt.Errorf("apt packages %q: %w", label, validation.ErrEmptyInput)
	}
	for _, pkg := range pkgs {
		if err := validation.ValidatePackageName(pkg); err != nil {
			return step.Step{}, fmt.Errorf("apt packages %q: %w", label, err)
		}
	}
	name := "apt:packages:" + label
	if err := step.ValidateName(name); err != nil {
		return step.Step{}, err
	}

	wanted := append([]string(nil), pkgs...)
	return step.Step{
		Name:         name,
		Description:  "Install " + strings.Join(wanted, ", "),
		Precondition: allInstalled(wanted),
		Apply:        step.RunCommand(aptGet(append([]string{"install", "-y", "--no-install-recommends"}, wanted...)...)...),
		Critical:     true,
		Timeout:      InstallTimeout,
	}, nil
}

// allInstalled is satisfied when dpkg reports every package as installed.
func allInstalled(pkgs []string) step.Condition {
	return func(ctx context.Context, env *host.Env) bool {
		missing, err := Missing(ctx, env, pkgs)
		return err == nil && len(missing) == 0
	}
}

// Missing returns the packages dpkg does not report as installed.
func Missing(ctx context.Context, env *host.Env, pkgs []string) ([]string, error) {
	argv := append([]string{"dpkg-query", "-W", "-f=${Package}\t${db:Status-Status}\n"}, pkgs...)
	result, err := env.Run(ctx, argv...)
	if err != nil {
		return nil, err
	}
	if result.TimedOut {
		return nil, fmt.Errorf("dpkg-query timed out")
	}

	// dpkg-query exits 1 when some package is unknown but still prints the rest.
	installed := ParseStatus(result.StdoutString())
	var missing []string
	for _, pkg := range pkgs {
		if !installed[pkg] {
			missing = append(missing, pkg)
		}
	}
	return missing, nil
}

// ParseStatus parses "package<TAB>status" lines from dpkg-query into the
// set of installed packages. Architecture qualifiers are stripped.
func ParseStatus(output string) map[string]bool {
	installed := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		name, status, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		name, _, _ = strings.Cut(name, ":")
		if strings.TrimSpace(status) == "installed" {
			installed[name] = true
		}
	}
	return installed
}
