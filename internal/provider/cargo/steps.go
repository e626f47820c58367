// Package cargo provides steps that build and install crates with cargo.
package cargo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/provider/rustup"
	"github.com/felixgeelhaar/hostprep/internal/validation"
)

// InstallTimeout bounds a crate build; release builds of large crates are slow.
const InstallTimeout = time.Hour

// Crate identifies what to install. Git and Path are mutually exclusive;
// with neither set the crate comes from crates.io.
type Crate struct {
	Name   string
	Git    string
	Branch string
	Path   string
	Locked bool
}

// BaseName returns the crate name without an "@version" suffix.
func (c Crate) BaseName() string {
	name, _, _ := strings.Cut(c.Name, "@")
	return name
}

// Source describes where the crate is built from.
func (c Crate) Source() string {
	switch {
	case c.Git != "" && c.Branch != "":
		return c.Git + "#" + c.Branch
	case c.Git != "":
		return c.Git
	case c.Path != "":
		return c.Path
	}
	return "crates.io"
}

// Validate checks the crate fields before they reach a command line.
func (c Crate) Validate() error {
	if err := validation.ValidateCargoCrate(c.Name); err != nil {
		return err
	}
	if c.Git != "" && c.Path != "" {
		return errors.New("git and path are mutually exclusive")
	}
	if c.Git != "" {
		if err := validation.ValidateGitRemoteURL(c.Git); err != nil {
			return err
		}
	}
	if c.Branch != "" && c.Git == "" {
		return errors.New("branch requires git")
	}
	if err := validation.ValidateGitBranch(c.Branch); err != nil {
		return err
	}
	if c.Path != "" {
		if err := validation.ValidatePath(c.Path); err != nil {
			return err
		}
	}
	return nil
}

// installArgs returns the arguments after "cargo".
func (c Crate) installArgs() []string {
	args := []string{"install"}
	if c.Locked {
		args = append(args, "--locked")
	}
	// Only reached when the installed copy is missing or from elsewhere.
	args = append(args, "--force")
	switch {
	case c.Git != "":
		args = append(args, "--git", c.Git)
		if c.Branch != "" {
			args = append(args, "--branch", c.Branch)
		}
	case c.Path != "":
		args = append(args, "--path", c.Path)
	}
	return append(args, c.Name)
}

// InstallStep builds and installs c unless cargo already lists it from the
// same source.
func InstallStep(c Crate) (step.Step, error) {
	if err := c.Validate(); err != nil {
		return step.Step{}, fmt.Errorf("cargo crate %q: %w", c.Name, err)
	}

	args := c.installArgs()
	return step.Step{
		Name:        "cargo:install:" + strings.ToLower(c.BaseName()),
		Description: fmt.Sprintf("Build and install %s from %s", c.Name, c.Source()),
		Precondition: func(ctx context.Context, env *host.Env) bool {
			installed, err := Installed(ctx, env)
			if err != nil {
				return false
			}
			pkg, ok := installed[c.BaseName()]
			return ok && pkg.FromSource(c)
		},
		Apply: func(ctx context.Context, env *host.Env) (ports.CommandResult, error) {
			return env.Run(ctx, rustup.Bin(env, "cargo", args...)...)
		},
		Critical: true,
		Timeout:  InstallTimeout,
	}, nil
}

// Package is one entry of "cargo install --list".
type Package struct {
	Name    string
	Version string
	// Source is the parenthesized origin, empty for crates.io.
	Source string
	Bins   []string
}

// FromSource reports whether p was installed from where c points.
func (p Package) FromSource(c Crate) bool {
	switch {
	case c.Git != "":
		installed, err := parseGitSource(p.Source)
		if err != nil {
			return false
		}
		wanted, err := parseGitSource(c.Git)
		if err != nil || repoKey(installed) != repoKey(wanted) {
			return false
		}
		return c.Branch == "" || installed.Query().Get("branch") == c.Branch
	case c.Path != "":
		return p.Source != "" && !strings.Contains(p.Source, "://")
	}
	return p.Source == ""
}

// parseGitSource parses a git remote as cargo records it. The scp-like
// form git@host:org/repo is rewritten to ssh://git@host/org/repo.
func parseGitSource(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		userHost, path, ok := strings.Cut(raw, ":")
		if !ok || !strings.Contains(userHost, "@") {
			return nil, fmt.Errorf("not a git remote: %q", raw)
		}
		raw = "ssh://" + userHost + "/" + strings.TrimPrefix(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("not a git remote: %q", raw)
	}
	u.Fragment = ""
	return u, nil
}

// repoKey identifies a repository by scheme, host and path; ".git" and a
// trailing slash are ignored.
func repoKey(u *url.URL) string {
	path := strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), ".git")
	return u.Scheme + "://" + strings.ToLower(u.Host) + path
}

// Installed runs "cargo install --list" on the host.
func Installed(ctx context.Context, env *host.Env) (map[string]Package, error) {
	result, err := env.Run(ctx, rustup.Bin(env, "cargo", "install", "--list")...)
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		return nil, fmt.Errorf("cargo install --list failed: %s", result.FirstStderrLine())
	}
	return ParseInstallList(result.StdoutString()), nil
}

// ParseInstallList parses the output of "cargo install --list":
//
//	snarkos v2.2.7 (https://github.com/AleoNet/snarkOS.git?branch=mainnet#1a2b3c4d):
//	    snarkos
func ParseInstallList(output string) map[string]Package {
	pkgs := make(map[string]Package)
	var current string
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if current != "" {
				p := pkgs[current]
				p.Bins = append(p.Bins, strings.TrimSpace(line))
				pkgs[current] = p
			}
			continue
		}

		header := strings.TrimSuffix(strings.TrimSpace(line), ":")
		fields := strings.SplitN(header, " ", 3)
		if len(fields) < 2 {
			current = ""
			continue
		}
		p := Package{Name: fields[0], Version: strings.TrimPrefix(fields[1], "v")}
		if len(fields) == 3 {
			p.Source = strings.TrimSuffix(strings.TrimPrefix(fields[2], "("), ")")
		}
		pkgs[p.Name] = p
		current = p.Name
	}
	return pkgs
}
