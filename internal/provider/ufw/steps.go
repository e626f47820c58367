// Package ufw provides steps that open firewall ports with ufw.
package ufw

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

// Rule is a "port/proto" ufw rule such as "4133/tcp".
type Rule struct {
	Port  int
	Proto string
}

// String returns the rule in ufw notation.
func (r Rule) String() string {
	return strconv.Itoa(r.Port) + "/" + r.Proto
}

// Validate checks the port range and protocol.
func (r Rule) Validate() error {
	if err := validation.ValidatePort(r.Port); err != nil {
		return err
	}
	return validation.ValidateProtocol(r.Proto)
}

// AllowPortStep allows inbound traffic to port/proto unless ufw already
// has the rule. The step is not critical.
func AllowPortStep(port int, proto string) (step.Step, error) {
	rule := Rule{Port: port, Proto: strings.ToLower(proto)}
	if err := rule.Validate(); err != nil {
		return step.Step{}, fmt.Errorf("ufw rule %d/%s: %w", port, proto, err)
	}

	return step.Step{
		Name:        fmt.Sprintf("ufw:allow:%d-%s", rule.Port, rule.Proto),
		Description: "Allow inbound " + rule.String() + " through ufw",
		Precondition: func(ctx context.Context, env *host.Env) bool {
			return hasRule(ctx, env, rule)
		},
		Apply:    step.RunCommand("sudo", "ufw", "allow", rule.String()),
		Critical: false,
		Timeout:  time.Minute,
	}, nil
}

// hasRule reports whether ufw lists rule, either in the active ruleset or,
// for an inactive firewall, among the added user rules.
func hasRule(ctx context.Context, env *host.Env, rule Rule) bool {
	result, err := env.Run(ctx, "sudo", "ufw", "status")
	if err != nil || !result.Success() {
		return false
	}
	if StatusAllows(result.StdoutString(), rule) {
		return true
	}
	added, err := env.Run(ctx, "sudo", "ufw", "show", "added")
	if err != nil || !added.Success() {
		return false
	}
	return AddedAllows(added.StdoutString(), rule)
}

// StatusAllows reports whether "ufw status" output has an ALLOW line for rule:
//
//	To                         Action      From
//	--                         ------      ----
//	4133/tcp                   ALLOW       Anywhere
func StatusAllows(output string, rule Rule) bool {
	want := rule.String()
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != want {
			continue
		}
		for _, f := range fields[1:] {
			if f == "ALLOW" {
				return true
			}
		}
	}
	return false
}

// AddedAllows reports whether "ufw show added" output contains
// "ufw allow port/proto".
func AddedAllows(output string, rule Rule) bool {
	want := "ufw allow " + rule.String()
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
