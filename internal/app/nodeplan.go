// Package app wires configuration, runners, the orchestrator, the audit log
// and the reporter into a provisioning run.
package app

import (
	"fmt"
	"strconv"

	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/felixgeelhaar/hostprep/internal/provider/apt"
	"github.com/felixgeelhaar/hostprep/internal/provider/cargo"
	"github.com/felixgeelhaar/hostprep/internal/provider/rustup"
	"github.com/felixgeelhaar/hostprep/internal/provider/ufw"
)

// NodePlanName names the built-in plan.
const NodePlanName = "node"

// Vars understood by the built-in plan.
const (
	VarRepo     = "repo"
	VarBranch   = "branch"
	VarNodePort = "node_port"
	VarRestPort = "rest_port"
)

// Built-in plan defaults.
const (
	DefaultRepo     = "https://github.com/AleoNet/snarkOS.git"
	DefaultBranch   = "mainnet"
	DefaultNodePort = 4133
	DefaultRestPort = 3033
)

// BuildDeps are the packages needed to build the node.
var BuildDeps = []string{
	"build-essential",
	"curl",
	"clang",
	"gcc",
	"libssl-dev",
	"llvm",
	"make",
	"pkg-config",
	"tmux",
	"xz-utils",
}

// NodeNotice is printed after a run of the built-in plan.
const NodeNotice = `snarkOS is installed in the cargo bin directory.
Start a client node inside tmux with:
  tmux new -s snarkos 'snarkos start --nodisplay --client'
Ports %d/tcp (node) and %d/tcp (REST) are open in ufw.`

// NodePlan builds the plan that prepares a host to run a snarkOS node:
// refresh apt, install build dependencies, install Rust, build the node
// from git and open its ports.
func NodePlan(vars map[string]string) (*step.Plan, error) {
	nodePort, err := portVar(vars, VarNodePort, DefaultNodePort)
	if err != nil {
		return nil, err
	}
	restPort, err := portVar(vars, VarRestPort, DefaultRestPort)
	if err != nil {
		return nil, err
	}
	if nodePort == restPort {
		return nil, fmt.Errorf("%s and %s must differ, both are %d", VarNodePort, VarRestPort, nodePort)
	}

	packages, err := apt.PackagesStep("build-deps", BuildDeps)
	if err != nil {
		return nil, err
	}
	toolchain, err := rustup.ToolchainStep(rustup.Toolchain{Name: "stable"})
	if err != nil {
		return nil, err
	}
	node, err := cargo.InstallStep(cargo.Crate{
		Name:   "snarkos",
		Git:    stringVar(vars, VarRepo, DefaultRepo),
		Branch: stringVar(vars, VarBranch, DefaultBranch),
		Locked: true,
	})
	if err != nil {
		return nil, err
	}
	nodeRule, err := ufw.AllowPortStep(nodePort, "tcp")
	if err != nil {
		return nil, err
	}
	restRule, err := ufw.AllowPortStep(restPort, "tcp")
	if err != nil {
		return nil, err
	}

	plan, err := step.NewPlan(NodePlanName,
		apt.UpdateStep(apt.DefaultMaxListAge),
		packages,
		toolchain,
		node,
		nodeRule,
		restRule,
	)
	if err != nil {
		return nil, err
	}
	return plan.WithNotice(fmt.Sprintf(NodeNotice, nodePort, restPort)), nil
}

func stringVar(vars map[string]string, key, fallback string) string {
	if v, ok := vars[key]; ok && v != "" {
		return v
	}
	return fallback
}

func portVar(vars map[string]string, key string, fallback int) (int, error) {
	v, ok := vars[key]
	if !ok || v == "" {
		return fallback, nil
	}
	port, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("var %s: %q is not a port number", key, v)
	}
	return port, nil
}
