// Package validation checks operator-supplied values before they reach a
// command line: package and crate names, hosts, ports, paths and plan
// variables.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Common validation errors.
var (
	ErrEmptyInput         = errors.New("input cannot be empty")
	ErrInvalidPackageName = errors.New("invalid package name")
	ErrInvalidCargoCrate  = errors.New("invalid cargo crate name")
	ErrPathTraversal      = errors.New("path traversal detected")
	ErrInvalidPath        = errors.New("invalid path")
	ErrCommandInjection   = errors.New("potential command injection detected")
	ErrInvalidHostname    = errors.New("invalid hostname")
	ErrInvalidUser        = errors.New("invalid user name")
	ErrInvalidPort        = errors.New("invalid port")
	ErrInvalidProtocol    = errors.New("invalid protocol")
	ErrInvalidURL         = errors.New("invalid URL")
	ErrInvalidVarName     = errors.New("invalid variable name")
)

var (
	// packageNameRegex matches Debian package names: "build-essential", "libssl-dev", "g++"
	packageNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)

	// crateRegex matches crate names with optional @version: "snarkos", "bat@0.22.1"
	crateRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*(@[a-zA-Z0-9._-]+)?$`)

	// hostnameRegex matches DNS names and IPv4 addresses
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

	// userRegex matches POSIX login names
	userRegex = regexp.MustCompile(`^[a-z_][a-z0-9_.-]*$`)

	// urlRegex matches HTTPS URLs without query strings
	urlRegex = regexp.MustCompile(`^https://[a-zA-Z0-9][a-zA-Z0-9._/-]*$`)

	// varNameRegex matches plan variable names: "node_port", "repo"
	varNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	shellMetaChars = []string{";", "|", "&", "$", "`", "(", ")", "{", "}", "<", ">", "\n", "\r", "\\"}
)

// ValidatePackageName validates an apt package name.
func ValidatePackageName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if len(name) > 256 {
		return fmt.Errorf("%w: name too long (max 256 characters)", ErrInvalidPackageName)
	}
	if !packageNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidPackageName, name)
	}
	return nil
}

// ValidateCargoCrate validates a Cargo crate name with optional version.
func ValidateCargoCrate(crate string) error {
	if crate == "" {
		return ErrEmptyInput
	}
	if len(crate) > 256 {
		return fmt.Errorf("%w: crate name too long", ErrInvalidCargoCrate)
	}
	if !crateRegex.MatchString(crate) {
		return fmt.Errorf("%w: %q is not a valid crate name", ErrInvalidCargoCrate, crate)
	}
	return nil
}

// ValidateURL validates an HTTPS download URL.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return ErrEmptyInput
	}
	if len(urlStr) > 2048 {
		return fmt.Errorf("%w: URL too long", ErrInvalidURL)
	}
	if containsShellMeta(urlStr) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, urlStr)
	}
	if !urlRegex.MatchString(urlStr) {
		return fmt.Errorf("%w: %q must be an HTTPS URL", ErrInvalidURL, urlStr)
	}
	return nil
}

// ValidatePath validates a file path and rejects traversal sequences.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyInput
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: path contains null byte", ErrInvalidPath)
	}
	if containsPathTraversal(path) {
		return fmt.Errorf("%w: %q contains traversal sequence", ErrPathTraversal, path)
	}
	return nil
}

// ValidateHostname validates an SSH host name or IPv4 address.
func ValidateHostname(hostname string) error {
	if hostname == "" {
		return ErrEmptyInput
	}
	if len(hostname) > 253 {
		return fmt.Errorf("%w: hostname too long", ErrInvalidHostname)
	}
	if containsShellMeta(hostname) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, hostname)
	}
	if !hostnameRegex.MatchString(hostname) || strings.Contains(hostname, "..") {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidHostname, hostname)
	}
	return nil
}

// ValidateUser validates a remote login name.
func ValidateUser(user string) error {
	if user == "" {
		return ErrEmptyInput
	}
	if len(user) > 32 || !userRegex.MatchString(user) {
		return fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}
	return nil
}

// ValidatePort validates a TCP/UDP port number.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d is outside 1-65535", ErrInvalidPort, port)
	}
	return nil
}

// ValidateProtocol accepts the protocols ufw understands.
func ValidateProtocol(proto string) error {
	switch proto {
	case "tcp", "udp":
		return nil
	case "":
		return ErrEmptyInput
	}
	return fmt.Errorf("%w: %q (want tcp or udp)", ErrInvalidProtocol, proto)
}

// ValidateVarName validates a plan variable name.
func ValidateVarName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if !varNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q must be letters, digits and underscores", ErrInvalidVarName, name)
	}
	return nil
}

// containsShellMeta checks if a string contains shell metacharacters.
func containsShellMeta(s string) bool {
	_, found := firstShellMeta(s)
	return found
}

func firstShellMeta(s string) (string, bool) {
	for _, char := range shellMetaChars {
		if strings.Contains(s, char) {
			return char, true
		}
	}
	return "", false
}

// containsPathTraversal checks for common path traversal patterns.
func containsPathTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	lower := strings.ToLower(path)
	return strings.Contains(lower, "%2e%2e")
}
