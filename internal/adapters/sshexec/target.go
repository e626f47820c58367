// Package sshexec runs commands on a remote host over SSH.
package sshexec

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/validation"
)

// DefaultPort is the SSH port used when the target names none.
const DefaultPort = 22

// DefaultConnectTimeout bounds dialing and the handshake.
const DefaultConnectTimeout = 30 * time.Second

// Target identifies the remote host and how to authenticate to it.
type Target struct {
	User string
	Host string
	Port int

	// IdentityFile is tried before the default keys in ~/.ssh.
	IdentityFile string
	// KnownHosts overrides ~/.ssh/known_hosts.
	KnownHosts string
	// InsecureIgnoreHostKey skips host key verification.
	InsecureIgnoreHostKey bool

	ConnectTimeout time.Duration
}

// ParseTarget parses "user@host[:port]". IPv6 hosts use brackets:
// "root@[2001:db8::1]:2222".
func ParseTarget(s string) (Target, error) {
	user, hostPort, ok := strings.Cut(s, "@")
	if !ok {
		return Target{}, fmt.Errorf("ssh target %q: want user@host[:port]", s)
	}
	if err := validation.ValidateUser(user); err != nil {
		return Target{}, fmt.Errorf("ssh target %q: %w", s, err)
	}

	t := Target{User: user, Port: DefaultPort}
	host := hostPort
	if h, p, err := net.SplitHostPort(hostPort); err == nil {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Target{}, fmt.Errorf("ssh target %q: port %q: %w", s, p, validation.ErrInvalidPort)
		}
		if err := validation.ValidatePort(port); err != nil {
			return Target{}, fmt.Errorf("ssh target %q: %w", s, err)
		}
		host, t.Port = h, port
	} else {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}

	if ip := net.ParseIP(host); ip == nil {
		if err := validation.ValidateHostname(host); err != nil {
			return Target{}, fmt.Errorf("ssh target %q: %w", s, err)
		}
	}
	t.Host = host
	return t, nil
}

// Addr returns the host:port dial address.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// String returns the target in user@host:port form.
func (t Target) String() string {
	return t.User + "@" + t.Addr()
}
