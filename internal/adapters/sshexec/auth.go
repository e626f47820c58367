package sshexec

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoAuthMethods is returned when no key or agent is usable.
var ErrNoAuthMethods = errors.New("no authentication methods available")

// authConfig holds the locations Dial reads credentials from.
type authConfig struct {
	home       string
	agentSock  string
	identities []string
}

func defaultAuthConfig() authConfig {
	home, _ := os.UserHomeDir()
	return authConfig{
		home:      home,
		agentSock: os.Getenv("SSH_AUTH_SOCK"),
		identities: []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
		},
	}
}

// authMethods loads the explicit identity file, then the default keys,
// then the agent. A broken explicit identity is an error; broken defaults
// are skipped.
func (a authConfig) authMethods(identityFile string) ([]ssh.AuthMethod, []func() error, error) {
	var methods []ssh.AuthMethod
	var closers []func() error

	if identityFile != "" {
		signer, err := loadPrivateKey(a.expand(identityFile))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load identity file %s: %w", identityFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	for _, path := range a.identities {
		if signer, err := loadPrivateKey(path); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if a.agentSock != "" {
		if conn, err := net.Dial("unix", a.agentSock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			closers = append(closers, conn.Close)
		}
	}

	if len(methods) == 0 {
		return nil, nil, ErrNoAuthMethods
	}
	return methods, closers, nil
}

// hostKeyCallback verifies against known_hosts unless verification is
// explicitly disabled.
func (a authConfig) hostKeyCallback(t Target) (ssh.HostKeyCallback, error) {
	if t.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // operator opted out with a flag
	}
	path := t.KnownHosts
	if path == "" {
		path = filepath.Join(a.home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(a.expand(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", path, err)
	}
	return callback, nil
}

func (a authConfig) expand(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(a.home, path[2:])
	}
	return path
}

func loadPrivateKey(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}
