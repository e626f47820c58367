package host

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/ports"
	"gopkg.in/ini.v1"
)

// OSReleasePath is the standard location of the os-release file.
const OSReleasePath = "/etc/os-release"

// Facts describes the target operating system.
type Facts struct {
	ID         string
	IDLike     []string
	VersionID  string
	PrettyName string
}

// ParseOSRelease parses os-release content (KEY=value lines, optionally
// quoted).
func ParseOSRelease(data []byte) (Facts, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return Facts{}, fmt.Errorf("parse os-release: %w", err)
	}

	sec := cfg.Section(ini.DefaultSection)
	return Facts{
		ID:         strings.ToLower(sec.Key("ID").String()),
		IDLike:     strings.Fields(strings.ToLower(sec.Key("ID_LIKE").String())),
		VersionID:  sec.Key("VERSION_ID").String(),
		PrettyName: sec.Key("PRETTY_NAME").String(),
	}, nil
}

// LoadFacts reads and parses an os-release file.
func LoadFacts(path string) (Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Facts{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseOSRelease(data)
}

// IsDebianFamily reports whether the OS is Debian or derived from it.
func (f Facts) IsDebianFamily() bool {
	if f.ID == "debian" || f.ID == "ubuntu" {
		return true
	}
	for _, like := range f.IDLike {
		if like == "debian" || like == "ubuntu" {
			return true
		}
	}
	return false
}

// IsZero reports whether no facts were collected.
func (f Facts) IsZero() bool {
	return f.ID == "" && f.VersionID == "" && f.PrettyName == "" && len(f.IDLike) == 0
}

// String returns the pretty name, falling back to ID and version.
func (f Facts) String() string {
	if f.PrettyName != "" {
		return f.PrettyName
	}
	if f.ID == "" {
		return "unknown"
	}
	return strings.TrimSpace(f.ID + " " + f.VersionID)
}

// ReadFacts reads os-release through runner, so it works for remote
// targets as well as the local host.
func ReadFacts(ctx context.Context, runner ports.CommandRunner) (Facts, error) {
	result, err := runner.Run(ctx, []string{"cat", OSReleasePath}, 10*time.Second)
	if err != nil {
		return Facts{}, err
	}
	if !result.Success() {
		return Facts{}, fmt.Errorf("read %s: exit code %d", OSReleasePath, result.ExitCode)
	}
	return ParseOSRelease(result.Stdout)
}
