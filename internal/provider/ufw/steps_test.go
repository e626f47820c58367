package ufw

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/felixgeelhaar/hostprep/internal/testutil/mocks"
	"github.com/felixgeelhaar/hostprep/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activeStatus = `Status: active

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW       Anywhere
4133/tcp                   ALLOW       Anywhere
3033/tcp                   DENY        Anywhere
4133/tcp (v6)              ALLOW       Anywhere (v6)
`

func TestStatusAllows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"allowed", Rule{4133, "tcp"}, true},
		{"denied", Rule{3033, "tcp"}, false},
		{"other proto", Rule{4133, "udp"}, false},
		{"absent", Rule{8080, "tcp"}, false},
		{"prefix only", Rule{41, "tcp"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusAllows(activeStatus, tt.rule))
		})
	}

	assert.False(t, StatusAllows("Status: inactive\n", Rule{4133, "tcp"}))
}

func TestAddedAllows(t *testing.T) {
	t.Parallel()

	out := "Added user rules (see 'ufw status' for running firewall):\nufw allow 4133/tcp\n"
	assert.True(t, AddedAllows(out, Rule{4133, "tcp"}))
	assert.False(t, AddedAllows(out, Rule{3033, "tcp"}))
}

func TestAllowPortStep(t *testing.T) {
	t.Parallel()

	s, err := AllowPortStep(4133, "TCP")
	require.NoError(t, err)
	assert.Equal(t, "ufw:allow:4133-tcp", s.Name)
	assert.False(t, s.Critical)

	t.Run("satisfied by active rule", func(t *testing.T) {
		t.Parallel()
		runner := mocks.NewCommandRunner()
		runner.AddResult([]string{"sudo", "ufw", "status"}, ports.CommandResult{Stdout: []byte(activeStatus)})
		assert.True(t, s.Satisfied(context.Background(), host.NewEnv(runner)))
		assert.Zero(t, runner.CallCount("sudo", "ufw", "show", "added"))
	})

	t.Run("satisfied by added rule on inactive firewall", func(t *testing.T) {
		t.Parallel()
		runner := mocks.NewCommandRunner()
		runner.AddResult([]string{"sudo", "ufw", "status"}, ports.CommandResult{Stdout: []byte("Status: inactive\n")})
		runner.AddResult([]string{"sudo", "ufw", "show", "added"}, ports.CommandResult{Stdout: []byte("ufw allow 4133/tcp\n")})
		assert.True(t, s.Satisfied(context.Background(), host.NewEnv(runner)))
	})

	t.Run("not satisfied without ufw", func(t *testing.T) {
		t.Parallel()
		runner := mocks.NewCommandRunner()
		assert.False(t, s.Satisfied(context.Background(), host.NewEnv(runner)))
	})

	t.Run("apply", func(t *testing.T) {
		t.Parallel()
		runner := mocks.NewCommandRunner()
		runner.AddExit([]string{"sudo", "ufw", "allow", "4133/tcp"}, 0)
		result, err := s.Apply(context.Background(), host.NewEnv(runner))
		require.NoError(t, err)
		assert.True(t, result.Success())
	})
}

func TestAllowPortStep_Invalid(t *testing.T) {
	t.Parallel()

	_, err := AllowPortStep(0, "tcp")
	require.ErrorIs(t, err, validation.ErrInvalidPort)

	_, err = AllowPortStep(70000, "tcp")
	require.ErrorIs(t, err, validation.ErrInvalidPort)

	_, err = AllowPortStep(22, "icmp")
	require.ErrorIs(t, err, validation.ErrInvalidProtocol)
}
