package config

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.True(t, cfg.FailFast)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, 300*time.Second, cfg.Timeout)
	assert.Equal(t, ports.LevelInfo, cfg.Level())
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout: must be positive"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, `unknown log level "loud"`},
		{"identity without host", func(c *Config) { c.Identity = "/root/.ssh/id" }, "identity: requires --host"},
		{"host with space", func(c *Config) { c.Host = "root@a b" }, "contains whitespace"},
		{"bad var", func(c *Config) { c.Vars = map[string]string{"node-port": "1"} }, "invalid variable name"},
		{"remote ok", func(c *Config) { c.Host = "root@10.0.0.5:2222"; c.Identity = "/k" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, IsUserError(err, ErrCodeValidationFailed))
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Timeout = -time.Second
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	var list *ErrorList
	require.ErrorAs(t, err, &list)
	assert.Equal(t, 2, list.Len())
}

func TestConfig_Level(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ports.LevelDebug, Config{LogLevel: "DEBUG"}.Level())
	assert.Equal(t, ports.LevelInfo, Config{}.Level())
	assert.Equal(t, ports.LevelInfo, Config{LogLevel: "nope"}.Level())
}

func TestParseVars(t *testing.T) {
	t.Parallel()

	vars, err := ParseVars([]string{"node_port=4000", "repo=https://example.com/a.git?x=1", "branch=", "node_port=4133"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"node_port": "4133",
		"repo":      "https://example.com/a.git?x=1",
		"branch":    "",
	}, vars)

	_, err = ParseVars([]string{"novalue"})
	assert.True(t, IsUserError(err, ErrCodeValidationFailed))

	_, err = ParseVars([]string{"1bad=x"})
	assert.True(t, IsUserError(err, ErrCodeValidationFailed))

	vars, err = ParseVars(nil)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestMergeVars(t *testing.T) {
	t.Parallel()

	base := map[string]string{"a": "1", "b": "2"}
	merged := MergeVars(base, map[string]string{"b": "3", "c": "4"})
	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, merged)
	assert.Equal(t, "2", base["b"])
	assert.Empty(t, MergeVars(nil, nil))
}
