package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/host"
	"github.com/felixgeelhaar/hostprep/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlPlan = `name: validator
notice: Node on port ${node_port} is up.
vars:
  node_port: "4133"
  data_dir: /var/lib/node
steps:
  - name: node:datadir
    check: [test, -d, "${data_dir}"]
    run: [sudo, mkdir, -p, "${data_dir}"]
  - name: ufw:allow:node
    critical: false
    timeout: 30s
    unless: sudo ufw status | grep -q "${node_port}/tcp"
    script: sudo ufw allow ${node_port}/tcp && echo "$HOME ${SHELL}"
    verify: [sudo, ufw, status]
`

const tomlPlan = `name = "validator"
notice = "done"

[vars]
node_port = "4133"

[[steps]]
name = "ufw:allow:node"
critical = false
run = ["sudo", "ufw", "allow", "${node_port}/tcp"]

[[steps]]
name = "node:check"
script = "true"
`

func writePlan(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPlanFile_YAML(t *testing.T) {
	t.Parallel()

	pf, err := LoadPlanFile(writePlan(t, "validator.yaml", yamlPlan))
	require.NoError(t, err)

	assert.Equal(t, "validator", pf.Name)
	assert.Equal(t, "4133", pf.Vars["node_port"])
	require.Len(t, pf.Steps, 2)
	assert.True(t, pf.Steps[0].IsCritical())
	assert.False(t, pf.Steps[1].IsCritical())
	assert.Equal(t, "30s", pf.Steps[1].Timeout)
}

func TestLoadPlanFile_TOML(t *testing.T) {
	t.Parallel()

	pf, err := LoadPlanFile(writePlan(t, "validator.toml", tomlPlan))
	require.NoError(t, err)

	assert.Equal(t, "validator", pf.Name)
	require.Len(t, pf.Steps, 2)
	assert.Equal(t, []string{"sudo", "ufw", "allow", "${node_port}/tcp"}, pf.Steps[0].Run)
	assert.False(t, pf.Steps[0].IsCritical())
	assert.Equal(t, "true", pf.Steps[1].Script)
}

func TestLoadPlanFile_DefaultName(t *testing.T) {
	t.Parallel()

	pf, err := LoadPlanFile(writePlan(t, "tools.yml", "steps:\n  - name: a:b\n    script: \"true\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "tools", pf.Name)
}

func TestLoadPlanFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		file     string
		content  string
		wantCode string
		wantMsg  string
	}{
		{"unknown extension", "plan.json", "{}", ErrCodeConfigInvalid, "unsupported plan file extension"},
		{"empty yaml", "plan.yaml", "", ErrCodePlanInvalid, "plan file is empty"},
		{"unknown yaml field", "plan.yaml", "name: x\nstpes: []\n", ErrCodeConfigParse, "unknown field"},
		{"string run", "plan.yaml", "name: x\nsteps:\n  - name: a:b\n    run: apt-get update\n", ErrCodeConfigParse, "found a string"},
		{"unknown toml field", "plan.toml", "name = \"x\"\nstpes = 1\n", ErrCodeConfigParse, "unknown field"},
		{"bad toml", "plan.toml", "name = \n", ErrCodeConfigParse, "invalid TOML syntax"},
		{"no steps", "plan.yaml", "name: x\n", ErrCodePlanInvalid, "plan has no steps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadPlanFile(writePlan(t, tt.file, tt.content))
			require.Error(t, err)
			assert.True(t, IsUserError(err, tt.wantCode), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadPlanFile_NotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadPlanFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, IsUserError(err, ErrCodeConfigNotFound))
}

func TestPlanFile_Validate(t *testing.T) {
	t.Parallel()

	pf := &PlanFile{
		Name: "x",
		Vars: map[string]string{"bad-name": "1"},
		Steps: []StepEntry{
			{Name: "a:b", Run: []string{"true"}},
			{Name: "a:b", Script: "true"},
			{Name: "has space", Run: []string{"true"}},
			{Name: "c:d"},
			{Name: "e:f", Run: []string{"true"}, Script: "true"},
			{Name: "g:h", Script: "true", Timeout: "soon"},
			{Name: "i:j", Script: "true", Timeout: "-5s"},
		},
	}

	err := pf.Validate()
	var list *ErrorList
	require.ErrorAs(t, err, &list)
	assert.Equal(t, 7, list.Len())

	msg := list.Error()
	assert.Contains(t, msg, `invalid variable name`)
	assert.Contains(t, msg, "duplicate step name, first declared at steps[0]")
	assert.Contains(t, msg, "step name invalid")
	assert.Contains(t, msg, "step has nothing to run")
	assert.Contains(t, msg, "run and script are mutually exclusive")
	assert.Contains(t, msg, `invalid timeout "soon"`)
	assert.Contains(t, msg, `invalid timeout "-5s"`)
}

func TestPlanFile_ToPlan(t *testing.T) {
	t.Parallel()

	pf, err := ParsePlanFile([]byte(yamlPlan), FormatYAML, "validator.yaml")
	require.NoError(t, err)

	plan, err := pf.ToPlan(map[string]string{"node_port": "5000"})
	require.NoError(t, err)

	assert.Equal(t, "validator", plan.Name())
	assert.Equal(t, []string{"node:datadir", "ufw:allow:node"}, plan.Names())
	assert.Equal(t, "Node on port 5000 is up.", plan.Notice())

	steps := plan.Steps()
	assert.True(t, steps[0].Critical)
	assert.False(t, steps[1].Critical)
	assert.Equal(t, 30*time.Second, steps[1].Timeout)

	runner := mocks.NewCommandRunner()
	env := host.NewEnv(runner)
	runner.AddExit([]string{"test", "-d", "/var/lib/node"}, 0)
	assert.True(t, steps[0].Satisfied(context.Background(), env))

	script := `sudo ufw allow 5000/tcp && echo "$HOME ${SHELL}"`
	runner.AddExit([]string{"sh", "-c", script}, 0)
	_, err = steps[1].Apply(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.CallCount("sh", "-c", script))
}

func TestPlanFile_ToPlanUndefinedVar(t *testing.T) {
	t.Parallel()

	pf := &PlanFile{
		Name:  "x",
		Steps: []StepEntry{{Name: "a:b", Run: []string{"mkdir", "${data_dir}", "${other}"}}},
	}
	_, err := pf.ToPlan(nil)
	require.Error(t, err)
	assert.True(t, IsUserError(err, ErrCodePlanInvalid))
	assert.Contains(t, err.Error(), "undefined variable ${data_dir}, ${other}")

	plan, err := pf.ToPlan(map[string]string{"data_dir": "/d", "other": "o"})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Len())
}

func TestPlanFile_ToPlanRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := (&PlanFile{Name: "x"}).ToPlan(nil)
	assert.True(t, IsUserError(err, ErrCodePlanInvalid))
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]Format{
		"a.yaml": FormatYAML,
		"a.YML":  FormatYAML,
		"a.toml": FormatTOML,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := FormatFromPath("plan")
	assert.Error(t, err)
}
