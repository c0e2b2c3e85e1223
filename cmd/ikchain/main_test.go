package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ikchain/pkg/chain"
	"ikchain/pkg/errors"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ikchain.cfg")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestSolveJSON(t *testing.T) {
	out, err := execute(t, "", "solve", "--angles", "-0.5,-0.4", "--format", "json")
	require.NoError(t, err)

	var snap chain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, 2, snap.Links)
	assert.Equal(t, []float64{-0.5, -0.4}, snap.GroundTruthAngles)
	require.NotNil(t, snap.LastSummary)
	assert.True(t, snap.LastSummary.Converged())
	assert.Less(t, snap.MaxDeviation, 1e-5)
}

func TestSolveYAMLFollowsAngleCount(t *testing.T) {
	out, err := execute(t, "", "solve", "-a", "-0.8,-0.9,-1.0")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report["links"])
	summary, ok := report["last_summary"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, []any{"cost_too_small", "gradient_too_small", "relative_step_too_small"}, summary["status"])
	assert.Contains(t, out, "ground_truth_positions:")
}

func TestSolveFromConfig(t *testing.T) {
	path := writeConfig(t, `
[chain]
links: 2
ground_truth: 0.2, -0.3
restart_cost: 0

[solver]
max_iterations: 1
`)
	_, err := execute(t, "", "solve", "--config", path, "--format", "json")
	require.NoError(t, err)

	_, err = execute(t, "", "solve", "--config", path, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hit_max_iterations")

	_, err = execute(t, "", "solve", "--config", path, "--angles", "1,2,3")
	assert.True(t, errors.Is(err, errors.ErrChainInvalid))
}

func TestSolveErrors(t *testing.T) {
	_, err := execute(t, "", "solve", "--format", "xml")
	assert.True(t, errors.Is(err, errors.ErrConfigValidation))

	_, err = execute(t, "", "solve", "--config", filepath.Join(t.TempDir(), "missing.cfg"))
	assert.Error(t, err)

	bad := writeConfig(t, "[chain]\nlinks: 0\n")
	_, err = execute(t, "", "solve", "--config", bad)
	assert.True(t, errors.IsConfig(err))
}

func TestRunScript(t *testing.T) {
	script := strings.Join([]string{
		"# comment",
		"increase",
		"set -0.5, -0.4",
		"solve",
		"show",
		"set 1",
		"bogus",
		"quit",
		"increase",
	}, "\n")
	out, err := execute(t, script, "run")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "ground truth [0.0500, 0.1000]", lines[0])
	assert.Equal(t, "ground truth [-0.5000, -0.4000]", lines[1])
	assert.Contains(t, lines[2], "recovered [-0.5000, -0.4000]")
	assert.True(t, strings.HasPrefix(lines[3], "ground truth: [-0.5000, -0.4000]"))
	assert.True(t, strings.HasPrefix(lines[4], "recovered:    [-0.5000, -0.4000]"))
	assert.True(t, strings.HasPrefix(lines[5], "last solve:"))
	assert.Contains(t, lines[6], "expected 2 angles")
	assert.Equal(t, `error: unknown command "bogus"`, lines[7])
}

func TestRunExitCodes(t *testing.T) {
	assert.Equal(t, 0, run([]string{"solve", "--angles", "0.1,0.2", "--log-level", "error"}))
	assert.Equal(t, 1, run([]string{"solve", "--format", "xml"}))
	assert.Equal(t, 1, run([]string{"no-such-command"}))
}
