package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../../testdata/scenarios"

const permissiveScenario = `name: qualify_single_table
description: A bare column with one source table is qualified.
permissive: true
steps:
  - query: SELECT col FROM t1
    expect:
      verdict: accepted
      resolutions:
        col: t1.col
`

func runScenarioCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewScenarioCommand(&RootOptions{Format: format})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"run"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeScenario(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestScenarioRun_Directory(t *testing.T) {
	out, err := runScenarioCmd(t, "text", scenariosDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ sakila_policy")
	assert.Contains(t, out, "✓ alias_semantics")
	assert.Contains(t, out, "Scenario Summary: 6 passed, 0 failed, 6 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestScenarioRun_Filter(t *testing.T) {
	out, err := runScenarioCmd(t, "json", scenariosDir, "--filter", "alias_*")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
}

func TestScenarioRun_InvalidFilter(t *testing.T) {
	_, err := runScenarioCmd(t, "text", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioRun_SingleFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "qualify.yaml", permissiveScenario)

	out, err := runScenarioCmd(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ qualify_single_table")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioRun_Failure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong.yaml", `name: wrong_expectation
description: Expects a rejection for a valid query.
permissive: true
steps:
  - query: SELECT t1.col FROM t1
    expect:
      verdict: rejected
      code: ILLEGAL_TABLE
`)

	out, err := runScenarioCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestScenarioRun_LoadFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, err := runScenarioCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestScenarioRun_PathNotFound(t *testing.T) {
	_, err := runScenarioCmd(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestScenarioRun_EmptyDirectory(t *testing.T) {
	out, err := runScenarioCmd(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestScenarioRun_Golden(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "qualify.yaml", permissiveScenario)
	golden := goldenFilePath(path)
	assert.Equal(t, filepath.Join(dir, "golden", "qualify.golden"), golden)

	_, err := runScenarioCmd(t, "text", dir, "--update")
	require.NoError(t, err)

	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"qualify_single_table"`)
	assert.Contains(t, string(data), `"columns":["t1.col"]`)

	_, err = runScenarioCmd(t, "text", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"stale"}`), 0644))
	out, err := runScenarioCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}
