package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treestore/internal/harness"
)

func testScenariosDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join("..", "..", "testdata", "scenarios")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skip("testdata/scenarios directory not found")
	}
	return dir
}

// copyScenario copies an example scenario into dir, without its golden file.
func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testScenariosDir(t), name+".yaml"))
	require.NoError(t, err)
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text", "only-one")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}

func TestTestCommandNonExistentSpecsDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/specs", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "specs directory not found")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, "text", t.TempDir(), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir(), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := executeTest(t, "json", t.TempDir(), t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.NotNil(t, resp.Data.Scenarios)
}

func TestTestCommandExampleScenarios(t *testing.T) {
	out, err := executeTest(t, "text", testSpecsDir(t), testScenariosDir(t))
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ todos_login")
	assert.Contains(t, out, "✓ counter_errors")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandExampleScenariosJSON(t *testing.T) {
	out, err := executeTest(t, "json", testSpecsDir(t), testScenariosDir(t), "--filter", "todos*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "todos_login", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	scenarioFile := copyScenario(t, dir, "counter_errors")

	out, err := executeTest(t, "text", testSpecsDir(t), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter_errors (golden updated)")

	written, err := os.ReadFile(harness.GoldenPath(scenarioFile))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(testScenariosDir(t), "golden", "counter_errors.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(bytes.TrimSpace(want)), string(written))

	out, err = executeTest(t, "text", testSpecsDir(t), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter_errors")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	scenarioFile := copyScenario(t, dir, "todos_login")
	goldenPath := harness.GoldenPath(scenarioFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0755))
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"stale":true}`), 0644))

	out, err := executeTest(t, "text", testSpecsDir(t), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ todos_login")
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandAssertionFailure(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong_count
description: "asserts a count the store never reaches"
specs: [counter.cue]
store: counter
steps:
  - dispatch: inc
assertions:
  - type: final_state
    path: count
    expect: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_count.yaml"), []byte(scenario), 0644))

	out, err := executeTest(t, "json", testSpecsDir(t), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Error  CLIError   `json:"error"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0644))

	out, err := executeTest(t, "text", testSpecsDir(t), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestHelpText(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{})
	assert.Equal(t, "test <specs-dir> <scenarios-dir>", cmd.Use)
	assert.Contains(t, cmd.Long, "golden/<name>.golden")
	assert.Contains(t, cmd.Long, "Exit codes:")
}
