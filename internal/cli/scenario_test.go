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

const harnessScenarios = "../harness/testdata/scenarios"

func runScenarioCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"scenario"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestScenarioCommand_Directory(t *testing.T) {
	out, err := runScenarioCmd(t, harnessScenarios)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ echo_suppressed")
	assert.Contains(t, out, "✓ absent_remote")
	assert.Contains(t, out, "0 failed")
	// reports are only printed for a single file unless verbose
	assert.NotContains(t, out, "trace:")
}

func TestScenarioCommand_VerboseNamesEachFile(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--verbose", "scenario", harnessScenarios, "--filter", "echo_*"})
	require.NoError(t, cmd.Execute(), out.String())

	assert.Contains(t, errOut.String(), "running "+filepath.Join(harnessScenarios, "echo_suppressed.yaml"))
	assert.NotContains(t, out.String(), "running ")
	assert.Contains(t, out.String(), "trace:")
}

func TestScenarioCommand_SingleFilePrintsReport(t *testing.T) {
	out, err := runScenarioCmd(t, filepath.Join(harnessScenarios, "echo_suppressed.yaml"))
	require.NoError(t, err, out)

	golden, err := os.ReadFile("../harness/testdata/golden/echo_suppressed.golden")
	require.NoError(t, err)
	assert.Contains(t, out, string(golden))
}

func TestScenarioCommand_Filter(t *testing.T) {
	out, err := runScenarioCmd(t, harnessScenarios, "--filter", "echo_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioCommand_FailingScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0755))
	writeFile(t, dir, "wrong.yaml", `
name: wrong_order
description: Expects the wrong order.
items:
  - {id: a, key: Apple, state: pending}
  - {id: b, key: Banana, state: pending}
steps:
  - settle: true
expect:
  order:
    L1: [Banana, Apple]
`)

	out, err := runScenarioCmd(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_order")
	assert.Contains(t, out, "Assertion failed: order")
}

func TestScenarioCommand_UpdateThenCompareGolden(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0755))
	src, err := os.ReadFile(filepath.Join(harnessScenarios, "absent_remote.yaml"))
	require.NoError(t, err)
	writeFile(t, dir, "absent_remote.yaml", string(src))

	_, err = runScenarioCmd(t, dir, "--update")
	require.NoError(t, err)

	goldenPath := filepath.Join(root, "golden", "absent_remote.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), "scenario: absent_remote")

	_, err = runScenarioCmd(t, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte("stale\n"), 0644))
	out, err := runScenarioCmd(t, dir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestScenarioCommand_JSON(t *testing.T) {
	out, err := runScenarioCmd(t, "--format", "json", harnessScenarios, "--filter", "absent_*")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "absent_remote", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestScenarioCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "typo.yaml", "name: typo\ndescription: d\nitems: []\nstepz: []\n")

	out, err := runScenarioCmd(t, path)
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
}

func TestScenarioCommand_MissingPath(t *testing.T) {
	_, err := runScenarioCmd(t, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("testdata", "golden", "x.golden"),
		goldenFilePath(filepath.Join("testdata", "scenarios", "x.yaml"), "x"))
}
