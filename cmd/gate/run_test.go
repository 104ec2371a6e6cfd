package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deixis/gate/internal/config"
	"github.com/deixis/gate/internal/report"
)

// sh is a custom step running script under /bin/sh.
func sh(name, script string) config.StepConfig {
	return config.StepConfig{Name: name, Program: "sh", Args: []string{"-c", script}}
}

// useGate points the command globals at a repository in a temp dir
// whose plan is steps, and restores them on cleanup.
func useGate(t *testing.T, steps ...config.StepConfig) string {
	t.Helper()
	root := t.TempDir()
	loaded = &config.LoadResult{Config: &config.Config{Steps: steps}, RepoRoot: root}
	logger = zap.NewNop()
	t.Cleanup(func() {
		loaded, logger = nil, zap.NewNop()
		apply, modeFlag, jsonOut, reportDir, timeout = false, "", false, "", 0
	})
	t.Chdir(root)
	return root
}

// runOnce invokes the run command and returns what it wrote to stdout.
func runOnce(t *testing.T) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	err := runGate(cmd, nil)
	return out.String(), err
}

func requireExit(t *testing.T, err error, code int) {
	t.Helper()
	var ee *exitError
	require.True(t, errors.As(err, &ee), "want *exitError, got %v", err)
	assert.Equal(t, code, ee.code)
	assert.Equal(t, code, exitCode(err))
}

func TestRunGate_AllPass(t *testing.T) {
	root := useGate(t, sh("a", "exit 0"), sh("b", "touch b"))

	_, err := runOnce(t)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "b"))
}

func TestRunGate_FirstFailureIsExitCode(t *testing.T) {
	root := useGate(t,
		sh("build", "exit 0"),
		sh("test", "exit 2"),
		sh("lint", "touch lint-ran"),
	)

	_, err := runOnce(t)
	requireExit(t, err, 2)
	assert.NoFileExists(t, filepath.Join(root, "lint-ran"))
}

func TestRunGate_MissingProgram(t *testing.T) {
	root := useGate(t,
		sh("build", "exit 0"),
		config.StepConfig{Name: "lint", Program: "gate-no-such-program"},
		sh("after", "touch after"),
	)

	_, err := runOnce(t)
	requireExit(t, err, 127)
	assert.NoFileExists(t, filepath.Join(root, "after"))
}

func TestRunGate_RunsInCallerDirectory(t *testing.T) {
	root := useGate(t, sh("here", "touch here"))
	sub := filepath.Join(root, "crates", "core")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	_, err := runOnce(t)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(sub, "here"))
	assert.NoFileExists(t, filepath.Join(root, "here"))
}

func TestRunGate_RelativeProgramFromSubdirectory(t *testing.T) {
	root := useGate(t, config.StepConfig{Name: "script", Program: "./check.sh"})
	sub := filepath.Join(root, "tools")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "check.sh"), []byte("#!/bin/sh\nexit 3\n"), 0o755))
	t.Chdir(sub)

	_, err := runOnce(t)
	requireExit(t, err, 3)
}

func TestRunGate_JSON(t *testing.T) {
	useGate(t, sh("build", "echo compiled"), sh("test", "echo failing >&2; exit 1"))
	jsonOut = true

	out, err := runOnce(t)
	requireExit(t, err, 1)

	var rr report.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &rr))
	require.Len(t, rr.Steps, 2)
	assert.Equal(t, 1, rr.FailedIdx)
	assert.Equal(t, report.Pass, rr.Steps[0].Status)
	assert.Contains(t, rr.Steps[0].Output, "compiled")
	assert.Contains(t, rr.Steps[1].Output, "failing")
}

func TestRunGate_SavesReport(t *testing.T) {
	useGate(t, sh("build", "echo compiled"))
	reportDir = filepath.Join(t.TempDir(), "runs")

	_, err := runOnce(t)
	require.NoError(t, err)

	ids, err := report.NewDiskStore(reportDir).List()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	rr, err := report.NewDiskStore(reportDir).Load(ids[0])
	require.NoError(t, err)
	assert.True(t, rr.Passed())
	assert.Contains(t, rr.Steps[0].Output, "compiled")
}

func TestCaptureLimit(t *testing.T) {
	useGate(t)
	loaded.Config.RawMaxOutput = 4096

	assert.Zero(t, captureLimit(""), "nothing reads the output back")
	assert.Equal(t, 4096, captureLimit("/tmp/runs"))

	jsonOut = true
	assert.Equal(t, 4096, captureLimit(""))
}
