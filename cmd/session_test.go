package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// stubBin creates executables named after the keys of scripts in a fresh
// directory and puts only that directory (plus the system dirs) on PATH.
func stubBin(t *testing.T, scripts map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range scripts {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	}
	t.Setenv("PATH", dir+":/usr/bin:/bin")
}

func newTestCommand(t *testing.T, args ...string) (*cobra.Command, *SessionOptions, *syncBuffer) {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	opts := &SessionOptions{}
	bindSessionFlags(c, opts)

	base := append([]string{
		"--config", filepath.Join(t.TempDir(), "absent.toml"),
		"--grace-period", "100ms",
		"--reap-timeout", "1s",
		"--poll-interval", "50ms",
		"--monitor-poll-interval", "20ms",
	}, args...)
	require.NoError(t, c.Flags().Parse(base))

	out := &syncBuffer{}
	c.SetOut(out)
	c.SetErr(out)
	c.SetContext(context.Background())
	return c, opts, out
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

// runDir returns the single run directory created under baseDir.
func runDir(t *testing.T, baseDir string) string {
	t.Helper()
	names := entries(t, baseDir)
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], "floability_run_"))
	return filepath.Join(baseDir, names[0])
}

func TestExecutePythonScriptKeepsRunDirLogs(t *testing.T) {
	work := t.TempDir()
	marker := filepath.Join(work, "ran")
	script := filepath.Join(work, "job.py")
	require.NoError(t, os.WriteFile(script, nil, 0o644))

	stubBin(t, map[string]string{
		"python": `pwd > "` + marker + `"; echo "running $1"`,
	})

	baseDir := t.TempDir()
	c, opts, _ := newTestCommand(t, "--no-worker", "--python-script", script, "--base-dir", baseDir)

	code := runSession(c, opts, modeExecute)

	assert.Equal(t, 0, code)
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, work+"\n", string(data), "script runs in its own directory")

	dir := runDir(t, baseDir)
	out, err := os.ReadFile(filepath.Join(dir, "python_execution.stdout"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "running job.py")
	_, err = os.Stat(filepath.Join(dir, "floability.log"))
	assert.NoError(t, err, "session log must survive the session")
}

func TestExecuteFailureLogSurvives(t *testing.T) {
	work := t.TempDir()
	script := filepath.Join(work, "job.py")
	require.NoError(t, os.WriteFile(script, nil, 0o644))

	stubBin(t, map[string]string{
		"python": `echo "Traceback (most recent call last):"; echo "ZeroDivisionError: division by zero"; exit 3`,
	})

	baseDir := t.TempDir()
	c, opts, _ := newTestCommand(t, "--no-worker", "--python-script", script, "--base-dir", baseDir)

	assert.Equal(t, 0, runSession(c, opts, modeExecute))

	out, err := os.ReadFile(filepath.Join(runDir(t, baseDir), "python_execution.stdout"))
	require.NoError(t, err, "the log named in the failure message must still exist")
	assert.Contains(t, string(out), "ZeroDivisionError")
}

func TestExecuteWithRunPrefix(t *testing.T) {
	work := t.TempDir()
	marker := filepath.Join(work, "wrapped")
	script := filepath.Join(work, "job.py")
	require.NoError(t, os.WriteFile(script, nil, 0o644))

	stubBin(t, map[string]string{
		"python": `echo "$FLOABILITY_WRAPPED" > "` + marker + `"`,
	})

	baseDir := t.TempDir()
	c, opts, _ := newTestCommand(t,
		"--no-worker",
		"--python-script", script,
		"--base-dir", baseDir,
		"--env-prefix", "/envs/ignored",
		"--run-prefix", `env "FLOABILITY_WRAPPED=yes please"`,
	)

	assert.Equal(t, 0, runSession(c, opts, modeExecute))
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "yes please\n", string(data))
}

func TestExecuteInvalidRunPrefix(t *testing.T) {
	baseDir := t.TempDir()
	c, opts, _ := newTestCommand(t, "--no-worker", "--python-script", "job.py",
		"--base-dir", baseDir, "--run-prefix", `env "unterminated`)

	assert.Equal(t, 1, runSession(c, opts, modeExecute))
	assert.Empty(t, entries(t, baseDir))
}

func TestExecuteWithoutWorkload(t *testing.T) {
	baseDir := t.TempDir()
	c, opts, _ := newTestCommand(t, "--no-worker", "--base-dir", baseDir)

	assert.Equal(t, 1, runSession(c, opts, modeExecute))
	assert.Empty(t, entries(t, baseDir))
}

func TestRunMissingFactoryExitsAfterCleanup(t *testing.T) {
	stubBin(t, map[string]string{})

	baseDir := t.TempDir()
	cleanupDir := t.TempDir()
	c, opts, _ := newTestCommand(t, "--base-dir", baseDir, "--env-cleanup", cleanupDir)

	assert.Equal(t, 1, runSession(c, opts, modeRun))
	_, err := os.Stat(cleanupDir)
	assert.True(t, os.IsNotExist(err), "registered directories must be removed on a fatal launch error")

	data, err := os.ReadFile(filepath.Join(runDir(t, baseDir), "floability.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Executable not found")
}

func TestRunInvalidBatchType(t *testing.T) {
	baseDir := t.TempDir()
	c, opts, _ := newTestCommand(t, "--base-dir", baseDir, "--batch-type", "pbs")

	assert.Equal(t, 1, runSession(c, opts, modeRun))
	assert.Empty(t, entries(t, baseDir))
}

func TestRunEndsWhenFactoryExits(t *testing.T) {
	stubBin(t, map[string]string{
		"vine_factory": `echo "factory $*"; sleep 1`,
		"jupyter":      `echo "[I ServerApp] http://127.0.0.1:8899/lab?token=cafe01"; exec sleep 30`,
	})

	baseDir := t.TempDir()
	cleanupDir := t.TempDir()
	c, opts, out := newTestCommand(t,
		"--base-dir", baseDir,
		"--manager-name", "floability-test",
		"--env-cleanup", cleanupDir,
	)

	code := runSession(c, opts, modeRun)

	assert.Equal(t, 0, code)
	dir := runDir(t, baseDir)
	for _, name := range []string{"vine_factory.stdout", "jupyterlab.stdout", "floability.log"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(cleanupDir)
	assert.True(t, os.IsNotExist(err), "environment cleanup directory must be removed")
	assert.Contains(t, out.String(), "http://localhost:8899/lab/?token=cafe01")
}

func TestParseSignals(t *testing.T) {
	set, err := parseSignals(&SessionOptions{ForceSignal: "SIGKILL", FactoryStop: "term"})
	require.NoError(t, err)
	assert.EqualValues(t, 9, set.force)
	assert.EqualValues(t, 15, set.factory)
	assert.Zero(t, set.notebook)

	_, err = parseSignals(&SessionOptions{NotebookStop: "SIGBOGUS"})
	assert.Error(t, err)
}
