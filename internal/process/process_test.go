package process

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// launchShell starts script under sh -c in a temp log dir.
func launchShell(t *testing.T, script string) *Process {
	t.Helper()
	p, err := Launch(LaunchSpec{
		Role:    RoleWorkerFactory,
		Name:    "test",
		Command: []string{"sh", "-c", script},
		LogDir:  t.TempDir(),
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if p.Alive() {
			_ = p.SignalGroup(syscall.SIGKILL)
			_ = p.Wait(time.Second)
		}
	})
	return p
}

// waitForFile polls until path contains want or timeout elapses.
func waitForFile(t *testing.T, path, want string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		data, _ := os.ReadFile(path)
		if strings.Contains(string(data), want) {
			return string(data)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %q in %s, got %q", want, path, data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLaunchRedirectsOutputToLogFile(t *testing.T) {
	p := launchShell(t, `echo to-stdout; echo to-stderr 1>&2`)

	require.NoError(t, p.Wait(2*time.Second))
	assert.Equal(t, "test.stdout", filepath.Base(p.LogPath()))

	data, err := os.ReadFile(p.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "to-stdout")
	assert.Contains(t, string(data), "to-stderr")
}

func TestLaunchCreatesNewProcessGroup(t *testing.T) {
	p := launchShell(t, `sleep 10`)

	assert.Equal(t, p.PID(), p.PGID())
	assert.NotEqual(t, syscall.Getpgrp(), p.PGID())
}

func TestLaunchExecutableNotFound(t *testing.T) {
	_, err := Launch(LaunchSpec{
		Role:    RoleNotebookServer,
		Command: []string{"definitely-not-a-real-binary-floability"},
		LogDir:  t.TempDir(),
	}, testLogger())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecutableNotFound))
}

func TestLaunchPrefixNotFound(t *testing.T) {
	_, err := Launch(LaunchSpec{
		Role:    RoleNotebookServer,
		Command: []string{"sh", "-c", "true"},
		Prefix:  []string{"/nonexistent/conda", "run"},
		LogDir:  t.TempDir(),
	}, testLogger())

	assert.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestLaunchEmptyCommand(t *testing.T) {
	_, err := Launch(LaunchSpec{LogDir: t.TempDir()}, testLogger())
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestLaunchPrefixWrapsCommand(t *testing.T) {
	dir := t.TempDir()
	p, err := Launch(LaunchSpec{
		Role:    RoleNotebookServer,
		Name:    "wrapped",
		Prefix:  []string{"env", "FLOABILITY_WRAPPED=yes"},
		Command: []string{"sh", "-c", `echo "wrapped=$FLOABILITY_WRAPPED"`},
		LogDir:  dir,
	}, testLogger())
	require.NoError(t, err)
	require.NoError(t, p.Wait(2*time.Second))

	data, err := os.ReadFile(filepath.Join(dir, "wrapped.stdout"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "wrapped=yes")
}

func TestAliveAndExitCode(t *testing.T) {
	p := launchShell(t, `exit 42`)

	require.NoError(t, p.Wait(2*time.Second))
	assert.False(t, p.Alive())
	assert.Equal(t, 42, p.ExitCode())

	info := p.Info()
	assert.Equal(t, StateExited, info.State)
	assert.Equal(t, 42, info.ExitCode)
}

func TestWaitTimeout(t *testing.T) {
	p := launchShell(t, `sleep 10`)

	err := p.Wait(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.True(t, p.Alive())
	assert.Equal(t, -1, p.ExitCode())
}

func TestSignalGroupReachesChildren(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "child-interrupted")
	pidFile := filepath.Join(dir, "child.pid")

	// The leader runs a child shell that records SIGINT before exiting.
	script := `trap 'echo leader-interrupted' INT
sh -c 'trap "touch ` + marker + `; exit 0" INT; echo $$ > ` + pidFile + `; while :; do sleep 0.1; done'`
	p := launchShell(t, script)

	waitForFile(t, pidFile, "\n", 2*time.Second)

	require.NoError(t, p.SignalGroup(syscall.SIGINT))
	require.NoError(t, p.Wait(3*time.Second))

	_, err := os.Stat(marker)
	assert.NoError(t, err, "child process should have received SIGINT")
}

func TestSignalGroupAfterExit(t *testing.T) {
	p := launchShell(t, `true`)
	require.NoError(t, p.Wait(2*time.Second))

	err := p.SignalGroup(syscall.SIGINT)
	assert.ErrorIs(t, err, syscall.ESRCH)
}

func TestSignalGroupRefusesSpecialGroups(t *testing.T) {
	assert.Error(t, SignalGroup(0, syscall.SIGTERM))
	assert.Error(t, SignalGroup(1, syscall.SIGTERM))
}

func TestExitCodeForSignalDeath(t *testing.T) {
	p := launchShell(t, `sleep 10`)
	require.NoError(t, p.SignalGroup(syscall.SIGTERM))
	require.NoError(t, p.Wait(2*time.Second))

	assert.Equal(t, 128+int(syscall.SIGTERM), p.ExitCode())
}

func TestDefaultStopSignal(t *testing.T) {
	p := launchShell(t, `true`)
	assert.Equal(t, syscall.SIGINT, p.StopSignal())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{`conda run --prefix /tmp/env --no-capture-output`, []string{"conda", "run", "--prefix", "/tmp/env", "--no-capture-output"}},
		{`echo hello\ world`, []string{"echo", "hello world"}},
		{`sh -c "echo 'inner quoted'"`, []string{"sh", "-c", "echo 'inner quoted'"}},
		{"  spaced\targs  ", []string{"spaced", "args"}},
		{``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandUnclosedQuote(t *testing.T) {
	_, err := ParseCommand(`echo "unclosed`)
	assert.Error(t, err)
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		input string
		want  syscall.Signal
	}{
		{"SIGINT", syscall.SIGINT},
		{"int", syscall.SIGINT},
		{"term", syscall.SIGTERM},
		{"SIGKILL", syscall.SIGKILL},
		{strconv.Itoa(int(syscall.SIGHUP)), syscall.SIGHUP},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSignal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSignal("SIGNOPE")
	assert.Error(t, err)
	_, err = ParseSignal("")
	assert.Error(t, err)
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", SignalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", SignalName(syscall.SIGTERM))
}
