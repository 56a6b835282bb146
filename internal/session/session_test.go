package session

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/floability/internal/lifecycle"
	"github.com/smazurov/floability/internal/process"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testHost = HostInfo{IP: "10.1.2.3", Hostname: "node1", User: "alice"}

func newTestSession(t *testing.T, env Environment) *Session {
	t.Helper()
	s, err := New(Config{
		BaseDir:     t.TempDir(),
		Env:         env,
		GracePeriod: 50 * time.Millisecond,
		ReapTimeout: time.Second,
		Logger:      quietLogger(),
		Host:        testHost,
	})
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestNewCreatesRunDirWithoutRegisteringIt(t *testing.T) {
	s := newTestSession(t, Environment{})

	info, err := os.Stat(s.RunDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(s.RunDir))
	assert.True(t, strings.HasPrefix(filepath.Base(s.RunDir), "floability_run_"))

	assert.Empty(t, s.Registry.Directories())

	assert.Equal(t, filepath.Join(s.RunDir, "floability.log"), s.LogPath())
	assert.Equal(t, testHost, s.Host)
}

func TestNewGeneratesManagerName(t *testing.T) {
	s := newTestSession(t, Environment{})
	assert.True(t, strings.HasPrefix(s.ManagerName, "floability-"))
	assert.Len(t, s.ManagerName, len("floability-")+36)

	named, err := New(Config{BaseDir: t.TempDir(), ManagerName: "mine", Logger: quietLogger(), Host: testHost})
	require.NoError(t, err)
	t.Cleanup(named.Shutdown)
	assert.Equal(t, "mine", named.ManagerName)
}

func TestNewRegistersEnvironmentCleanup(t *testing.T) {
	extracted := t.TempDir()
	s := newTestSession(t, Environment{Prefix: extracted, Cleanup: []string{extracted}})

	dirs := s.Registry.Directories()
	require.Len(t, dirs, 1)
	assert.Equal(t, PurposeEnvironment, dirs[0].Purpose)
	assert.Equal(t, extracted, dirs[0].Path)
}

func TestLaunchDefaultsLogDirAndRegisters(t *testing.T) {
	s := newTestSession(t, Environment{})

	p, err := s.Launch(process.LaunchSpec{
		Role:    process.RoleNotebookServer,
		Name:    "jupyterlab",
		Command: []string{"sh", "-c", "echo started; sleep 10"},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.RunDir, "jupyterlab.stdout"), p.LogPath())
	procs := s.Registry.Processes()
	require.Len(t, procs, 1)
	assert.Equal(t, p.PID(), procs[0].PID())
}

func TestShutdownKeepsRunDirLogs(t *testing.T) {
	extracted := t.TempDir()
	s := newTestSession(t, Environment{Prefix: extracted, Cleanup: []string{extracted}})

	p, err := s.Launch(process.LaunchSpec{
		Role:    process.RoleWorkerFactory,
		Name:    "vine_factory",
		Command: []string{"sh", "-c", "echo factory up; sleep 30"},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(p.LogPath())
		return strings.Contains(string(data), "factory up")
	}, 2*time.Second, 10*time.Millisecond)

	s.Shutdown()

	assert.False(t, p.Alive())
	assert.Equal(t, lifecycle.StateDone, s.Coordinator.State())

	data, err := os.ReadFile(filepath.Join(s.RunDir, "vine_factory.stdout"))
	require.NoError(t, err, "run directory and its logs must survive shutdown")
	assert.Contains(t, string(data), "factory up")

	_, err = os.Stat(extracted)
	assert.True(t, os.IsNotExist(err), "environment directory must be removed")
}

func TestLaunchUsesProcessLogger(t *testing.T) {
	logFile, err := os.Create(filepath.Join(t.TempDir(), "process.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logFile.Close() })

	s, err := New(Config{
		BaseDir:       t.TempDir(),
		Logger:        quietLogger(),
		ProcessLogger: slog.New(slog.NewTextHandler(logFile, nil)).With("module", "process"),
		Host:          testHost,
	})
	require.NoError(t, err)

	p, err := s.Launch(process.LaunchSpec{
		Role:    process.RoleNotebookExecutor,
		Name:    "python_execution",
		Command: []string{"sh", "-c", "exit 0"},
	})
	require.NoError(t, err)
	require.NoError(t, p.Wait(2*time.Second))
	s.Shutdown()

	data, err := os.ReadFile(logFile.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), `msg="Process started"`)
	assert.Contains(t, string(data), "module=process")
}

func TestLaunchMissingExecutable(t *testing.T) {
	s := newTestSession(t, Environment{})

	_, err := s.Launch(process.LaunchSpec{
		Role:    process.RoleWorkerFactory,
		Command: []string{"vine_factory_does_not_exist"},
	})
	assert.ErrorIs(t, err, process.ErrExecutableNotFound)
	assert.Empty(t, s.Registry.Processes())
}

func TestLaunchDuringShutdownKillsProcess(t *testing.T) {
	s := newTestSession(t, Environment{})
	s.Shutdown()

	dir := t.TempDir()
	_, err := s.Launch(process.LaunchSpec{
		Role:    process.RoleNotebookServer,
		Name:    "late",
		Command: []string{"sh", "-c", "sleep 30"},
		LogDir:  dir,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lifecycle.ErrShuttingDown))
}

func TestEnvironmentRunPrefix(t *testing.T) {
	assert.Nil(t, Environment{}.RunPrefix())
	assert.Equal(t,
		[]string{"conda", "run", "--prefix", "/envs/nb", "--no-capture-output"},
		Environment{Prefix: "/envs/nb"}.RunPrefix())

	env := Environment{Prefix: "/envs/nb", Wrapper: []string{"apptainer", "exec", "nb.sif"}}
	prefix := env.RunPrefix()
	assert.Equal(t, []string{"apptainer", "exec", "nb.sif"}, prefix)
	prefix[0] = "changed"
	assert.Equal(t, "apptainer", env.Wrapper[0])
}

func TestCreateUniqueDirRetriesCollisions(t *testing.T) {
	base := t.TempDir()
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	calls := 0
	now := func() time.Time {
		calls++
		if calls <= 2 {
			return fixed
		}
		return fixed.Add(time.Duration(calls) * time.Microsecond)
	}

	first, err := createUniqueDir(base, "floability_run", now, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "floability_run_20240506_070809_123456", filepath.Base(first))

	second, err := createUniqueDir(base, "floability_run", now, quietLogger())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 3, calls)
}

func TestCreateUniqueDirExhausted(t *testing.T) {
	base := t.TempDir()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return fixed }

	_, err := createUniqueDir(base, "floability_run", now, quietLogger())
	require.NoError(t, err)

	_, err = createUniqueDir(base, "floability_run", now, quietLogger())
	assert.ErrorIs(t, err, ErrRunDirExhausted)
}

func TestDetectHostFallbacks(t *testing.T) {
	info := DetectHost()
	assert.NotEmpty(t, info.IP)
	assert.NotEmpty(t, info.User)
}
