package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrExecutableNotFound is returned by Launch when the command (or its
	// wrapping prefix) cannot be resolved. Callers treat it as fatal.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrWaitTimeout is returned by Wait when the process outlives the timeout.
	ErrWaitTimeout = errors.New("timed out waiting for process to exit")

	// ErrEmptyCommand is returned by Launch when no argv was given.
	ErrEmptyCommand = errors.New("empty command")
)

// LaunchSpec describes one external program to start.
type LaunchSpec struct {
	Role Role

	// Name is the log file stem; "<LogDir>/<Name>.stdout". Defaults to the
	// base name of the first Command element.
	Name string

	Command []string

	// Prefix wraps Command, e.g. conda run --prefix <env> --no-capture-output.
	Prefix []string

	WorkDir string
	LogDir  string

	// Env is appended to the supervisor's own environment.
	Env []string

	// StopSignal is the cooperative signal delivered in the first shutdown
	// phase. Zero means SIGINT.
	StopSignal syscall.Signal
}

func (s LaunchSpec) argv() []string {
	argv := make([]string, 0, len(s.Prefix)+len(s.Command))
	argv = append(argv, s.Prefix...)
	return append(argv, s.Command...)
}

func (s LaunchSpec) logName() string {
	if s.Name != "" {
		return s.Name
	}
	if len(s.Command) > 0 {
		return filepath.Base(s.Command[0])
	}
	return string(s.Role)
}

// Process is a handle on a launched program. It leads its own process group,
// so a signal sent through SignalGroup reaches every child it spawned.
type Process struct {
	role       Role
	cmd        *exec.Cmd
	pid        int
	pgid       int
	logPath    string
	command    string
	stopSignal syscall.Signal
	startedAt  time.Time
	logger     *slog.Logger

	done     chan struct{}
	exitErr  error // written before done is closed
	exitedAt time.Time
}

// Launch starts spec as the leader of a new process group with stdout and
// stderr redirected to a log file inside spec.LogDir. A background goroutine
// reaps the child, so the returned handle never leaves a zombie behind.
func Launch(spec LaunchSpec, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}

	argv := spec.argv()
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		logger.Error("Executable not found", "role", spec.Role, "executable", argv[0])
		return nil, fmt.Errorf("%w: %s: %w", ErrExecutableNotFound, argv[0], err)
	}

	if mkErr := os.MkdirAll(spec.LogDir, 0o755); mkErr != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", mkErr)
	}

	logPath := filepath.Join(spec.LogDir, spec.logName()+".stdout")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	command := strings.Join(argv, " ")
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		logger.Error("Failed to start process", "role", spec.Role, "error", err, "command", command)
		return nil, fmt.Errorf("failed to start %s: %w", spec.Role, err)
	}

	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// Setpgid makes the child its own group leader.
		pgid = pid
	}

	stopSignal := spec.StopSignal
	if stopSignal == 0 {
		stopSignal = syscall.SIGINT
	}

	p := &Process{
		role:       spec.Role,
		cmd:        cmd,
		pid:        pid,
		pgid:       pgid,
		logPath:    logPath,
		command:    command,
		stopSignal: stopSignal,
		startedAt:  time.Now(),
		logger:     logger,
		done:       make(chan struct{}),
	}

	logger.Info("Process started",
		"role", p.role, "pid", pid, "pgid", pgid, "log", logPath, "command", command)

	go p.reap(logFile)

	return p, nil
}

// reap waits for the child, records how it ended and releases the log file.
func (p *Process) reap(logFile *os.File) {
	err := p.cmd.Wait()
	_ = logFile.Close()

	p.exitErr = err
	p.exitedAt = time.Now()
	close(p.done)

	p.logger.Info("Process exited",
		"role", p.role, "pid", p.pid, "exit_code", exitCodeFromError(err),
		"uptime", p.exitedAt.Sub(p.startedAt).Round(time.Millisecond))
}

// PID returns the process id.
func (p *Process) PID() int { return p.pid }

// PGID returns the process group id. Equal to PID for launched processes.
func (p *Process) PGID() int { return p.pgid }

// Role returns the role tag given at launch.
func (p *Process) Role() Role { return p.role }

// LogPath returns the file receiving the process's stdout and stderr.
func (p *Process) LogPath() string { return p.logPath }

// StopSignal returns the cooperative signal for the first shutdown phase.
func (p *Process) StopSignal() syscall.Signal { return p.stopSignal }

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Alive reports whether the process is still running. It never blocks.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code, 128+N for death by signal N, or -1 while
// the process is still running.
func (p *Process) ExitCode() int {
	if p.Alive() {
		return -1
	}
	return exitCodeFromError(p.exitErr)
}

// Wait blocks until the process exits or timeout elapses.
func (p *Process) Wait(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: pid %d after %s", ErrWaitTimeout, p.pid, timeout)
	}
}

// SignalGroup delivers sig to every process in the group.
func (p *Process) SignalGroup(sig syscall.Signal) error {
	return SignalGroup(p.pgid, sig)
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	info := Info{
		Role:      p.role,
		PID:       p.pid,
		PGID:      p.pgid,
		LogPath:   p.logPath,
		Command:   p.command,
		State:     StateRunning,
		StartedAt: p.startedAt,
		ExitCode:  -1,
	}
	if !p.Alive() {
		info.State = StateExited
		info.ExitCode = exitCodeFromError(p.exitErr)
		info.ExitedAt = p.exitedAt
	}
	return info
}

// SignalGroup sends sig to the process group pgid.
func SignalGroup(pgid int, sig syscall.Signal) error {
	// kill(-1) and kill(0) would hit far more than one managed group.
	if pgid <= 1 {
		return fmt.Errorf("refusing to signal process group %d", pgid)
	}
	if err := unix.Kill(-pgid, sig); err != nil {
		return fmt.Errorf("failed to send %s to process group %d: %w", SignalName(sig), pgid, err)
	}
	return nil
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, 128+signal for a signal death, the exit code for
// other ExitErrors, or 1 for anything else.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
