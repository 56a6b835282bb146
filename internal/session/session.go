package session

import (
	"errors"
	"log/slog"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/floability/internal/events"
	"github.com/smazurov/floability/internal/lifecycle"
	"github.com/smazurov/floability/internal/process"
)

// LogFileName is the session log written inside the run directory.
const LogFileName = "floability.log"

// PurposeEnvironment tags provisioner directories in the registry. The run
// directory itself is never registered: it keeps the logs after the session.
const PurposeEnvironment = "environment"

// Config describes a session to create.
type Config struct {
	BaseDir     string
	ManagerName string
	Env         Environment

	GracePeriod time.Duration
	ReapTimeout time.Duration
	ForceSignal syscall.Signal

	// ProcessLogger goes to launched processes and defaults to Logger.
	Logger        *slog.Logger
	ProcessLogger *slog.Logger
	Bus           *events.Bus

	// Host overrides host detection. Zero means detect.
	Host HostInfo
}

// Session ties together everything one floability run owns: its run
// directory, its registry of processes and directories and the coordinator
// that reclaims them.
type Session struct {
	RunDir      string
	ManagerName string
	Host        HostInfo
	Env         Environment

	Bus         *events.Bus
	Registry    *lifecycle.Registry
	Coordinator *lifecycle.Coordinator

	reapTimeout time.Duration
	logger      *slog.Logger
	procLogger  *slog.Logger
}

// New creates the run directory and registers the environment's cleanup
// directories for removal at shutdown.
func New(cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "."
	}

	runDir, err := CreateRunDir(cfg.BaseDir, logger)
	if err != nil {
		return nil, err
	}

	host := cfg.Host
	if host == (HostInfo{}) {
		host = DetectHost()
	}

	name := cfg.ManagerName
	if name == "" {
		name = "floability-" + uuid.NewString()
	}

	registry := lifecycle.NewRegistry(cfg.Bus, logger)
	coord := lifecycle.NewCoordinator(registry, lifecycle.Options{
		GracePeriod: cfg.GracePeriod,
		ReapTimeout: cfg.ReapTimeout,
		ForceSignal: cfg.ForceSignal,
		Logger:      logger,
		Bus:         cfg.Bus,
	})

	s := &Session{
		RunDir:      runDir,
		ManagerName: name,
		Host:        host,
		Env:         cfg.Env,
		Bus:         cfg.Bus,
		Registry:    registry,
		Coordinator: coord,
		reapTimeout: cfg.ReapTimeout,
		logger:      logger,
		procLogger:  cfg.ProcessLogger,
	}
	if s.procLogger == nil {
		s.procLogger = logger
	}
	if s.reapTimeout <= 0 {
		s.reapTimeout = lifecycle.DefaultReapTimeout
	}

	for _, dir := range cfg.Env.Cleanup {
		if err := registry.RegisterDirectory(dir, PurposeEnvironment); err != nil {
			return nil, err
		}
	}

	logger.Info("Session created", "run_dir", runDir, "manager_name", name, "host", host.Hostname, "ip", host.IP)
	return s, nil
}

// LogPath returns the path of the session log file.
func (s *Session) LogPath() string {
	return filepath.Join(s.RunDir, LogFileName)
}

// Launch starts spec and registers it for shutdown. Log files default to the
// run directory. A process started while the session is already shutting
// down is killed at once and lifecycle.ErrShuttingDown is returned.
func (s *Session) Launch(spec process.LaunchSpec) (*process.Process, error) {
	if spec.LogDir == "" {
		spec.LogDir = s.RunDir
	}

	p, err := process.Launch(spec, s.procLogger)
	if err != nil {
		return nil, err
	}

	if err := s.Registry.RegisterProcess(p); err != nil {
		if errors.Is(err, lifecycle.ErrShuttingDown) {
			s.logger.Warn("Killing process started during shutdown", "role", spec.Role, "pid", p.PID())
			_ = p.SignalGroup(syscall.SIGKILL)
			_ = p.Wait(s.reapTimeout)
		}
		return nil, err
	}
	return p, nil
}

// Shutdown runs the coordinator and waits for it to finish, whether this
// call or an earlier one started the pass.
func (s *Session) Shutdown() {
	s.Coordinator.Shutdown()
	<-s.Coordinator.Done()
}
