// Package supervisor runs the session's main loop: it watches the managed
// processes until the critical one exits or the session is interrupted, then
// hands over to the lifecycle coordinator.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/floability/internal/events"
	"github.com/smazurov/floability/internal/lifecycle"
	"github.com/smazurov/floability/internal/process"
	"github.com/smazurov/floability/internal/systemd"
)

// DefaultPollInterval is how often process liveness is checked.
const DefaultPollInterval = 5 * time.Second

// Reason explains why Run returned.
type Reason string

// Run outcomes.
const (
	// ReasonCriticalExit means a critical process exited on its own.
	ReasonCriticalExit Reason = "critical_exit"
	// ReasonInterrupted means ctx was cancelled or shutdown was started elsewhere.
	ReasonInterrupted Reason = "interrupted"
)

// State of the loop.
type State string

// Loop states.
const (
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateStopped      State = "stopped"
)

// Options configures a Supervisor. Zero values take the defaults.
type Options struct {
	PollInterval time.Duration

	// Critical roles end the session when their process exits.
	// Default is the worker factory.
	Critical []process.Role

	Logger   *slog.Logger
	Bus      *events.Bus
	Notifier *systemd.Notifier
}

// Supervisor polls the processes of a lifecycle registry.
type Supervisor struct {
	coord    *lifecycle.Coordinator
	poll     time.Duration
	critical []process.Role
	logger   *slog.Logger
	bus      *events.Bus
	notifier *systemd.Notifier

	mu    sync.Mutex
	state State
}

// New creates a supervisor driving coord.
func New(coord *lifecycle.Coordinator, opts Options) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if len(opts.Critical) == 0 {
		opts.Critical = []process.Role{process.RoleWorkerFactory}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{
		coord:    coord,
		poll:     opts.PollInterval,
		critical: opts.Critical,
		logger:   opts.Logger,
		bus:      opts.Bus,
		notifier: opts.Notifier,
		state:    StateRunning,
	}
}

// State returns the loop state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run blocks until a critical process exits, ctx is cancelled or another
// caller starts the shutdown. In every case it makes sure the coordinator's
// shutdown pass has completed before returning.
func (s *Supervisor) Run(ctx context.Context) Reason {
	s.notifier.Ready()
	s.logger.Info("Supervising session", "poll_interval", s.poll)

	reported := make(map[lifecycle.ManagedProcess]bool)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	reason := ReasonInterrupted
loop:
	for {
		// Processes die on purpose once shutdown has begun.
		select {
		case <-s.coord.Stopping():
			break loop
		default:
		}

		if s.check(reported) {
			reason = ReasonCriticalExit
			break
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Session interrupted")
			break loop
		case <-s.coord.Stopping():
			s.logger.Debug("Shutdown started elsewhere")
			break loop
		case <-ticker.C:
		}
	}

	s.setState(StateShuttingDown)
	s.notifier.Stopping()

	if !s.coord.Shutdown() {
		<-s.coord.Done()
	}

	s.setState(StateStopped)
	s.logger.Info("Supervisor stopped", "reason", reason)
	return reason
}

// check reports whether a critical process has exited. Non-critical exits are
// logged once and otherwise ignored.
func (s *Supervisor) check(reported map[lifecycle.ManagedProcess]bool) bool {
	for _, p := range s.coord.Registry().Processes() {
		if p.Alive() || reported[p] {
			continue
		}
		reported[p] = true

		critical := slices.Contains(s.critical, p.Role())
		exitCode := -1
		if ec, ok := p.(interface{ ExitCode() int }); ok {
			exitCode = ec.ExitCode()
		}

		s.bus.Publish(events.ProcessExitedEvent{
			Role:      string(p.Role()),
			PID:       p.PID(),
			ExitCode:  exitCode,
			Critical:  critical,
			Timestamp: time.Now(),
		})

		if critical {
			s.logger.Warn("Critical process exited, ending session",
				"role", p.Role(), "pid", p.PID(), "exit_code", exitCode, "log", p.LogPath())
			return true
		}
		s.logger.Warn("Process exited, session continues",
			"role", p.Role(), "pid", p.PID(), "exit_code", exitCode, "log", p.LogPath())
		s.notifier.Status(fmt.Sprintf("%s exited with code %d", p.Role(), exitCode))
	}
	return false
}
