package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/floability/internal/events"
	"github.com/smazurov/floability/internal/process"
)

// Default shutdown timings.
const (
	DefaultGracePeriod = 2 * time.Second
	DefaultReapTimeout = 2 * time.Second
	DefaultForceSignal = syscall.SIGTERM
)

// State is the coordinator latch.
type State string

// Coordinator states. Transitions only go forward.
const (
	StateIdle         State = "idle"
	StateShuttingDown State = "shutting_down"
	StateDone         State = "done"
)

// Phase names published on the event bus.
const (
	PhaseCooperative = "cooperative"
	PhaseGrace       = "grace"
	PhaseForce       = "force"
	PhaseReap        = "reap"
	PhaseCleanup     = "cleanup"
	PhaseDone        = "done"
)

// Options configures a Coordinator. Zero values take the defaults.
type Options struct {
	GracePeriod time.Duration
	ReapTimeout time.Duration
	ForceSignal syscall.Signal
	Logger      *slog.Logger
	Bus         *events.Bus
}

// Coordinator runs the single shutdown pass over a Registry.
type Coordinator struct {
	registry *Registry
	opts     Options
	logger   *slog.Logger
	bus      *events.Bus

	mu       sync.Mutex
	state    State
	stopping chan struct{}
	done     chan struct{}
}

// NewCoordinator creates a coordinator for registry.
func NewCoordinator(registry *Registry, opts Options) *Coordinator {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.ReapTimeout <= 0 {
		opts.ReapTimeout = DefaultReapTimeout
	}
	if opts.ForceSignal == 0 {
		opts.ForceSignal = DefaultForceSignal
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		opts:     opts,
		logger:   opts.Logger,
		bus:      opts.Bus,
		state:    StateIdle,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Registry returns the registry this coordinator reclaims.
func (c *Coordinator) Registry() *Registry { return c.registry }

// State returns the current latch value.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stopping is closed as soon as the shutdown pass begins.
func (c *Coordinator) Stopping() <-chan struct{} { return c.stopping }

// Done is closed once the shutdown pass has finished.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Shutdown stops every registered process group and removes every registered
// directory. Only the first call does the work and returns true; any later or
// concurrent call returns false at once and may wait on Done.
//
// Shutdown never panics and never reports failures to the caller. Delivery
// errors, reap timeouts and removal errors are logged and skipped.
func (c *Coordinator) Shutdown() bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.logger.Debug("Shutdown already in progress")
		return false
	}
	c.state = StateShuttingDown
	close(c.stopping)
	c.mu.Unlock()

	defer c.finish()

	start := time.Now()
	procs, dirs := c.registry.seal()
	c.logger.Info("Shutting down session", "processes", len(procs), "directories", len(dirs))

	var signalled int
	c.publishPhase(PhaseCooperative)
	for _, p := range procs {
		c.safely(PhaseCooperative, func() {
			if p.Alive() && c.signal(p, p.StopSignal(), PhaseCooperative) {
				signalled++
			}
		})
	}

	if signalled > 0 {
		c.guard(PhaseGrace, func() {
			c.logger.Info("Waiting for processes to exit", "grace_period", c.opts.GracePeriod)
			time.Sleep(c.opts.GracePeriod)
		})
	}

	c.publishPhase(PhaseForce)
	for _, p := range procs {
		c.safely(PhaseForce, func() {
			if p.Alive() {
				c.signal(p, c.opts.ForceSignal, PhaseForce)
			}
		})
	}

	c.guard(PhaseReap, func() { c.reap(procs) })

	c.publishPhase(PhaseCleanup)
	for _, d := range dirs {
		c.safely(PhaseCleanup, func() { c.removeDirectory(d) })
	}

	c.logger.Info("Session shutdown complete", "duration", time.Since(start).Round(time.Millisecond))
	return true
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.state = StateDone
	c.mu.Unlock()
	c.publishPhase(PhaseDone)
	close(c.done)
}

// guard announces phase and runs it through safely.
func (c *Coordinator) guard(phase string, fn func()) {
	c.publishPhase(phase)
	c.safely(phase, fn)
}

// safely runs fn, containing any panic so the rest of the pass still runs.
func (c *Coordinator) safely(phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered panic during shutdown",
				"phase", phase, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (c *Coordinator) publishPhase(phase string) {
	c.logger.Debug("Shutdown phase", "phase", phase)
	c.bus.Publish(events.ShutdownPhaseEvent{Phase: phase, Timestamp: time.Now()})
}

// signal delivers sig to the group of p and reports whether it succeeded.
func (c *Coordinator) signal(p ManagedProcess, sig syscall.Signal, phase string) bool {
	name := process.SignalName(sig)
	err := p.SignalGroup(sig)

	ev := events.SignalSentEvent{
		Role:      string(p.Role()),
		PID:       p.PID(),
		PGID:      p.PGID(),
		Signal:    name,
		Phase:     phase,
		Timestamp: time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
		level := slog.LevelWarn
		if errors.Is(err, syscall.ESRCH) {
			// The group emptied between the liveness check and delivery.
			level = slog.LevelInfo
		}
		c.logger.Log(context.Background(), level, "Failed to signal process group",
			"role", p.Role(), "pgid", p.PGID(), "signal", name, "phase", phase, "error", err)
	} else {
		c.logger.Info("Signalled process group",
			"role", p.Role(), "pid", p.PID(), "pgid", p.PGID(), "signal", name, "phase", phase)
	}
	c.bus.Publish(ev)
	return err == nil
}

// reap waits for every process concurrently, each bounded by the reap timeout.
func (c *Coordinator) reap(procs []ManagedProcess) {
	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.safely(PhaseReap, func() { c.reapOne(p) })
		}()
	}
	wg.Wait()
}

func (c *Coordinator) reapOne(p ManagedProcess) {
	err := p.Wait(c.opts.ReapTimeout)
	if err != nil {
		c.logger.Warn("Process did not exit in time",
			"role", p.Role(), "pid", p.PID(), "timeout", c.opts.ReapTimeout, "error", err)
	} else {
		c.logger.Debug("Process reaped", "role", p.Role(), "pid", p.PID())
	}
	c.bus.Publish(events.ProcessReapedEvent{
		Role:      string(p.Role()),
		PID:       p.PID(),
		TimedOut:  err != nil,
		Timestamp: time.Now(),
	})
}

func (c *Coordinator) removeDirectory(d Directory) {
	ev := events.DirectoryRemovedEvent{Path: d.Path, Purpose: d.Purpose, Timestamp: time.Now()}
	if err := os.RemoveAll(d.Path); err != nil {
		ev.Error = err.Error()
		c.logger.Warn("Failed to remove directory", "path", d.Path, "purpose", d.Purpose, "error", err)
	} else {
		c.logger.Info("Removed directory", "path", d.Path, "purpose", d.Purpose)
	}
	c.bus.Publish(ev)
}
