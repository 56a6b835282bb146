package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/floability/internal/events"
	"github.com/smazurov/floability/internal/process"
)

// ErrShuttingDown is returned by the Register methods once the coordinator
// has taken its snapshot. The entry is not tracked and will not be reclaimed.
var ErrShuttingDown = errors.New("session is shutting down")

// ManagedProcess is what the coordinator needs from a launched program.
// *process.Process satisfies it.
type ManagedProcess interface {
	PID() int
	PGID() int
	Role() process.Role
	LogPath() string
	Alive() bool
	StopSignal() syscall.Signal
	SignalGroup(sig syscall.Signal) error
	Wait(timeout time.Duration) error
}

// Directory is a scratch directory removed at shutdown.
type Directory struct {
	Path    string
	Purpose string
}

// Registry records every process and directory the session must reclaim.
// Insertion order is shutdown order. Entries are never removed.
type Registry struct {
	mu          sync.Mutex
	processes   []ManagedProcess
	directories []Directory
	sealed      bool

	bus    *events.Bus
	logger *slog.Logger
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(bus *events.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{bus: bus, logger: logger}
}

// RegisterProcess appends p to the shutdown list.
func (r *Registry) RegisterProcess(p ManagedProcess) error {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		r.logger.Warn("Process registered after shutdown started, it will not be stopped",
			"role", p.Role(), "pid", p.PID())
		return fmt.Errorf("register %s pid %d: %w", p.Role(), p.PID(), ErrShuttingDown)
	}
	r.processes = append(r.processes, p)
	r.mu.Unlock()

	r.logger.Debug("Process registered", "role", p.Role(), "pid", p.PID(), "pgid", p.PGID())
	r.bus.Publish(events.ProcessRegisteredEvent{
		Role:      string(p.Role()),
		PID:       p.PID(),
		PGID:      p.PGID(),
		LogPath:   p.LogPath(),
		Timestamp: time.Now(),
	})
	return nil
}

// RegisterDirectory appends path to the removal list. Relative paths are
// made absolute against the current working directory.
func (r *Registry) RegisterDirectory(path, purpose string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("register directory %s: %w", path, err)
	}

	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		r.logger.Warn("Directory registered after shutdown started, it will not be removed",
			"path", abs, "purpose", purpose)
		return fmt.Errorf("register directory %s: %w", abs, ErrShuttingDown)
	}
	r.directories = append(r.directories, Directory{Path: abs, Purpose: purpose})
	r.mu.Unlock()

	r.logger.Debug("Directory registered", "path", abs, "purpose", purpose)
	r.bus.Publish(events.DirectoryRegisteredEvent{Path: abs, Purpose: purpose, Timestamp: time.Now()})
	return nil
}

// Processes returns a copy of the registered processes.
func (r *Registry) Processes() []ManagedProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ManagedProcess(nil), r.processes...)
}

// Directories returns a copy of the registered directories.
func (r *Registry) Directories() []Directory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Directory(nil), r.directories...)
}

// seal refuses further registrations and returns the final snapshot.
func (r *Registry) seal() ([]ManagedProcess, []Directory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return append([]ManagedProcess(nil), r.processes...), append([]Directory(nil), r.directories...)
}
