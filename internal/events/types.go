package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeProcessRegistered uint32 = iota + 1
	TypeDirectoryRegistered
	TypeProcessExited
	TypeShutdownPhase
	TypeSignalSent
	TypeProcessReaped
	TypeDirectoryRemoved
	TypeConnectionInfo
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessRegisteredEvent is published when a launched process is handed to
// the lifecycle registry.
type ProcessRegisteredEvent struct {
	Role      string    `json:"role"`
	PID       int       `json:"pid"`
	PGID      int       `json:"pgid"`
	LogPath   string    `json:"log_path"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ProcessRegisteredEvent.
func (e ProcessRegisteredEvent) Type() uint32 { return TypeProcessRegistered }

// DirectoryRegisteredEvent is published when a scratch directory is
// registered for removal at shutdown.
type DirectoryRegisteredEvent struct {
	Path      string    `json:"path"`
	Purpose   string    `json:"purpose"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for DirectoryRegisteredEvent.
func (e DirectoryRegisteredEvent) Type() uint32 { return TypeDirectoryRegistered }

// ProcessExitedEvent is published by the supervisory loop the first time it
// observes a managed process no longer running.
type ProcessExitedEvent struct {
	Role      string    `json:"role"`
	PID       int       `json:"pid"`
	ExitCode  int       `json:"exit_code"`
	Critical  bool      `json:"critical"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ProcessExitedEvent.
func (e ProcessExitedEvent) Type() uint32 { return TypeProcessExited }

// ShutdownPhaseEvent marks the coordinator entering a shutdown phase.
type ShutdownPhaseEvent struct {
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ShutdownPhaseEvent.
func (e ShutdownPhaseEvent) Type() uint32 { return TypeShutdownPhase }

// SignalSentEvent records one signal delivery attempt to a process group.
// Error is empty when delivery succeeded.
type SignalSentEvent struct {
	Role      string    `json:"role"`
	PID       int       `json:"pid"`
	PGID      int       `json:"pgid"`
	Signal    string    `json:"signal"`
	Phase     string    `json:"phase"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for SignalSentEvent.
func (e SignalSentEvent) Type() uint32 { return TypeSignalSent }

// ProcessReapedEvent records the outcome of the final bounded wait.
type ProcessReapedEvent struct {
	Role      string    `json:"role"`
	PID       int       `json:"pid"`
	TimedOut  bool      `json:"timed_out"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ProcessReapedEvent.
func (e ProcessReapedEvent) Type() uint32 { return TypeProcessReaped }

// DirectoryRemovedEvent records one directory removal attempt.
type DirectoryRemovedEvent struct {
	Path      string    `json:"path"`
	Purpose   string    `json:"purpose"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for DirectoryRemovedEvent.
func (e DirectoryRemovedEvent) Type() uint32 { return TypeDirectoryRemoved }

// ConnectionInfoEvent is published once the notebook server has announced
// where it is listening.
type ConnectionInfoEvent struct {
	URL       string    `json:"url"`
	Port      int       `json:"port"`
	Token     string    `json:"token"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ConnectionInfoEvent.
func (e ConnectionInfoEvent) Type() uint32 { return TypeConnectionInfo }
