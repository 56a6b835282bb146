package process

import "time"

// Role tags a managed process with what it does for the session.
type Role string

// Process roles.
const (
	RoleWorkerFactory    Role = "worker-factory"    // vine_factory, critical
	RoleNotebookServer   Role = "notebook-server"   // jupyter lab
	RoleNotebookExecutor Role = "notebook-executor" // nbconvert / python script in execute mode
)

// State represents the current state of a launched process.
type State string

// Process states.
const (
	StateRunning State = "running"
	StateExited  State = "exited"
)

// Info contains information about a launched process.
type Info struct {
	Role      Role
	PID       int
	PGID      int
	LogPath   string
	Command   string
	State     State
	StartedAt time.Time
	ExitedAt  time.Time
	ExitCode  int
}
