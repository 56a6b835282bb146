package notebook

import (
	"strconv"
	"syscall"

	"github.com/smazurov/floability/internal/process"
)

// Server defaults.
const (
	DefaultPort = 8888
	DefaultIP   = "0.0.0.0"

	ServerLogName = "jupyterlab"
)

// ServerOptions describes the JupyterLab server of a run session.
type ServerOptions struct {
	// Notebook is opened on start when set.
	Notebook string
	Port     int
	IP       string

	// Prefix wraps the jupyter command, e.g. a conda run prefix.
	Prefix []string

	StopSignal syscall.Signal
}

// ServerSpec builds the launch spec for jupyter lab. The port is a request;
// jupyter picks the next free one when it is taken, which is why the actual
// address is read back from the server's log.
func ServerSpec(opts ServerOptions) process.LaunchSpec {
	port := opts.Port
	if port <= 0 {
		port = DefaultPort
	}
	ip := opts.IP
	if ip == "" {
		ip = DefaultIP
	}

	cmd := []string{"jupyter", "lab", "--no-browser", "--port", strconv.Itoa(port), "--ip", ip, "--allow-root"}
	if opts.Notebook != "" {
		cmd = append(cmd, opts.Notebook)
	}

	return process.LaunchSpec{
		Role:       process.RoleNotebookServer,
		Name:       ServerLogName,
		Command:    cmd,
		Prefix:     opts.Prefix,
		StopSignal: opts.StopSignal,
	}
}
