// Package process launches the external programs a session supervises.
//
// Launch starts a command as the leader of a new process group, with stdout
// and stderr redirected to "<LogDir>/<Name>.stdout", and returns a *Process
// handle exposing:
//   - PID and PGID (equal, because of Setpgid)
//   - Alive, a non-blocking liveness probe
//   - SignalGroup, delivering a signal to the leader and every child
//   - Wait, a bounded wait for exit
//
// A missing executable is reported as ErrExecutableNotFound; the caller is
// expected to abort the session, since nothing at this layer can recover a
// missing vine_factory or jupyter binary.
//
// Example:
//
//	proc, err := process.Launch(process.LaunchSpec{
//	    Role:    process.RoleNotebookServer,
//	    Name:    "jupyterlab",
//	    Command: []string{"jupyter", "lab", "--no-browser", "--port", "8888"},
//	    Prefix:  []string{"conda", "run", "--prefix", envDir, "--no-capture-output"},
//	    LogDir:  runDir,
//	}, logger)
//	if errors.Is(err, process.ErrExecutableNotFound) {
//	    os.Exit(1)
//	}
//	defer proc.SignalGroup(syscall.SIGINT)
package process
