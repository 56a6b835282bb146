package notebook

import (
	"errors"
	"fmt"
	"path/filepath"
	"syscall"

	"github.com/smazurov/floability/internal/process"
)

// ExecutorLogName is the log stem of a batch notebook or script run.
const ExecutorLogName = "python_execution"

// ErrNothingToExecute is returned when execute mode has neither a notebook
// nor a script to run.
var ErrNothingToExecute = errors.New("nothing to execute: give a notebook or a python script")

// ExecuteOptions describes a batch execution.
type ExecuteOptions struct {
	Notebook     string
	Script       string
	PreferPython bool

	Prefix     []string
	StopSignal syscall.Signal
}

// ExecuteSpec builds the launch spec for execute mode. A script runs when
// PreferPython is set or no notebook was given; otherwise the notebook is
// executed in place with nbconvert.
func ExecuteSpec(opts ExecuteOptions) (process.LaunchSpec, error) {
	spec := process.LaunchSpec{
		Role:       process.RoleNotebookExecutor,
		Name:       ExecutorLogName,
		Prefix:     opts.Prefix,
		StopSignal: opts.StopSignal,
	}

	switch {
	case opts.Script != "" && (opts.PreferPython || opts.Notebook == ""):
		abs, err := filepath.Abs(opts.Script)
		if err != nil {
			return process.LaunchSpec{}, fmt.Errorf("failed to resolve script %s: %w", opts.Script, err)
		}
		spec.Command = []string{"python", filepath.Base(abs)}
		spec.WorkDir = filepath.Dir(abs)
	case opts.Notebook != "":
		spec.Command = []string{"jupyter", "nbconvert", "--to", "notebook", "--execute", "--inplace", opts.Notebook}
	default:
		return process.LaunchSpec{}, ErrNothingToExecute
	}
	return spec, nil
}
