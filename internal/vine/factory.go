package vine

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/smazurov/floability/internal/process"
)

// FactoryBinary is the TaskVine worker factory executable.
const FactoryBinary = "vine_factory"

// LogName is the stem of the factory's log file in the run directory.
const LogName = "vine_factory"

// BatchType selects the batch system vine_factory submits workers to.
type BatchType string

// Supported batch systems.
const (
	BatchLocal  BatchType = "local"
	BatchCondor BatchType = "condor"
	BatchUGE    BatchType = "uge"
	BatchSlurm  BatchType = "slurm"
)

// BatchTypes lists the accepted values in help order.
var BatchTypes = []BatchType{BatchLocal, BatchCondor, BatchUGE, BatchSlurm}

// ParseBatchType validates a batch type name.
func ParseBatchType(s string) (BatchType, error) {
	for _, bt := range BatchTypes {
		if strings.EqualFold(s, string(bt)) {
			return bt, nil
		}
	}
	return "", fmt.Errorf("unknown batch type %q (want one of %s)", s, joinBatchTypes())
}

func joinBatchTypes() string {
	names := make([]string, len(BatchTypes))
	for i, bt := range BatchTypes {
		names[i] = string(bt)
	}
	return strings.Join(names, ", ")
}

// Defaults used when options leave a field zero.
const (
	DefaultMinWorkers = 1
	DefaultMaxWorkers = 5
)

// Options describes the worker factory to start.
type Options struct {
	BatchType   BatchType
	ManagerName string
	ScratchDir  string

	// MinWorkers and MaxWorkers are floors; the compute spec may raise them
	// but never lower them.
	MinWorkers int
	MaxWorkers int

	// CoresPerWorker is used when the compute spec sets no cores.
	CoresPerWorker int

	// PonchoEnv is a packed environment shipped to every worker.
	PonchoEnv string

	Compute *ComputeSpec

	StopSignal syscall.Signal
}

// FactorySpec builds the launch spec for vine_factory.
func FactorySpec(opts Options) (process.LaunchSpec, error) {
	if opts.ManagerName == "" {
		return process.LaunchSpec{}, fmt.Errorf("worker factory needs a manager name")
	}
	if opts.ScratchDir == "" {
		return process.LaunchSpec{}, fmt.Errorf("worker factory needs a scratch directory")
	}
	batch := opts.BatchType
	if batch == "" {
		batch = BatchLocal
	}
	if _, err := ParseBatchType(string(batch)); err != nil {
		return process.LaunchSpec{}, err
	}

	minWorkers := max(opts.MinWorkers, DefaultMinWorkers)
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	var fc FactoryConfig
	if opts.Compute != nil {
		fc = opts.Compute.Factory
	}
	if fc.MinWorkers != nil {
		minWorkers = max(minWorkers, *fc.MinWorkers)
	}
	if fc.MaxWorkers != nil {
		maxWorkers = max(maxWorkers, *fc.MaxWorkers)
	}
	maxWorkers = max(maxWorkers, minWorkers)

	args := []string{
		"-T" + string(batch),
		"--scratch-dir=" + opts.ScratchDir,
		"--manager-name=" + opts.ManagerName,
		"--min-workers=" + strconv.Itoa(minWorkers),
		"--max-workers=" + strconv.Itoa(maxWorkers),
	}

	cores := fc.Cores
	if cores == "" && opts.CoresPerWorker > 0 {
		cores = Scalar(strconv.Itoa(opts.CoresPerWorker))
	}

	for _, opt := range []struct {
		name  string
		value Scalar
	}{
		{"cores", cores},
		{"disk", fc.Disk},
		{"memory", fc.Memory},
		{"foremen-name", fc.ForemenName},
		{"workers-per-cycle", fc.WorkersPerCycle},
		{"tasks-per-worker", fc.TasksPerWorker},
		{"timeout", fc.Timeout},
		{"worker-extra-options", fc.WorkerExtraOptions},
		{"condor-requirements", fc.CondorRequirements},
	} {
		if opt.value != "" {
			args = append(args, "--"+opt.name+"="+string(opt.value))
		}
	}

	if opts.PonchoEnv != "" {
		args = append(args, "--poncho-env="+opts.PonchoEnv)
	}

	return process.LaunchSpec{
		Role:       process.RoleWorkerFactory,
		Name:       LogName,
		Command:    append([]string{FactoryBinary}, args...),
		StopSignal: opts.StopSignal,
	}, nil
}
