package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

// SessionOptions are shared by run and execute. Flag names are derived from
// field names (JupyterPort -> --jupyter-port) so config.LoadConfig can tell
// which values were set on the command line.
type SessionOptions struct {
	Config string

	// Workload
	Notebook     string `toml:"notebook.path" env:"NOTEBOOK"`
	PythonScript string `toml:"execute.python_script" env:"PYTHON_SCRIPT"`
	PreferPython bool   `toml:"execute.prefer_python" env:"PREFER_PYTHON"`

	// Worker factory
	BatchType      string `toml:"factory.batch_type" env:"BATCH_TYPE"`
	Workers        int    `toml:"factory.workers" env:"WORKERS"`
	CoresPerWorker int    `toml:"factory.cores_per_worker" env:"CORES_PER_WORKER"`
	ManagerName    string `toml:"factory.manager_name" env:"MANAGER_NAME"`
	ComputeSpec    string `toml:"factory.compute_spec" env:"COMPUTE_SPEC"`
	NoWorker       bool   `toml:"factory.no_worker" env:"NO_WORKER"`
	FactoryStop    string `toml:"factory.stop_signal" env:"FACTORY_STOP_SIGNAL"`

	// Notebook server
	JupyterPort  int    `toml:"notebook.port" env:"JUPYTER_PORT"`
	JupyterIP    string `toml:"notebook.ip" env:"JUPYTER_IP"`
	NotebookStop string `toml:"notebook.stop_signal" env:"NOTEBOOK_STOP_SIGNAL"`

	// Environment
	BaseDir    string   `toml:"session.base_dir" env:"BASE_DIR"`
	EnvPrefix  string   `toml:"environment.prefix" env:"ENV_PREFIX"`
	WorkerPack string   `toml:"environment.worker_pack" env:"WORKER_PACK"`
	EnvCleanup []string `toml:"environment.cleanup" env:"ENV_CLEANUP"`
	RunPrefix  string   `toml:"environment.run_prefix" env:"RUN_PREFIX"`

	// Timing
	GracePeriod         time.Duration `toml:"shutdown.grace_period" env:"SHUTDOWN_GRACE_PERIOD"`
	ReapTimeout         time.Duration `toml:"shutdown.reap_timeout" env:"SHUTDOWN_REAP_TIMEOUT"`
	ForceSignal         string        `toml:"shutdown.force_signal" env:"SHUTDOWN_FORCE_SIGNAL"`
	PollInterval        time.Duration `toml:"supervisor.poll_interval" env:"SUPERVISOR_POLL_INTERVAL"`
	MonitorPollInterval time.Duration `toml:"monitor.poll_interval" env:"MONITOR_POLL_INTERVAL"`

	// Observability
	MetricsAddr   string `toml:"metrics.addr" env:"METRICS_ADDR"`
	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT"`
}

func bindSessionFlags(cmd *cobra.Command, opts *SessionOptions) {
	f := cmd.Flags()

	f.StringVarP(&opts.Config, "config", "c", "floability.toml", "Path to configuration file")

	f.StringVar(&opts.Notebook, "notebook", "", "Notebook (.ipynb) to open or execute")
	f.StringVar(&opts.PythonScript, "python-script", "", "Python script to execute")
	f.BoolVar(&opts.PreferPython, "prefer-python", false, "Prefer the Python script over the notebook when both are given")

	f.StringVar(&opts.BatchType, "batch-type", "local", "Batch system for workers (local, condor, uge, slurm)")
	f.IntVar(&opts.Workers, "workers", 5, "Maximum number of workers")
	f.IntVar(&opts.CoresPerWorker, "cores-per-worker", 1, "Cores per worker unless the compute spec sets them")
	f.StringVar(&opts.ManagerName, "manager-name", "", "TaskVine manager name (default floability-<uuid>)")
	f.StringVar(&opts.ComputeSpec, "compute-spec", "", "compute.yml with a vine_factory_config table")
	f.BoolVar(&opts.NoWorker, "no-worker", false, "Do not start the worker factory")
	f.StringVar(&opts.FactoryStop, "factory-stop", "SIGINT", "Cooperative stop signal for the worker factory")

	f.IntVar(&opts.JupyterPort, "jupyter-port", 8888, "Requested JupyterLab port")
	f.StringVar(&opts.JupyterIP, "jupyter-ip", "0.0.0.0", "JupyterLab listen address")
	f.StringVar(&opts.NotebookStop, "notebook-stop", "SIGINT", "Cooperative stop signal for the notebook server")

	f.StringVar(&opts.BaseDir, "base-dir", "/tmp", "Directory the run directory is created in")
	f.StringVar(&opts.EnvPrefix, "env-prefix", "", "Extracted conda environment to run notebook tools in")
	f.StringVar(&opts.WorkerPack, "worker-pack", "", "Packed environment (tar.gz) shipped to workers")
	f.StringSliceVar(&opts.EnvCleanup, "env-cleanup", nil, "Extra directories to remove when the session ends")
	f.StringVar(&opts.RunPrefix, "run-prefix", "", "Command that wraps the notebook tools instead of conda run (quoted words allowed)")

	f.DurationVar(&opts.GracePeriod, "grace-period", 2*time.Second, "Wait between the cooperative and the forced stop")
	f.DurationVar(&opts.ReapTimeout, "reap-timeout", 2*time.Second, "Wait for each process after the forced stop")
	f.StringVar(&opts.ForceSignal, "force-signal", "SIGTERM", "Signal delivered in the forced stop phase")
	f.DurationVar(&opts.PollInterval, "poll-interval", 5*time.Second, "How often process liveness is checked")
	f.DurationVar(&opts.MonitorPollInterval, "monitor-poll-interval", time.Second, "Log file re-read backoff")

	f.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	f.StringVar(&opts.LoggingLevel, "logging-level", "info", "Global logging level (debug, info, warn, error)")
	f.StringVar(&opts.LoggingFormat, "logging-format", "text", "Logging format (text, json)")
}
