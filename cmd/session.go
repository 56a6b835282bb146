package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/floability/internal/config"
	"github.com/smazurov/floability/internal/events"
	"github.com/smazurov/floability/internal/logging"
	"github.com/smazurov/floability/internal/metrics"
	"github.com/smazurov/floability/internal/metrics/exporters"
	"github.com/smazurov/floability/internal/notebook"
	"github.com/smazurov/floability/internal/process"
	"github.com/smazurov/floability/internal/session"
	"github.com/smazurov/floability/internal/signals"
	"github.com/smazurov/floability/internal/supervisor"
	"github.com/smazurov/floability/internal/systemd"
	"github.com/smazurov/floability/internal/version"
	"github.com/smazurov/floability/internal/vine"
	"github.com/spf13/cobra"
)

type mode string

const (
	modeRun     mode = "run"
	modeExecute mode = "execute"
)

// signalSet holds the parsed signal options.
type signalSet struct {
	force    syscall.Signal
	factory  syscall.Signal
	notebook syscall.Signal
}

func parseSignals(opts *SessionOptions) (signalSet, error) {
	var set signalSet
	for _, s := range []struct {
		name string
		dst  *syscall.Signal
	}{
		{opts.ForceSignal, &set.force},
		{opts.FactoryStop, &set.factory},
		{opts.NotebookStop, &set.notebook},
	} {
		if s.name == "" {
			continue
		}
		sig, err := process.ParseSignal(s.name)
		if err != nil {
			return set, err
		}
		*s.dst = sig
	}
	return set, nil
}

// initLogging applies [logging] module levels from the config file with the
// resolved global level and format on top.
func initLogging(opts *SessionOptions) {
	lc := config.LoadLoggingConfig(opts.Config)
	if opts.LoggingLevel != "" {
		lc.Level = opts.LoggingLevel
	}
	if opts.LoggingFormat != "" {
		lc.Format = opts.LoggingFormat
	}
	// The session log file is attached once the run directory exists.
	lc.File = ""
	logging.Initialize(lc)
}

// runSession drives one session from start to reclaimed resources and
// returns the process exit status.
func runSession(cmd *cobra.Command, opts *SessionOptions, m mode) int {
	if err := config.LoadConfig(opts, cmd); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Failed to load configuration: %v\n", err)
		return 1
	}
	initLogging(opts)
	defer func() { _ = logging.Close() }()

	logger := logging.GetLogger("main")
	logger.Info("Starting floability", "mode", m, "version", version.Version)

	sigs, err := parseSignals(opts)
	if err != nil {
		logger.Error("Invalid signal option", "error", err)
		return 1
	}
	batch, err := vine.ParseBatchType(opts.BatchType)
	if err != nil {
		logger.Error("Invalid batch type", "error", err)
		return 1
	}

	env := session.Environment{Prefix: opts.EnvPrefix, WorkerPack: opts.WorkerPack, Cleanup: opts.EnvCleanup}
	if opts.RunPrefix != "" {
		env.Wrapper, err = process.ParseCommand(opts.RunPrefix)
		if err != nil {
			logger.Error("Invalid run prefix", "run_prefix", opts.RunPrefix, "error", err)
			return 1
		}
	}

	var execSpec process.LaunchSpec
	if m == modeExecute {
		execSpec, err = notebook.ExecuteSpec(notebook.ExecuteOptions{
			Notebook:     opts.Notebook,
			Script:       opts.PythonScript,
			PreferPython: opts.PreferPython,
			Prefix:       env.RunPrefix(),
			StopSignal:   sigs.notebook,
		})
		if err != nil {
			logger.Error("Nothing to execute", "error", err)
			return 1
		}
	}

	var compute *vine.ComputeSpec
	if opts.ComputeSpec != "" && !opts.NoWorker {
		compute, err = vine.LoadComputeSpec(opts.ComputeSpec)
		if err != nil {
			logger.Error("Failed to load compute spec", "path", opts.ComputeSpec, "error", err)
			return 1
		}
	}

	bus := events.New()
	defer metrics.Subscribe(bus)()

	if opts.MetricsAddr != "" {
		srv, listenErr := exporters.Listen(opts.MetricsAddr, logging.GetLogger("metrics"))
		if listenErr != nil {
			logger.Warn("Metrics endpoint disabled", "error", listenErr)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Close(ctx)
			}()
		}
	}

	sess, err := session.New(session.Config{
		BaseDir:       opts.BaseDir,
		ManagerName:   opts.ManagerName,
		Env:           env,
		GracePeriod:   opts.GracePeriod,
		ReapTimeout:   opts.ReapTimeout,
		ForceSignal:   sigs.force,
		Logger:        logging.GetLogger("lifecycle"),
		ProcessLogger: logging.GetLogger("process"),
		Bus:           bus,
	})
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		return 1
	}

	if err := logging.SetFile(sess.LogPath()); err != nil {
		logger.Warn("Session log file unavailable", "path", sess.LogPath(), "error", err)
	}
	logger.Info("Floability run directory created, all logs are stored here", "run_dir", sess.RunDir)
	logger.Info("Manager name", "manager_name", sess.ManagerName)

	front := signals.Install(sess.Coordinator, signals.Options{
		Logger: logging.GetLogger("signals"),
		Exit: func(code int) {
			_ = logging.Close()
			os.Exit(code)
		},
	})
	defer front.Uninstall()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.Config != "" {
		if _, statErr := os.Stat(opts.Config); statErr == nil {
			if _, watchErr := config.WatchLogging(ctx, opts.Config, logger); watchErr != nil {
				logger.Warn("Log level reload disabled", "error", watchErr)
			}
		}
	}

	if !opts.NoWorker {
		spec, specErr := vine.FactorySpec(vine.Options{
			BatchType:      batch,
			ManagerName:    sess.ManagerName,
			ScratchDir:     sess.RunDir,
			MinWorkers:     vine.DefaultMinWorkers,
			MaxWorkers:     opts.Workers,
			CoresPerWorker: opts.CoresPerWorker,
			PonchoEnv:      env.WorkerPack,
			Compute:        compute,
			StopSignal:     sigs.factory,
		})
		if specErr != nil {
			return fail(sess, logger, "Invalid worker factory options", specErr)
		}
		factory, launchErr := sess.Launch(spec)
		if launchErr != nil {
			return fail(sess, logger, "Failed to start worker factory", launchErr)
		}
		logger.Info("Worker factory started", "pid", factory.PID(), "log", factory.LogPath())

		factoryErrors := vine.WatchErrors(ctx, factory, opts.MonitorPollInterval, logging.GetLogger("vine"))
		defer factoryErrors.Stop()
	} else {
		logger.Info("Worker factory disabled by --no-worker")
	}

	if m == modeExecute {
		return execute(ctx, sess, execSpec, logger)
	}

	srv, err := sess.Launch(notebook.ServerSpec(notebook.ServerOptions{
		Notebook:   opts.Notebook,
		Port:       opts.JupyterPort,
		IP:         opts.JupyterIP,
		Prefix:     env.RunPrefix(),
		StopSignal: sigs.notebook,
	}))
	if err != nil {
		return fail(sess, logger, "Failed to start JupyterLab", err)
	}
	logger.Info("JupyterLab started, the access URL is shown once it is ready",
		"pid", srv.PID(), "port", opts.JupyterPort, "log", srv.LogPath())

	watch := notebook.WatchServer(ctx, srv, notebook.WatchOptions{
		Host:         sess.Host,
		Bus:          bus,
		Out:          cmd.OutOrStdout(),
		PollInterval: opts.MonitorPollInterval,
		Logger:       logging.GetLogger("notebook"),
		Stopping:     sess.Coordinator.Stopping(),
	})
	defer watch.Stop()

	sup := supervisor.New(sess.Coordinator, supervisor.Options{
		PollInterval: opts.PollInterval,
		Logger:       logging.GetLogger("supervisor"),
		Bus:          bus,
		Notifier:     systemd.NewNotifier(logging.GetLogger("systemd")),
	})
	reason := sup.Run(ctx)

	logger.Info("Session ended", "reason", reason)
	return 0
}

// execute waits for the executor, then reclaims the session.
func execute(ctx context.Context, sess *session.Session, spec process.LaunchSpec, logger *slog.Logger) int {
	proc, err := sess.Launch(spec)
	if err != nil {
		return fail(sess, logger, "Failed to start execution", err)
	}
	logger.Info("Executing", "command", proc.Info().Command, "log", proc.LogPath())

	select {
	case <-proc.Done():
		if code := proc.ExitCode(); code == 0 {
			logger.Info("Execution finished successfully")
		} else {
			logger.Error("Execution failed", "exit_code", code, "log", proc.LogPath())
		}
	case <-ctx.Done():
		logger.Info("Execution interrupted")
	case <-sess.Coordinator.Stopping():
	}

	sess.Shutdown()
	return 0
}

// fail reclaims whatever the session already holds and reports status 1.
func fail(sess *session.Session, logger *slog.Logger, msg string, err error) int {
	attrs := []any{"error", err}
	if errors.Is(err, process.ErrExecutableNotFound) {
		attrs = append(attrs, "hint", "check that it is installed and on PATH")
	}
	logger.Error(msg, attrs...)
	sess.Shutdown()
	return 1
}
