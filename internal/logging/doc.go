// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package and fans every record out to:
//   - stdout, when a terminal, pipe, or file is connected
//   - the session log file (Config.File), usually <run_dir>/floability.log
//   - the systemd journal, when journald is reachable
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		File:   filepath.Join(runDir, "floability.log"),
//		Modules: map[string]string{
//			"monitor":   "debug",
//			"lifecycle": "info",
//		},
//	})
//	defer logging.Close()
//
// The session log file usually only exists once the run directory has been
// created. Attach it later with SetFile; loggers already handed out start
// writing to it too. UpdateLevels changes levels of a running session.
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("lifecycle")
//	logger.Info("Sending signal to process group", "pgid", pgid, "signal", "interrupt")
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("process").With("role", "worker-factory")
//
// # Viewing Logs
//
// When journald is available:
//
//	journalctl -t floability                       # All floability logs
//	journalctl -t floability MODULE=lifecycle      # Shutdown escalation only
//	journalctl -t floability ROLE=notebook-server  # One managed process
//
// # Configuration
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	monitor = "debug"
package logging
