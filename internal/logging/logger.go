package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{} // default level
	isInitialized   bool
	mutex           sync.RWMutex
	fileOutput      = &switchWriter{}
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`

	// File is an optional session log file that receives every record
	// in addition to stdout and the journal.
	File string `toml:"file"`
}

// Initialize sets up the logging system.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	if err := openFileOutput(config.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", config.File, err)
	}

	// Parse and set global level
	globalLevel := parseLevel(config.Level)
	if globalLevel == nil {
		defaultLevel := slog.LevelInfo
		globalLevel = &defaultLevel
	}
	globalLevelVar.Set(*globalLevel)

	// Loggers handed out before Initialize keep their old handler chain;
	// their level is refreshed through the shared LevelVar.
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(config, *globalLevel, module))

		handler := createHandler(config.Format, levelVar)
		moduleLoggers[module] = slog.New(handler).With("module", module)
	}

	// Create base handler for default logger
	handler := createHandler(config.Format, globalLevelVar)

	// Set default logger
	slog.SetDefault(slog.New(handler))
}

// UpdateLevels changes the global and per-module levels in place. Format and
// outputs are left alone, so it is safe to call while loggers are in use.
func UpdateLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = level
	globalConfig.Modules = modules

	globalLevel := slog.LevelInfo
	if parsed := parseLevel(level); parsed != nil {
		globalLevel = *parsed
	}
	globalLevelVar.Set(globalLevel)

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(globalConfig, globalLevel, module))
	}
}

// SetFile attaches (or with "" detaches) the session log file. Every logger,
// including ones already handed out, starts writing to it immediately.
func SetFile(path string) error {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.File = path
	return openFileOutput(path)
}

// Close flushes and closes the session log file, if one is open.
func Close() error {
	mutex.Lock()
	defer mutex.Unlock()

	return fileOutput.swap(nil)
}

// openFileOutput replaces the current session log file (must hold lock).
func openFileOutput(path string) error {
	if path == "" {
		return fileOutput.swap(nil)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return fileOutput.swap(f)
}

// switchWriter forwards to the current session log file and discards
// writes while none is attached.
type switchWriter struct {
	mu sync.Mutex
	f  *os.File
}

func (w *switchWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return len(p), nil
	}
	return w.f.Write(p)
}

func (w *switchWriter) attached() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f != nil
}

// swap installs f and closes the previous file.
func (w *switchWriter) swap(f *os.File) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.f
	w.f = f
	if prev != nil {
		return prev.Close()
	}
	return nil
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	// Create a LevelVar for this module so level can be changed at runtime
	levelVar := &slog.LevelVar{}

	level := slog.LevelInfo
	format := "text"
	if isInitialized {
		if globalLevel := parseLevel(globalConfig.Level); globalLevel != nil {
			level = *globalLevel
		}
		level = moduleLevel(globalConfig, level, module)
		format = globalConfig.Format
	}
	levelVar.Set(level)

	logger := slog.New(createHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// moduleLevel returns the module override from config, or fallback.
func moduleLevel(config Config, fallback slog.Level, module string) slog.Level {
	if levelStr, exists := config.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			return *parsed
		}
	}
	return fallback
}

// createHandler creates a slog handler with the specified format and level.
// Logs to stdout, the session log file and the journal (when available).
// The file handler is always present so SetFile reaches existing loggers.
func createHandler(format string, level slog.Leveler) slog.Handler {
	stdoutHandler := newFormatHandler(format, os.Stdout, level)

	var handlers []slog.Handler

	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}

	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, stdoutHandler)
	}

	handlers = append(handlers, &fileHandler{Handler: newFormatHandler(format, fileOutput, level)})

	return NewMultiHandler(handlers...)
}

// fileHandler skips formatting while no session log file is attached.
type fileHandler struct {
	slog.Handler
}

func (h *fileHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return fileOutput.attached() && h.Handler.Enabled(ctx, level)
}

func (h *fileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fileHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *fileHandler) WithGroup(name string) slog.Handler {
	return &fileHandler{Handler: h.Handler.WithGroup(name)}
}

func newFormatHandler(format string, w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// Available if terminal, pipe, socket, or regular file (not /dev/null which is ModeDevice)
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		l := slog.LevelDebug
		return &l
	case "info":
		l := slog.LevelInfo
		return &l
	case "warn", "warning":
		l := slog.LevelWarn
		return &l
	case "error":
		l := slog.LevelError
		return &l
	default:
		return nil
	}
}
