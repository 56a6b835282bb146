package monitor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the backoff between reads once the end of the file
// has been reached and no write notification arrived.
const DefaultPollInterval = time.Second

// State of a monitor.
type State string

// Monitor states.
const (
	StateWatching State = "watching"
	StateMatched  State = "matched"
	StateStopped  State = "stopped"
)

// Match is what an extractor pulls out of a log line.
type Match struct {
	Line  string
	URL   string
	Port  int
	Token string
}

// Extractor inspects one complete line (without its newline) and reports
// whether it carries the information being waited for.
type Extractor func(line string) (Match, bool)

// Monitor tails a log file written by another process and reports the first
// line accepted by its extractor.
type Monitor struct {
	path    string
	extract Extractor
	poll    time.Duration
	stopOn  <-chan struct{}
	each    func(Match)
	logger  *slog.Logger

	result   chan Match
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	state   State
	started bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval sets the backoff used at end of file.
// Default is DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.poll = d
		}
	}
}

// WithStopOn ends the monitor once ch is closed, typically the Done channel
// of the process writing the file. Lines already written are still read.
func WithStopOn(ch <-chan struct{}) Option {
	return func(m *Monitor) {
		m.stopOn = ch
	}
}

// WithEach keeps the monitor running past the first match and hands every
// accepted line to fn. Result then closes without a value.
func WithEach(fn func(Match)) Option {
	return func(m *Monitor) {
		m.each = fn
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a monitor for path. Nothing is read until Start is called.
func New(path string, extract Extractor, opts ...Option) *Monitor {
	m := &Monitor{
		path:    path,
		extract: extract,
		poll:    DefaultPollInterval,
		logger:  slog.Default(),
		result:  make(chan Match, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   StateWatching,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins tailing in a background goroutine. Calling it more than once
// has no effect.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run(ctx)
}

// Result delivers at most one Match and is closed when the monitor ends.
func (m *Monitor) Result() <-chan Match { return m.result }

// Done is closed when the monitor goroutine has returned.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Stop ends the monitor without a match. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	defer close(m.result)

	w := m.newWaiter(ctx)
	defer w.close()

	file, ok := m.open(w)
	if !ok {
		m.setState(StateStopped)
		return
	}
	defer file.Close()

	m.logger.Debug("Watching log file", "path", m.path)

	reader := bufio.NewReader(file)
	var partial strings.Builder

	for {
		chunk, err := reader.ReadString('\n')
		partial.WriteString(chunk)

		if err == nil {
			line := strings.TrimRight(partial.String(), "\r\n")
			partial.Reset()
			if m.tryMatch(line) {
				return
			}
			continue
		}

		if !errors.Is(err, io.EOF) {
			m.logger.Warn("Failed to read log file", "path", m.path, "error", err)
			m.setState(StateStopped)
			return
		}

		// The writer is gone and everything it wrote has been read.
		if w.writerExited {
			if line := strings.TrimRight(partial.String(), "\r\n"); line != "" && m.tryMatch(line) {
				return
			}
			m.setState(StateStopped)
			return
		}

		if w.wait() == wakeStop {
			m.setState(StateStopped)
			return
		}
	}
}

// tryMatch publishes the first accepted line, or passes each one on when
// following.
func (m *Monitor) tryMatch(line string) bool {
	match, found := m.extract(line)
	if !found {
		return false
	}
	match.Line = line
	if m.each != nil {
		m.each(match)
		return false
	}
	m.setState(StateMatched)
	m.result <- match
	m.logger.Debug("Log line matched", "path", m.path, "line", line)
	return true
}

// open waits for the file to appear.
func (m *Monitor) open(w *waiter) (*os.File, bool) {
	for {
		file, err := os.Open(m.path)
		if err == nil {
			return file, true
		}
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("Failed to open log file", "path", m.path, "error", err)
			return nil, false
		}
		if w.wait() == wakeStop {
			return nil, false
		}
		if w.writerExited {
			// One last look in case the writer created the file and exited.
			file, err = os.Open(m.path)
			return file, err == nil
		}
	}
}

type wake int

const (
	wakeRetry wake = iota
	wakeWriterExited
	wakeStop
)

// waiter blocks between reads until the file changes, the backoff elapses or
// the monitor is told to stop.
type waiter struct {
	m       *Monitor
	ctx     context.Context
	name    string
	watcher *fsnotify.Watcher
	stopOn  <-chan struct{}

	// writerExited is set once stopOn has been closed.
	writerExited bool
}

func (m *Monitor) newWaiter(ctx context.Context) *waiter {
	w := &waiter{m: m, ctx: ctx, name: filepath.Clean(m.path), stopOn: m.stopOn}

	// The directory is watched so creation of the file is seen as well.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Debug("File notifications unavailable, polling only", "error", err)
		return w
	}
	if err := watcher.Add(filepath.Dir(w.name)); err != nil {
		m.logger.Debug("File notifications unavailable, polling only", "path", m.path, "error", err)
		_ = watcher.Close()
		return w
	}
	w.watcher = watcher
	return w
}

func (w *waiter) close() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

func (w *waiter) wait() wake {
	timer := time.NewTimer(w.m.poll)
	defer timer.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.watcher != nil {
		events = w.watcher.Events
		errs = w.watcher.Errors
	}

	for {
		select {
		case <-w.ctx.Done():
			return wakeStop
		case <-w.m.stop:
			return wakeStop
		case <-w.stopOn:
			w.stopOn = nil
			w.writerExited = true
			return wakeWriterExited
		case <-timer.C:
			return wakeRetry
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) == w.name && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return wakeRetry
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.m.logger.Debug("File watcher error", "path", w.m.path, "error", err)
		}
	}
}
