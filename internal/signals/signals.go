// Package signals turns SIGINT and SIGTERM into exactly one session shutdown
// followed by process exit.
package signals

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Shutdowner is the part of the lifecycle coordinator the front-end drives.
type Shutdowner interface {
	Shutdown() bool
	Done() <-chan struct{}
}

// Options configures Install. Zero values take the defaults.
type Options struct {
	// Signals to handle. Default is SIGINT and SIGTERM.
	Signals []os.Signal

	// Exit is called with status 0 once shutdown has completed.
	// Default is os.Exit.
	Exit func(code int)

	Logger *slog.Logger
}

// FrontEnd is an installed signal handler.
type FrontEnd struct {
	coord   Shutdowner
	sigs    []os.Signal
	exit    func(int)
	logger  *slog.Logger
	ch      chan os.Signal
	stop    chan struct{}
	stopped sync.Once
	done    chan struct{}
}

// Install starts handling signals for coord. The first signal received
// disarms every handled signal, runs coord.Shutdown, waits for it to finish
// and calls Exit(0). Any signal arriving after that first one is ignored.
func Install(coord Shutdowner, opts Options) *FrontEnd {
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	f := &FrontEnd{
		coord:  coord,
		sigs:   opts.Signals,
		exit:   opts.Exit,
		logger: opts.Logger,
		ch:     make(chan os.Signal, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	signal.Notify(f.ch, f.sigs...)
	go f.run()
	return f
}

func (f *FrontEnd) run() {
	defer close(f.done)

	select {
	case sig := <-f.ch:
		// Disarm before delegating so a second Ctrl+C cannot re-enter.
		signal.Ignore(f.sigs...)
		f.logger.Info("Received signal, shutting down session", "signal", sig.String())

		if !f.coord.Shutdown() {
			f.logger.Info("Shutdown already in progress, waiting for it to finish")
		}
		<-f.coord.Done()

		f.logger.Info("Exiting")
		f.exit(0)

	case <-f.stop:
		signal.Stop(f.ch)
	}
}

// Uninstall stops handling signals if none has been received yet.
// Default signal behavior is restored.
func (f *FrontEnd) Uninstall() {
	f.stopped.Do(func() { close(f.stop) })
	<-f.done
}

// Done is closed when the handler goroutine has returned.
func (f *FrontEnd) Done() <-chan struct{} { return f.done }
