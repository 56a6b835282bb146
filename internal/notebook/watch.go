package notebook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/smazurov/floability/internal/events"
	"github.com/smazurov/floability/internal/monitor"
	"github.com/smazurov/floability/internal/session"
)

// Server is the part of a launched notebook server the watcher needs.
type Server interface {
	LogPath() string
	Done() <-chan struct{}
}

// WatchOptions configures WatchServer.
type WatchOptions struct {
	Host         session.HostInfo
	Bus          *events.Bus
	Out          io.Writer
	PollInterval time.Duration
	Logger       *slog.Logger

	// Stopping is closed once the session starts shutting down. A server
	// that goes away after that is not reported as a startup failure.
	Stopping <-chan struct{}
}

// WatchServer tails the server's log until it announces its URL, then
// publishes a ConnectionInfoEvent and prints the access banner to Out. The
// watch ends on its own when the server exits first. It never blocks the
// caller; the returned monitor can be stopped or waited on.
func WatchServer(ctx context.Context, srv Server, opts WatchOptions) *monitor.Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := monitor.New(srv.LogPath(), monitor.NotebookURL,
		monitor.WithPollInterval(opts.PollInterval),
		monitor.WithStopOn(srv.Done()),
		monitor.WithLogger(logger),
	)
	m.Start(ctx)

	go func() {
		match, ok := <-m.Result()
		if !ok {
			if exitedOnItsOwn(ctx, srv, opts.Stopping) {
				logger.Warn("Notebook server did not announce a URL", "log", srv.LogPath())
			} else {
				logger.Debug("Stopped watching for the notebook URL")
			}
			return
		}

		logger.Info("Notebook server is ready", "url", match.URL, "port", match.Port)
		opts.Bus.Publish(events.ConnectionInfoEvent{
			URL:       match.URL,
			Port:      match.Port,
			Token:     match.Token,
			Timestamp: time.Now(),
		})

		if opts.Out != nil {
			fmt.Fprintln(opts.Out, RenderBanner(Access{
				Port:    match.Port,
				Token:   match.Token,
				Host:    opts.Host,
				LogPath: srv.LogPath(),
			}))
		}
	}()

	return m
}

// exitedOnItsOwn reports whether the server exited while nobody was shutting
// it down.
func exitedOnItsOwn(ctx context.Context, srv Server, stopping <-chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-stopping:
		return false
	default:
	}
	select {
	case <-srv.Done():
		return true
	default:
		return false
	}
}
