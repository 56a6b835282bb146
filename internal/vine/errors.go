package vine

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/floability/internal/monitor"
)

// errorMarkers pick error lines out of the factory log. stdout and stderr
// share one file, so lines are selected by content.
var errorMarkers = []string{"error", "fatal", "failed"}

// Factory is the part of a launched worker factory WatchErrors needs.
type Factory interface {
	LogPath() string
	Done() <-chan struct{}
}

// WatchErrors follows the factory log and reports every error line at warn
// level until the factory exits or ctx ends.
func WatchErrors(ctx context.Context, f Factory, poll time.Duration, logger *slog.Logger) *monitor.Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	m := monitor.New(f.LogPath(), monitor.ContainsAny(errorMarkers...),
		monitor.WithPollInterval(poll),
		monitor.WithStopOn(f.Done()),
		monitor.WithLogger(logger),
		monitor.WithEach(func(match monitor.Match) {
			logger.Warn("vine_factory error", "line", match.Line, "log", f.LogPath())
		}),
	)
	m.Start(ctx)
	return m
}
