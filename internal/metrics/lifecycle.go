// Package metrics provides Prometheus metrics for the session lifecycle.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/floability/internal/events"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	processesRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floability",
		Subsystem: "session",
		Name:      "processes_registered_total",
		Help:      "Processes handed to the lifecycle registry",
	}, []string{"role"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floability",
		Subsystem: "session",
		Name:      "process_exits_total",
		Help:      "Managed processes observed exiting before shutdown",
	}, []string{"role", "critical"})

	signalsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floability",
		Subsystem: "shutdown",
		Name:      "signals_total",
		Help:      "Signal deliveries to managed process groups",
	}, []string{"phase", "signal", "result"})

	reapTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floability",
		Subsystem: "shutdown",
		Name:      "reap_timeouts_total",
		Help:      "Processes still running after the final reap wait",
	}, []string{"role"})

	directoriesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floability",
		Subsystem: "shutdown",
		Name:      "directories_removed_total",
		Help:      "Directory removal attempts",
	}, []string{"result"})

	shutdownPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "floability",
		Subsystem: "shutdown",
		Name:      "phase",
		Help:      "1 for the shutdown phase currently running",
	}, []string{"phase"})

	notebookPort = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "floability",
		Subsystem: "notebook",
		Name:      "port",
		Help:      "Port the notebook server announced, 0 until known",
	})
)

func result(errText string) string {
	if errText == "" {
		return ResultOK
	}
	return ResultError
}

// RecordProcessRegistered counts a registered process.
func RecordProcessRegistered(role string) {
	processesRegistered.WithLabelValues(role).Inc()
}

// RecordProcessExit counts a process the supervisory loop saw exit.
func RecordProcessExit(role string, critical bool) {
	processExits.WithLabelValues(role, strconv.FormatBool(critical)).Inc()
}

// RecordSignal counts one delivery attempt. errText is empty on success.
func RecordSignal(phase, signal, errText string) {
	signalsSent.WithLabelValues(phase, signal, result(errText)).Inc()
}

// RecordReap counts reap timeouts.
func RecordReap(role string, timedOut bool) {
	if timedOut {
		reapTimeouts.WithLabelValues(role).Inc()
	}
}

// RecordDirectoryRemoved counts one removal attempt.
func RecordDirectoryRemoved(errText string) {
	directoriesRemoved.WithLabelValues(result(errText)).Inc()
}

// SetShutdownPhase marks phase as the current one.
func SetShutdownPhase(phase string) {
	shutdownPhase.Reset()
	shutdownPhase.WithLabelValues(phase).Set(1)
}

// SetNotebookPort records the announced notebook port.
func SetNotebookPort(port int) {
	notebookPort.Set(float64(port))
}

// Subscribe feeds the lifecycle metrics from bus.
// Returns a function that removes every subscription.
func Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.ProcessRegisteredEvent) { RecordProcessRegistered(e.Role) }),
		bus.Subscribe(func(e events.ProcessExitedEvent) { RecordProcessExit(e.Role, e.Critical) }),
		bus.Subscribe(func(e events.SignalSentEvent) { RecordSignal(e.Phase, e.Signal, e.Error) }),
		bus.Subscribe(func(e events.ProcessReapedEvent) { RecordReap(e.Role, e.TimedOut) }),
		bus.Subscribe(func(e events.DirectoryRemovedEvent) { RecordDirectoryRemoved(e.Error) }),
		bus.Subscribe(func(e events.ShutdownPhaseEvent) { SetShutdownPhase(e.Phase) }),
		bus.Subscribe(func(e events.ConnectionInfoEvent) { SetNotebookPort(e.Port) }),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
