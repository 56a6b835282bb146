package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/floability/internal/events"
)

func TestRecordSignal(t *testing.T) {
	ok := signalsSent.WithLabelValues("cooperative", "SIGINT", ResultOK)
	failed := signalsSent.WithLabelValues("force", "SIGTERM", ResultError)
	beforeOK := testutil.ToFloat64(ok)
	beforeFailed := testutil.ToFloat64(failed)

	RecordSignal("cooperative", "SIGINT", "")
	RecordSignal("force", "SIGTERM", "no such process")

	if got := testutil.ToFloat64(ok) - beforeOK; got != 1 {
		t.Errorf("ok deliveries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failed) - beforeFailed; got != 1 {
		t.Errorf("failed deliveries = %v, want 1", got)
	}
}

func TestRecordReapCountsOnlyTimeouts(t *testing.T) {
	c := reapTimeouts.WithLabelValues("notebook-server")
	before := testutil.ToFloat64(c)

	RecordReap("notebook-server", false)
	RecordReap("notebook-server", true)

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("reap timeouts = %v, want 1", got)
	}
}

func TestSetShutdownPhaseKeepsOneActive(t *testing.T) {
	SetShutdownPhase("cooperative")
	SetShutdownPhase("force")

	if got := testutil.CollectAndCount(shutdownPhase); got != 1 {
		t.Errorf("phase series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(shutdownPhase.WithLabelValues("force")); got != 1 {
		t.Errorf("force phase = %v, want 1", got)
	}
}

func TestSubscribeFeedsMetrics(t *testing.T) {
	bus := events.New()
	unsub := Subscribe(bus)
	defer unsub()

	c := processExits.WithLabelValues("worker-factory", "true")
	before := testutil.ToFloat64(c)

	bus.Publish(events.ProcessExitedEvent{Role: "worker-factory", Critical: true})
	bus.Publish(events.ConnectionInfoEvent{Port: 8899})

	deadline := time.Now().Add(time.Second)
	for {
		if testutil.ToFloat64(c)-before == 1 && testutil.ToFloat64(notebookPort) == 8899 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics not updated: exits=%v port=%v",
				testutil.ToFloat64(c)-before, testutil.ToFloat64(notebookPort))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
