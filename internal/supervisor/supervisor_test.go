package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/floability/internal/events"
	"github.com/smazurov/floability/internal/lifecycle"
	"github.com/smazurov/floability/internal/process"
)

type fakeProcess struct {
	pid     int
	role    process.Role
	exited  atomic.Bool
	signals atomic.Int32
}

func (f *fakeProcess) PID() int                   { return f.pid }
func (f *fakeProcess) PGID() int                  { return f.pid }
func (f *fakeProcess) Role() process.Role         { return f.role }
func (f *fakeProcess) LogPath() string            { return "/dev/null" }
func (f *fakeProcess) Alive() bool                { return !f.exited.Load() }
func (f *fakeProcess) StopSignal() syscall.Signal { return syscall.SIGINT }
func (f *fakeProcess) ExitCode() int              { return 7 }

func (f *fakeProcess) SignalGroup(syscall.Signal) error {
	f.signals.Add(1)
	f.exited.Store(true)
	return nil
}

func (f *fakeProcess) Wait(time.Duration) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, bus *events.Bus, procs ...*fakeProcess) (*lifecycle.Coordinator, *Supervisor) {
	t.Helper()
	reg := lifecycle.NewRegistry(bus, quietLogger())
	for _, p := range procs {
		require.NoError(t, reg.RegisterProcess(p))
	}
	coord := lifecycle.NewCoordinator(reg, lifecycle.Options{
		GracePeriod: 10 * time.Millisecond,
		ReapTimeout: 10 * time.Millisecond,
		Logger:      quietLogger(),
		Bus:         bus,
	})
	sup := New(coord, Options{PollInterval: 10 * time.Millisecond, Logger: quietLogger(), Bus: bus})
	return coord, sup
}

func runAsync(ctx context.Context, sup *Supervisor) <-chan Reason {
	out := make(chan Reason, 1)
	go func() { out <- sup.Run(ctx) }()
	return out
}

func waitReason(t *testing.T, ch <-chan Reason) Reason {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not return")
		return ""
	}
}

func TestCriticalExitEndsSession(t *testing.T) {
	factory := &fakeProcess{pid: 10, role: process.RoleWorkerFactory}
	server := &fakeProcess{pid: 11, role: process.RoleNotebookServer}
	coord, sup := setup(t, nil, factory, server)

	done := runAsync(context.Background(), sup)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateRunning, sup.State())

	factory.exited.Store(true)

	assert.Equal(t, ReasonCriticalExit, waitReason(t, done))
	assert.Equal(t, StateStopped, sup.State())
	assert.Equal(t, lifecycle.StateDone, coord.State())
	// The notebook server was still running and got signalled by shutdown.
	assert.Equal(t, int32(1), server.signals.Load())
	assert.Equal(t, int32(0), factory.signals.Load())
}

func TestNonCriticalExitIsReportedOnce(t *testing.T) {
	bus := events.New()
	exits := make(chan any, 8)
	defer events.SubscribeToChannel[events.ProcessExitedEvent](bus, exits)()

	factory := &fakeProcess{pid: 20, role: process.RoleWorkerFactory}
	server := &fakeProcess{pid: 21, role: process.RoleNotebookServer}
	server.exited.Store(true)
	coord, sup := setup(t, bus, factory, server)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, sup)

	// Several polls go by while the session keeps running.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateRunning, sup.State())
	assert.Equal(t, lifecycle.StateIdle, coord.State())

	cancel()
	assert.Equal(t, ReasonInterrupted, waitReason(t, done))

	select {
	case ev := <-exits:
		e := ev.(events.ProcessExitedEvent)
		assert.Equal(t, "notebook-server", e.Role)
		assert.False(t, e.Critical)
		assert.Equal(t, 7, e.ExitCode)
	case <-time.After(time.Second):
		t.Fatal("missing exit event")
	}
	select {
	case ev := <-exits:
		t.Fatalf("unexpected second exit event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNoCriticalProcessRunsUntilInterrupted(t *testing.T) {
	server := &fakeProcess{pid: 30, role: process.RoleNotebookServer}
	coord, sup := setup(t, nil, server)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, sup)

	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("supervisor returned without interruption")
	default:
	}

	cancel()
	assert.Equal(t, ReasonInterrupted, waitReason(t, done))
	assert.Equal(t, lifecycle.StateDone, coord.State())
}

func TestShutdownStartedElsewhere(t *testing.T) {
	factory := &fakeProcess{pid: 40, role: process.RoleWorkerFactory}
	coord, sup := setup(t, nil, factory)

	done := runAsync(context.Background(), sup)
	time.Sleep(20 * time.Millisecond)

	// The signal front-end would do this.
	assert.True(t, coord.Shutdown())

	// The factory died because of the shutdown, not on its own.
	assert.Equal(t, ReasonInterrupted, waitReason(t, done))
}

func TestAlreadyCancelledContext(t *testing.T) {
	factory := &fakeProcess{pid: 50, role: process.RoleWorkerFactory}
	coord, sup := setup(t, nil, factory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, ReasonInterrupted, sup.Run(ctx))
	assert.Equal(t, lifecycle.StateDone, coord.State())
	assert.Equal(t, int32(1), factory.signals.Load())
}
