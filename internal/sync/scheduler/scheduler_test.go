package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	syncpkg "github.com/keepsakehq/keepsake-client/internal/sync"
	"github.com/keepsakehq/keepsake-client/internal/sync/netmon"
)

type fakeEngine struct {
	drains  atomic.Int64
	counts  atomic.Int64
	drained chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{drained: make(chan struct{}, 16)}
}

func (f *fakeEngine) Drain(ctx context.Context) (*syncpkg.DrainResult, error) {
	f.drains.Add(1)
	select {
	case f.drained <- struct{}{}:
	default:
	}
	return &syncpkg.DrainResult{}, nil
}

func (f *fakeEngine) RefreshPendingCount() (int, error) {
	f.counts.Add(1)
	return 0, nil
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// Long intervals so only explicit triggers and transitions drive drains.
func quietConfig() *Config {
	return &Config{
		DrainInterval: time.Hour,
		CountInterval: time.Hour,
		DrainTimeout:  time.Minute,
	}
}

func TestOnlineTransitionTriggersOneDrain(t *testing.T) {
	engine := newFakeEngine()
	monitor := netmon.New(nil)
	s := New(engine, monitor, quietConfig())

	s.Start(context.Background())
	defer s.Stop()

	monitor.SetOnline(false)
	monitor.SetOnline(true)

	waitFor(t, engine.drained, "drain after reconnect")

	// Give a spurious second drain time to show up.
	time.Sleep(50 * time.Millisecond)
	if got := engine.drains.Load(); got != 1 {
		t.Errorf("drains = %d, want exactly 1 per transition", got)
	}
}

func TestGoingOfflineDoesNotDrain(t *testing.T) {
	engine := newFakeEngine()
	monitor := netmon.New(nil)
	s := New(engine, monitor, quietConfig())

	s.Start(context.Background())
	defer s.Stop()

	monitor.SetOnline(false)
	time.Sleep(50 * time.Millisecond)

	if got := engine.drains.Load(); got != 0 {
		t.Errorf("drains = %d, want 0 after going offline", got)
	}
}

func TestTriggerSyncSkippedWhileOffline(t *testing.T) {
	engine := newFakeEngine()
	monitor := netmon.New(nil)
	monitor.SetOnline(false)
	s := New(engine, monitor, quietConfig())

	s.Start(context.Background())
	defer s.Stop()

	s.TriggerSync()
	time.Sleep(50 * time.Millisecond)

	if got := engine.drains.Load(); got != 0 {
		t.Errorf("drains = %d, want 0 while offline", got)
	}
}

func TestTriggerSyncRunsDrain(t *testing.T) {
	engine := newFakeEngine()
	monitor := netmon.New(nil)
	s := New(engine, monitor, quietConfig())

	s.Start(context.Background())
	defer s.Stop()

	s.TriggerSync()
	waitFor(t, engine.drained, "manually triggered drain")
}

func TestPeriodicDrainAndCount(t *testing.T) {
	engine := newFakeEngine()
	monitor := netmon.New(nil)
	s := New(engine, monitor, &Config{
		DrainInterval: 10 * time.Millisecond,
		CountInterval: 10 * time.Millisecond,
		DrainTimeout:  time.Minute,
	})

	s.Start(context.Background())
	waitFor(t, engine.drained, "periodic drain")
	s.Stop()

	if engine.counts.Load() == 0 {
		t.Error("pending count never refreshed")
	}

	// Loops are down; nothing further should run.
	drains := engine.drains.Load()
	time.Sleep(50 * time.Millisecond)
	if engine.drains.Load() != drains {
		t.Error("drain loop survived Stop")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	engine := newFakeEngine()
	monitor := netmon.New(nil)
	s := New(engine, monitor, quietConfig())

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // second start is a no-op
	s.Stop()
	s.Stop() // second stop is a no-op
}
