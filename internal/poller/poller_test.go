package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLot struct {
	id        string
	err       error
	delay     time.Duration
	ticks     atomic.Int64
	refreshes atomic.Int64

	mu       sync.Mutex
	inFlight *atomic.Int64
	maxSeen  *atomic.Int64
}

func (l *fakeLot) LotID() string { return l.id }
func (l *fakeLot) Tick()         { l.ticks.Add(1) }

func (l *fakeLot) Refresh(ctx context.Context) error {
	if l.inFlight != nil {
		n := l.inFlight.Add(1)
		defer l.inFlight.Add(-1)
		l.mu.Lock()
		if n > l.maxSeen.Load() {
			l.maxSeen.Store(n)
		}
		l.mu.Unlock()
	}
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.refreshes.Add(1)
	return l.err
}

func source(lots ...*fakeLot) LotSource {
	return LotSourceFunc(func() []Lot {
		out := make([]Lot, len(lots))
		for i, l := range lots {
			out[i] = l
		}
		return out
	})
}

func TestPoller_RefreshAll(t *testing.T) {
	a := &fakeLot{id: "lot-a"}
	b := &fakeLot{id: "lot-b", err: errors.New("store unavailable")}
	c := &fakeLot{id: "lot-c"}

	p := New(DefaultConfig(), source(a, b, c), nil)
	p.RefreshAll(context.Background())

	for _, l := range []*fakeLot{a, b, c} {
		if got := l.refreshes.Load(); got != 1 {
			t.Errorf("%s refreshes = %d, want 1", l.id, got)
		}
	}

	stats := p.Stats()
	if stats.RefreshCycles != 1 {
		t.Errorf("RefreshCycles = %d, want 1", stats.RefreshCycles)
	}
	if stats.Refreshed != 2 {
		t.Errorf("Refreshed = %d, want 2", stats.Refreshed)
	}
	if stats.RefreshErrors != 1 {
		t.Errorf("RefreshErrors = %d, want 1", stats.RefreshErrors)
	}
}

func TestPoller_RefreshConcurrencyLimit(t *testing.T) {
	var inFlight, maxSeen atomic.Int64
	var lots []*fakeLot
	for i := 0; i < 10; i++ {
		lots = append(lots, &fakeLot{
			id:       "lot",
			delay:    20 * time.Millisecond,
			inFlight: &inFlight,
			maxSeen:  &maxSeen,
		})
	}

	cfg := DefaultConfig()
	cfg.Concurrency = 3
	p := New(cfg, source(lots...), nil)
	p.RefreshAll(context.Background())

	if got := maxSeen.Load(); got > 3 {
		t.Errorf("max concurrent refreshes = %d, want <= 3", got)
	}
	if got := p.Stats().Refreshed; got != 10 {
		t.Errorf("Refreshed = %d, want 10", got)
	}
}

func TestPoller_RefreshTimeout(t *testing.T) {
	slow := &fakeLot{id: "slow", delay: time.Second}

	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := New(cfg, source(slow), nil)

	start := time.Now()
	p.RefreshAll(context.Background())
	if time.Since(start) > 500*time.Millisecond {
		t.Error("refresh did not honour the per-lot timeout")
	}
	if got := p.Stats().RefreshErrors; got != 1 {
		t.Errorf("RefreshErrors = %d, want 1", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	a := &fakeLot{id: "lot-a"}

	cfg := Config{
		TickInterval:    5 * time.Millisecond,
		RefreshInterval: 10 * time.Millisecond,
		Concurrency:     2,
		Timeout:         time.Second,
	}
	p := New(cfg, source(a), nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.ticks.Load() < 3 || a.refreshes.Load() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("ticks = %d, refreshes = %d", a.ticks.Load(), a.refreshes.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	ticks := a.ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if a.ticks.Load() != ticks {
		t.Error("ticks continued after Stop")
	}
}

func TestPoller_RefreshDisabled(t *testing.T) {
	a := &fakeLot{id: "lot-a"}

	p := New(Config{TickInterval: 5 * time.Millisecond}, source(a), nil)
	p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	p.Stop(context.Background())

	if a.refreshes.Load() != 0 {
		t.Errorf("refreshes = %d with refresh disabled", a.refreshes.Load())
	}
	if a.ticks.Load() == 0 {
		t.Error("no ticks")
	}
}

func TestPoller_NoLots(t *testing.T) {
	p := New(DefaultConfig(), source(), nil)
	p.RefreshAll(context.Background())
	if got := p.Stats().RefreshCycles; got != 0 {
		t.Errorf("RefreshCycles = %d, want 0", got)
	}
}
