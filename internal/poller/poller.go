package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Lot is an open lot view the poller keeps current.
type Lot interface {
	LotID() string
	Tick()
	Refresh(ctx context.Context) error
}

// LotSource provides the lots to poll.
type LotSource interface {
	ActiveLots() []Lot
}

// LotSourceFunc is a function adapter for LotSource.
type LotSourceFunc func() []Lot

func (f LotSourceFunc) ActiveLots() []Lot {
	return f()
}

// Config holds poller configuration.
type Config struct {
	TickInterval    time.Duration // Time-left recompute interval (default: 1s)
	RefreshInterval time.Duration // Authoritative re-fetch interval, 0 disables (default: 1m)
	Concurrency     int           // Max concurrent re-fetches (default: 8)
	Timeout         time.Duration // Per-lot re-fetch timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Second,
		RefreshInterval: time.Minute,
		Concurrency:     8,
		Timeout:         10 * time.Second,
	}
}

// Stats contains runtime counters.
type Stats struct {
	Ticks         int64
	RefreshCycles int64
	Refreshed     int64
	RefreshErrors int64
}

// Poller ticks and re-fetches open lots.
type Poller struct {
	cfg    Config
	lots   LotSource
	logger *slog.Logger

	ticks         atomic.Int64
	refreshCycles atomic.Int64
	refreshed     atomic.Int64
	refreshErrors atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, lots LotSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Poller{
		cfg:    cfg,
		lots:   lots,
		logger: logger,
	}
}

// Start begins the tick and refresh loops.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if p.cfg.TickInterval > 0 {
		p.wg.Add(1)
		go p.tickLoop()
	}
	if p.cfg.RefreshInterval > 0 {
		p.wg.Add(1)
		go p.refreshLoop()
	}

	p.logger.Info("lot poller started",
		"tick_interval", p.cfg.TickInterval,
		"refresh_interval", p.cfg.RefreshInterval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("lot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:         p.ticks.Load(),
		RefreshCycles: p.refreshCycles.Load(),
		Refreshed:     p.refreshed.Load(),
		RefreshErrors: p.refreshErrors.Load(),
	}
}

func (p *Poller) tickLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			for _, lot := range p.lots.ActiveLots() {
				lot.Tick()
			}
			p.ticks.Add(1)
		}
	}
}

// refreshLoop re-fetches on an interval. The first cycle waits one interval,
// since lots are loaded when they are opened.
func (p *Poller) refreshLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.RefreshAll(p.ctx)
		}
	}
}

// RefreshAll re-fetches every active lot with bounded concurrency. A lot that
// fails to refresh is logged and skipped.
func (p *Poller) RefreshAll(ctx context.Context) {
	start := time.Now()

	lots := p.lots.ActiveLots()
	if len(lots) == 0 {
		p.logger.Debug("no open lots to refresh")
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	var fetched, failed atomic.Int64

	for _, lot := range lots {
		if ctx.Err() != nil {
			break
		}
		lot := lot
		g.Go(func() error {
			if err := p.refreshLot(ctx, lot); err != nil {
				p.logger.Warn("failed to refresh lot",
					"lot_id", lot.LotID(),
					"error", err,
				)
				failed.Add(1)
				return nil
			}
			fetched.Add(1)
			return nil
		})
	}

	g.Wait()

	p.refreshCycles.Add(1)
	p.refreshed.Add(fetched.Load())
	p.refreshErrors.Add(failed.Load())

	p.logger.Debug("refresh cycle complete",
		"lots", len(lots),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

func (p *Poller) refreshLot(ctx context.Context, lot Lot) error {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	return lot.Refresh(ctx)
}
