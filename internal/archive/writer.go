package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sanlk21/smartrice-bidding/internal/buffer"
	"github.com/sanlk21/smartrice-bidding/internal/channel"
	"github.com/sanlk21/smartrice-bidding/internal/metrics"
	"github.com/sanlk21/smartrice-bidding/internal/model"
	"github.com/sanlk21/smartrice-bidding/internal/router"
)

const insertOffer = `
	INSERT INTO offers (offer_id, lot_id, bidder_id, amount, submitted_at, seq, idempotency_key, received_at)
	VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
	ON CONFLICT (offer_id) DO NOTHING
`

// OfferWriter archives accepted offers. It is a router.LotHandler meant to
// be registered with WatchAll.
type OfferWriter struct {
	cfg     Config
	db      DB
	fetcher Fetcher
	logger  *slog.Logger
	metrics *metrics.Registry
	now     func() time.Time

	input *buffer.Growable[offerRow]

	batch    []offerRow
	batchMu  sync.Mutex
	stats    Stats
	stopping bool

	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOfferWriter creates a writer. fetcher may be nil when backfill is off.
func NewOfferWriter(cfg Config, db DB, fetcher Fetcher, logger *slog.Logger, reg *metrics.Registry) *OfferWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &OfferWriter{
		cfg:     cfg,
		db:      db,
		fetcher: fetcher,
		logger:  logger,
		metrics: reg,
		now:     time.Now,
		input:   buffer.New[offerRow](cfg.BufferSize),
		batch:   make([]offerRow, 0, cfg.BatchSize),
		stopCh:  make(chan struct{}),
		ctx:     context.Background(),
	}
}

// Start begins consuming offers and writing them to the database.
func (w *OfferWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	if w.cfg.FlushInterval > 0 {
		w.wg.Add(1)
		go w.flushLoop()
	}

	w.logger.Info("offer writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"backfill", w.cfg.Backfill && w.fetcher != nil,
	)
	return nil
}

// Stop drains queued offers, flushes them and shuts down.
func (w *OfferWriter) Stop(ctx context.Context) error {
	w.batchMu.Lock()
	if w.stopping {
		w.batchMu.Unlock()
		return nil
	}
	w.stopping = true
	w.batchMu.Unlock()

	w.logger.Info("stopping offer writer")

	// Closing the input lets the consumer drain what is queued and exit.
	close(w.stopCh)
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("offer writer stop timed out")
	}

	if w.cancel != nil {
		w.cancel()
	}

	// Final flush on a fresh context; the run context is cancelled.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, row := range w.input.DrainTo(0) {
		w.add(row)
	}
	w.flush(flushCtx)

	w.logger.Info("offer writer stopped")
	return nil
}

// Stats returns current counters.
func (w *OfferWriter) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// Enqueue queues an accepted offer for archiving.
func (w *OfferWriter) Enqueue(o model.Offer) {
	if !w.input.Send(toRow(o, w.now())) {
		w.logger.Debug("offer writer closed, offer dropped", "lot_id", o.LotID)
		return
	}
	w.batchMu.Lock()
	w.stats.Received++
	w.batchMu.Unlock()
}

// HandleBidUpdate implements router.LotHandler.
func (w *OfferWriter) HandleBidUpdate(u model.BidUpdate) {
	w.Enqueue(u.Offer())
}

// HandleLotStatus implements router.LotHandler.
func (w *OfferWriter) HandleLotStatus(change model.LotStatusChange) {}

// HandleResync implements router.LotHandler. With backfill enabled the lot's
// full history is re-fetched and archived; existing rows are skipped.
func (w *OfferWriter) HandleResync(lotID string, reason router.ResyncReason) {
	if !w.cfg.Backfill || w.fetcher == nil {
		return
	}

	w.batchMu.Lock()
	if w.stopping {
		w.batchMu.Unlock()
		return
	}
	w.wg.Add(1)
	w.batchMu.Unlock()

	go func() {
		defer w.wg.Done()
		if err := w.Backfill(w.ctx, lotID); err != nil {
			w.logger.Warn("backfill failed", "lot_id", lotID, "reason", reason, "error", err)
		}
	}()
}

// HandleConnection implements router.LotHandler.
func (w *OfferWriter) HandleConnection(ev channel.ConnectionEvent) {
	if ev.Status == channel.StatusFailed {
		w.logger.Error("push channel failed, archive is no longer receiving offers", "error", ev.Err)
	}
}

// Backfill fetches lotID's history and queues every offer.
func (w *OfferWriter) Backfill(ctx context.Context, lotID string) error {
	detail, err := w.fetcher.GetBid(ctx, lotID)
	if err != nil {
		return err
	}
	for _, o := range detail.Offers {
		if o.LotID == "" {
			o.LotID = lotID
		}
		w.Enqueue(o)
	}

	w.batchMu.Lock()
	w.stats.Backfills++
	w.batchMu.Unlock()

	w.logger.Debug("lot backfilled",
		"lot_id", lotID,
		"offers", len(detail.Offers),
		"highest", detail.HighestAmount().StringFixed(2),
	)
	return nil
}

// consumeLoop moves queued rows into the batch until the input is closed.
func (w *OfferWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		row, ok := w.input.Receive()
		if !ok {
			return
		}
		if w.add(row) {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *OfferWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends row and reports whether the batch is full.
func (w *OfferWriter) add(row offerRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database.
func (w *OfferWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]offerRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.ArchiveError()
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	w.metrics.ArchiveFlush(inserted, conflicts)

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed offers",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *OfferWriter) batchInsert(ctx context.Context, rows []offerRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertOffer,
			r.OfferID, r.LotID, r.BidderID, r.Amount, r.SubmittedAt, r.Seq, r.IdempotencyKey, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
