package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/model"
	"github.com/sanlk21/smartrice-bidding/internal/router"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func update(lotID, offerID string, amount int64, seq int64) model.BidUpdate {
	return model.BidUpdate{
		LotID:     lotID,
		OfferID:   offerID,
		BidderID:  "buyer-1",
		Amount:    decimal.NewFromInt(amount),
		Timestamp: t0.Add(time.Duration(seq) * time.Second),
		Seq:       seq,
	}
}

type fakeFetcher struct {
	mu     sync.Mutex
	detail *model.BidDetail
	err    error
	calls  int
}

func (f *fakeFetcher) GetBid(ctx context.Context, lotID string) (*model.BidDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.detail, f.err
}

func TestOfferWriter_FlushOnStop(t *testing.T) {
	db := newFakeDB()
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	w := NewOfferWriter(cfg, db, nil, nil, nil)
	assert.NoError(t, w.Start(context.Background()))

	w.HandleBidUpdate(update("lot-1", "o-1", 150, 1))
	w.HandleBidUpdate(update("lot-1", "o-2", 160, 2))
	w.HandleBidUpdate(update("lot-2", "o-3", 90, 1))

	assert.NoError(t, w.Stop(context.Background()))

	check.Equal(t, 3, db.count())
	stats := w.Stats()
	check.Equal(t, int64(3), stats.Received)
	check.Equal(t, int64(3), stats.Inserts)
	check.Equal(t, int64(0), stats.Conflicts)

	row := db.row("o-2")
	assert.NotNil(t, row)
	check.Equal(t, "lot-1", row[1].(string))
	check.Equal(t, "160.00", row[3].(string))
	check.Equal(t, int64(2), row[5].(int64))
}

func TestOfferWriter_FlushesFullBatch(t *testing.T) {
	db := newFakeDB()
	cfg := Config{BatchSize: 2, BufferSize: 8}
	w := NewOfferWriter(cfg, db, nil, nil, nil)
	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	w.HandleBidUpdate(update("lot-1", "o-1", 150, 1))
	w.HandleBidUpdate(update("lot-1", "o-2", 160, 2))

	deadline := time.Now().Add(2 * time.Second)
	for db.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	check.Equal(t, 2, db.count())
}

func TestOfferWriter_DuplicatesCountedAsConflicts(t *testing.T) {
	db := newFakeDB()
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	w := NewOfferWriter(cfg, db, nil, nil, nil)
	assert.NoError(t, w.Start(context.Background()))

	u := update("lot-1", "o-1", 150, 1)
	w.HandleBidUpdate(u)
	w.HandleBidUpdate(u)

	assert.NoError(t, w.Stop(context.Background()))

	check.Equal(t, 1, db.count())
	stats := w.Stats()
	check.Equal(t, int64(1), stats.Inserts)
	check.Equal(t, int64(1), stats.Conflicts)
}

func TestOfferWriter_BatchErrorCounted(t *testing.T) {
	db := newFakeDB()
	db.batchErr = errors.New("connection reset")
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	w := NewOfferWriter(cfg, db, nil, nil, nil)
	assert.NoError(t, w.Start(context.Background()))

	w.HandleBidUpdate(update("lot-1", "o-1", 150, 1))
	assert.NoError(t, w.Stop(context.Background()))

	stats := w.Stats()
	check.Equal(t, int64(1), stats.Errors)
	check.Equal(t, int64(0), stats.Inserts)
}

func TestOfferWriter_BackfillOnResync(t *testing.T) {
	db := newFakeDB()
	fetcher := &fakeFetcher{detail: &model.BidDetail{
		Offers: []model.Offer{
			{ID: "o-1", Amount: decimal.NewFromInt(150), SubmittedAt: t0, Seq: 1},
			{ID: "o-2", LotID: "lot-1", Amount: decimal.NewFromInt(160), SubmittedAt: t0, Seq: 2},
		},
	}}
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	cfg.Backfill = true
	w := NewOfferWriter(cfg, db, fetcher, nil, nil)
	assert.NoError(t, w.Start(context.Background()))

	// Already archived from the push stream.
	w.HandleBidUpdate(update("lot-1", "o-1", 150, 1))
	w.HandleResync("lot-1", router.ResyncSequenceGap)

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Backfills == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.NoError(t, w.Stop(context.Background()))

	check.Equal(t, 1, fetcher.calls)
	check.Equal(t, 2, db.count())
	check.Equal(t, "lot-1", db.row("o-1")[1].(string))
	check.Equal(t, int64(1), w.Stats().Conflicts)
}

func TestOfferWriter_ResyncIgnoredWithoutBackfill(t *testing.T) {
	fetcher := &fakeFetcher{detail: &model.BidDetail{}}
	w := NewOfferWriter(DefaultConfig(), newFakeDB(), fetcher, nil, nil)
	assert.NoError(t, w.Start(context.Background()))

	w.HandleResync("lot-1", router.ResyncReconnect)
	assert.NoError(t, w.Stop(context.Background()))

	check.Equal(t, 0, fetcher.calls)
}

func TestOfferWriter_DropsAfterStop(t *testing.T) {
	db := newFakeDB()
	w := NewOfferWriter(DefaultConfig(), db, nil, nil, nil)
	assert.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop(context.Background()))

	w.HandleBidUpdate(update("lot-1", "o-1", 150, 1))

	check.Equal(t, int64(0), w.Stats().Received)
	check.Equal(t, 0, db.count())
}

func TestOfferID(t *testing.T) {
	t.Run("server id wins", func(t *testing.T) {
		check.Equal(t, "o-9", offerID(model.Offer{ID: "o-9", LotID: "lot-1"}))
	})

	t.Run("derived id is stable", func(t *testing.T) {
		o := model.Offer{LotID: "lot-1", Amount: decimal.NewFromInt(150), SubmittedAt: t0, Seq: 4}
		check.Equal(t, offerID(o), offerID(o))
		check.NotEqual(t, "", offerID(o))
	})

	t.Run("derived id depends on sequence", func(t *testing.T) {
		a := model.Offer{LotID: "lot-1", Amount: decimal.NewFromInt(150), SubmittedAt: t0, Seq: 4}
		b := a
		b.Seq = 5
		check.NotEqual(t, offerID(a), offerID(b))
	})
}

func TestEnsureSchema(t *testing.T) {
	db := newFakeDB()
	assert.NoError(t, EnsureSchema(context.Background(), db))
	check.Equal(t, 1, len(db.execSQL))
}
