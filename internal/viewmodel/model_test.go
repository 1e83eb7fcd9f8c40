package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/model"
	"github.com/sanlk21/smartrice-bidding/internal/validator"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	detail *model.BidDetail
	err    error
	calls  int
}

func (f *fakeFetcher) GetBid(ctx context.Context, lotID string) (*model.BidDetail, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func lotDetail(min float64, amounts ...float64) *model.BidDetail {
	d := &model.BidDetail{
		Lot: model.BidLot{
			ID:           "lot-1",
			FarmerID:     "farmer-1",
			Commodity:    model.Commodity{Variety: "Nadu", QuantityKg: decimal.NewFromInt(500), Location: "Polonnaruwa"},
			MinimumPrice: dec(min),
			Status:       model.LotActive,
			ExpiresAt:    t0.Add(time.Hour),
		},
	}
	for i, a := range amounts {
		d.Offers = append(d.Offers, model.Offer{
			ID:          "hist-" + string(rune('a'+i)),
			LotID:       "lot-1",
			Amount:      dec(a),
			SubmittedAt: t0.Add(time.Duration(i) * time.Second),
			Seq:         int64(i + 1),
		})
	}
	d.TotalBids = len(amounts)
	return d
}

func remote(amount float64) model.Offer {
	return model.Offer{LotID: "lot-1", BidderID: "buyer-x", Amount: dec(amount), SubmittedAt: t0}
}

func loaded(t *testing.T, detail *model.BidDetail, opts ...Option) *Model {
	t.Helper()
	clock := &fakeClock{now: t0}
	m := New("lot-1", append([]Option{WithClock(clock.Now)}, opts...)...)
	assert.NoError(t, m.Load(context.Background(), &fakeFetcher{detail: detail}))
	return m
}

func TestModel_LoadInstallsState(t *testing.T) {
	m := loaded(t, lotDetail(100, 110, 120, 130))
	snap := m.Snapshot()

	check.True(t, snap.Loaded)
	check.Equal(t, "130", snap.CurrentPrice.String())
	check.Equal(t, 3, len(snap.RecentOffers))
	check.Equal(t, "120", snap.MovingAverage.String())
	check.Equal(t, model.TrendUp, snap.Trend)
	check.Equal(t, 3, snap.TotalBids)
	check.Equal(t, time.Hour, snap.TimeLeft)
	check.Equal(t, model.LotActive, snap.Status)
}

func TestModel_LoadWithoutOffersUsesMinimumPrice(t *testing.T) {
	m := loaded(t, lotDetail(100))
	snap := m.Snapshot()

	check.Equal(t, "100", snap.CurrentPrice.String())
	check.Equal(t, model.TrendNeutral, snap.Trend)
	check.True(t, snap.MovingAverage.IsZero())
}

func TestModel_StaleRemoteOfferIgnored(t *testing.T) {
	m := loaded(t, lotDetail(100, 150))

	check.Equal(t, IgnoredStale, m.ApplyRemoteOffer(remote(140)))
	check.Equal(t, IgnoredStale, m.ApplyRemoteOffer(remote(150)))
	check.Equal(t, "150", m.Snapshot().CurrentPrice.String())
	check.Equal(t, 1, len(m.Snapshot().RecentOffers))
}

func TestModel_RecentOffersAndMovingAverage(t *testing.T) {
	m := loaded(t, lotDetail(100))

	for _, a := range []float64{110, 120, 130, 140, 150, 160} {
		check.Equal(t, Applied, m.ApplyRemoteOffer(remote(a)))
	}

	snap := m.Snapshot()
	check.Equal(t, RecentOffersSize, len(snap.RecentOffers))
	check.Equal(t, "120", snap.RecentOffers[0].Amount.String())
	check.Equal(t, "160", snap.RecentOffers[4].Amount.String())
	check.Equal(t, "140", snap.MovingAverage.String())
	check.Equal(t, model.TrendUp, snap.Trend)
	check.Equal(t, 6, snap.TotalBids)
}

func TestModel_CurrentPriceNeverDecreases(t *testing.T) {
	m := loaded(t, lotDetail(100))
	rng := rand.New(rand.NewSource(42))

	prev := m.Snapshot().CurrentPrice
	for i := 0; i < 500; i++ {
		amount := 50 + rng.Float64()*400
		offer := remote(amount)
		if rng.Intn(3) == 0 {
			offer.IdempotencyKey = fmt.Sprintf("k-%d", i)
			m.ApplyLocalOptimisticOffer(offer)
		} else {
			m.ApplyRemoteOffer(offer)
		}
		if i%50 == 0 {
			m.Reconcile(*lotDetail(100, amount))
		}

		cur := m.Snapshot().CurrentPrice
		if cur.LessThan(prev) {
			t.Fatalf("step %d: current price decreased from %s to %s", i, prev, cur)
		}
		prev = cur
	}
}

func TestModel_OptimisticConfirmedNotDoubleCounted(t *testing.T) {
	m := loaded(t, lotDetail(100, 120))

	local := remote(130)
	local.IdempotencyKey = "key-1"
	check.Equal(t, Applied, m.ApplyLocalOptimisticOffer(local))

	snap := m.Snapshot()
	check.Equal(t, 1, snap.PendingOptimistic)
	check.Equal(t, 2, snap.TotalBids)
	check.True(t, snap.RecentOffers[1].Optimistic)

	echo := remote(130)
	echo.ID = "offer-77"
	echo.IdempotencyKey = "key-1"
	check.Equal(t, Confirmed, m.ApplyRemoteOffer(echo))

	snap = m.Snapshot()
	check.Equal(t, 0, snap.PendingOptimistic)
	check.Equal(t, 2, snap.TotalBids)
	check.Equal(t, 2, len(snap.RecentOffers))
	check.False(t, snap.RecentOffers[1].Optimistic)
	check.Equal(t, "offer-77", snap.RecentOffers[1].ID)

	// A repeated echo is a duplicate.
	check.Equal(t, IgnoredStale, m.ApplyRemoteOffer(echo))
}

func TestModel_EchoBeforeSubmissionResponse(t *testing.T) {
	m := loaded(t, lotDetail(100))

	echo := remote(140)
	echo.IdempotencyKey = "key-2"
	check.Equal(t, Applied, m.ApplyRemoteOffer(echo))

	check.Equal(t, Confirmed, m.ApplyLocalOptimisticOffer(echo))
	snap := m.Snapshot()
	check.Equal(t, 1, snap.TotalBids)
	check.Equal(t, 0, snap.PendingOptimistic)
}

func TestModel_ConfirmationAfterBeingOutbid(t *testing.T) {
	m := loaded(t, lotDetail(100))

	local := remote(130)
	local.IdempotencyKey = "key-3"
	m.ApplyLocalOptimisticOffer(local)
	m.ApplyRemoteOffer(remote(150))

	echo := remote(130)
	echo.IdempotencyKey = "key-3"
	check.Equal(t, Confirmed, m.ApplyRemoteOffer(echo))
	check.Equal(t, "150", m.Snapshot().CurrentPrice.String())
	check.Equal(t, 2, m.Snapshot().TotalBids)
}

func TestModel_BuffersUntilLoaded(t *testing.T) {
	clock := &fakeClock{now: t0}
	m := New("lot-1", WithClock(clock.Now))

	check.Equal(t, Buffered, m.ApplyBidUpdate(model.BidUpdate{LotID: "lot-1", Amount: dec(125), TotalBids: 3}))
	check.Equal(t, Buffered, m.ApplyBidUpdate(model.BidUpdate{LotID: "lot-1", Amount: dec(135), TotalBids: 4}))
	m.SetLotStatus(model.LotStatusChange{LotID: "lot-1", Status: model.LotActive, ExpiresAt: t0.Add(2 * time.Hour)})
	check.False(t, m.Snapshot().Loaded)

	assert.NoError(t, m.Load(context.Background(), &fakeFetcher{detail: lotDetail(100, 110, 120)}))

	snap := m.Snapshot()
	check.Equal(t, "135", snap.CurrentPrice.String())
	check.Equal(t, 4, snap.TotalBids)
	check.Equal(t, 2*time.Hour, snap.TimeLeft)
}

func TestModel_LoadError(t *testing.T) {
	m := New("lot-1")
	boom := errors.New("connection refused")

	err := m.Load(context.Background(), &fakeFetcher{err: boom})

	var loadErr *LoadError
	assert.True(t, errors.As(err, &loadErr))
	check.Equal(t, "lot-1", loadErr.LotID)
	check.True(t, errors.Is(err, boom))
	check.False(t, m.Snapshot().Loaded)
	check.Equal(t, Buffered, m.ApplyRemoteOffer(remote(200)))

	err = m.Load(context.Background(), &fakeFetcher{})
	check.True(t, errors.As(err, &loadErr))
}

func TestModel_TickExpiresLot(t *testing.T) {
	clock := &fakeClock{now: t0}
	detail := lotDetail(100, 120)
	detail.Lot.ExpiresAt = t0.Add(2 * time.Second)

	m := New("lot-1", WithClock(clock.Now))
	assert.NoError(t, m.Load(context.Background(), &fakeFetcher{detail: detail}))

	clock.now = t0.Add(time.Second)
	m.Tick()
	check.Equal(t, time.Second, m.Snapshot().TimeLeft)
	check.False(t, m.Snapshot().Expired)

	clock.now = t0.Add(3 * time.Second)
	m.Tick()
	snap := m.Snapshot()
	check.True(t, snap.Expired)
	check.Equal(t, time.Duration(0), snap.TimeLeft)
	check.Equal(t, model.LotExpired, snap.Status)

	_, err := m.Validate(500)
	check.Equal(t, validator.CodeLotNotActive, validator.CodeOf(err))
}

func TestModel_StoreStatusTakesPrecedence(t *testing.T) {
	clock := &fakeClock{now: t0}
	m := New("lot-1", WithClock(clock.Now))
	assert.NoError(t, m.Load(context.Background(), &fakeFetcher{detail: lotDetail(100)}))

	m.SetLotStatus(model.LotStatusChange{LotID: "lot-1", Status: model.LotCompleted})
	check.Equal(t, model.LotCompleted, m.Snapshot().Status)
	check.False(t, m.Snapshot().Expired)

	// Locally expired but the store extended the lot.
	m.SetLotStatus(model.LotStatusChange{LotID: "lot-1", Status: model.LotActive})
	clock.now = t0.Add(2 * time.Hour)
	m.Tick()
	check.Equal(t, model.LotExpired, m.Snapshot().Status)

	m.SetLotStatus(model.LotStatusChange{LotID: "lot-1", Status: model.LotActive, ExpiresAt: t0.Add(3 * time.Hour)})
	check.Equal(t, model.LotActive, m.Snapshot().Status)
	check.Equal(t, time.Hour, m.Snapshot().TimeLeft)

	// A cancelled lot stays cancelled whatever the clock says.
	m.SetLotStatus(model.LotStatusChange{LotID: "lot-1", Status: model.LotCancelled})
	check.Equal(t, model.LotCancelled, m.Snapshot().Status)
}

func TestModel_ReconcileNeverLowersPrice(t *testing.T) {
	m := loaded(t, lotDetail(100, 120))
	m.ApplyRemoteOffer(remote(150))

	m.Reconcile(*lotDetail(100, 120, 140))
	check.Equal(t, "150", m.Snapshot().CurrentPrice.String())

	m.Reconcile(*lotDetail(100, 120, 140, 170))
	check.Equal(t, "170", m.Snapshot().CurrentPrice.String())
	check.Equal(t, 3, m.Snapshot().TotalBids)
}

func TestModel_ReconcileConfirmsPendingOptimistic(t *testing.T) {
	m := loaded(t, lotDetail(100))

	local := remote(130)
	local.IdempotencyKey = "key-9"
	m.ApplyLocalOptimisticOffer(local)

	detail := lotDetail(100, 130)
	detail.Offers[0].IdempotencyKey = "key-9"
	m.Reconcile(*detail)

	snap := m.Snapshot()
	check.Equal(t, 0, snap.PendingOptimistic)
	check.Equal(t, 1, snap.TotalBids)
	check.False(t, snap.RecentOffers[0].Optimistic)
}

func TestModel_ValidationInputReflectsState(t *testing.T) {
	detail := lotDetail(100, 120)
	detail.Lot.MinimumIncrement = decimal.NewNullDecimal(decimal.NewFromInt(10))
	m := loaded(t, detail)

	_, err := m.Validate(125)
	check.Equal(t, validator.CodeIncrementTooSmall, validator.CodeOf(err))

	amount, err := m.Validate(130)
	assert.NoError(t, err)
	check.Equal(t, "130", amount.String())
}

func TestModel_OnChange(t *testing.T) {
	var snaps []Snapshot
	m := loaded(t, lotDetail(100), WithOnChange(func(s Snapshot) { snaps = append(snaps, s) }))

	check.Equal(t, 1, len(snaps))
	m.ApplyRemoteOffer(remote(120))
	m.ApplyRemoteOffer(remote(110)) // stale, no notification
	m.Tick()

	check.Equal(t, 3, len(snaps))
	check.Equal(t, "120", snaps[1].CurrentPrice.String())
}

func TestModel_IgnoresOtherLots(t *testing.T) {
	m := loaded(t, lotDetail(100))

	check.Equal(t, IgnoredStale, m.ApplyBidUpdate(model.BidUpdate{LotID: "lot-2", Amount: dec(500)}))
	check.Equal(t, "100", m.Snapshot().CurrentPrice.String())
}
