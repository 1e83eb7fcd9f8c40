package viewmodel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/metrics"
	"github.com/sanlk21/smartrice-bidding/internal/model"
	"github.com/sanlk21/smartrice-bidding/internal/validator"
)

// Fetcher reads the authoritative state of a lot.
type Fetcher interface {
	GetBid(ctx context.Context, lotID string) (*model.BidDetail, error)
}

// Option configures a Model.
type Option func(*Model)

// WithClock replaces the wall clock used for time-left computation.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// WithOnChange registers a callback invoked with a fresh snapshot after every
// state change. It runs outside the model's lock.
func WithOnChange(fn func(Snapshot)) Option {
	return func(m *Model) {
		m.onChange = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records offer outcomes on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Model) {
		m.metrics = reg
	}
}

// Model is the bid view model of a single lot. It is safe for concurrent use;
// all mutations are serialized by one mutex.
type Model struct {
	lotID    string
	now      func() time.Time
	onChange func(Snapshot)
	logger   *slog.Logger
	metrics  *metrics.Registry

	mu         sync.Mutex
	loaded     bool
	lot        model.BidLot
	current    decimal.Decimal
	recent     *Ring[RecentOffer]
	average    decimal.Decimal
	trend      model.Trend
	timeLeft   time.Duration
	expired    bool
	totalBids  int
	optimistic map[string]struct{} // idempotency keys awaiting a server echo
	confirmed  map[string]struct{} // idempotency keys the server has accepted
	early      []earlyEvent
}

// New creates an empty, unloaded model for lotID.
func New(lotID string, opts ...Option) *Model {
	m := &Model{
		lotID:      lotID,
		now:        time.Now,
		logger:     slog.Default(),
		recent:     NewRing[RecentOffer](RecentOffersSize),
		trend:      model.TrendNeutral,
		optimistic: make(map[string]struct{}),
		confirmed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("lot_id", lotID)
	return m
}

// LotID returns the lot this model tracks.
func (m *Model) LotID() string { return m.lotID }

// Load fetches the lot and installs it. Push events received before the first
// successful load are then applied in arrival order.
func (m *Model) Load(ctx context.Context, f Fetcher) error {
	detail, err := f.GetBid(ctx, m.lotID)
	if err != nil {
		return &LoadError{LotID: m.lotID, Err: err}
	}
	if detail == nil {
		return &LoadError{LotID: m.lotID, Err: errors.New("empty bid detail")}
	}
	m.Reconcile(*detail)
	return nil
}

// Reconcile merges an authoritative re-fetch. Offers above the current price
// are applied, pending optimistic offers found in the history are confirmed,
// and the current price is never lowered.
func (m *Model) Reconcile(detail model.BidDetail) {
	m.mu.Lock()
	first := !m.loaded
	m.install(detail)
	if first {
		early := m.early
		m.early = nil
		for _, ev := range early {
			switch {
			case ev.update != nil:
				m.applyUpdate(*ev.update)
			case ev.status != nil:
				m.setStatus(*ev.status)
			}
		}
		if len(early) > 0 {
			m.logger.Debug("replayed early push events", "count", len(early))
		}
	}
	snap := m.snapshot()
	m.mu.Unlock()

	m.notify(snap)
}

// ApplyRemoteOffer applies an accepted offer announced by the server.
func (m *Model) ApplyRemoteOffer(offer model.Offer) ApplyResult {
	return m.ApplyBidUpdate(model.BidUpdate{
		LotID:          offer.LotID,
		OfferID:        offer.ID,
		BidderID:       offer.BidderID,
		Amount:         offer.Amount,
		Timestamp:      offer.SubmittedAt,
		IdempotencyKey: offer.IdempotencyKey,
		Seq:            offer.Seq,
	})
}

// ApplyBidUpdate applies a bidUpdates push event.
func (m *Model) ApplyBidUpdate(u model.BidUpdate) ApplyResult {
	m.mu.Lock()
	if !m.loaded {
		m.early = append(m.early, earlyEvent{update: &u})
		m.mu.Unlock()
		m.metrics.OfferBuffered()
		return Buffered
	}
	res := m.applyUpdate(u)
	snap := m.snapshot()
	m.mu.Unlock()

	if res != IgnoredStale {
		m.notify(snap)
	}
	return res
}

// ApplyLocalOptimisticOffer applies an offer this client just placed, ahead of
// the server's push confirmation.
func (m *Model) ApplyLocalOptimisticOffer(offer model.Offer) ApplyResult {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		m.logger.Warn("optimistic offer on unloaded lot ignored", "amount", offer.Amount)
		return IgnoredStale
	}
	res := m.apply(offer, true)
	snap := m.snapshot()
	m.mu.Unlock()

	if res == Applied {
		m.notify(snap)
	}
	return res
}

// SetLotStatus applies an authoritative status change from the bid record store.
func (m *Model) SetLotStatus(change model.LotStatusChange) {
	m.mu.Lock()
	if !m.loaded {
		m.early = append(m.early, earlyEvent{status: &change})
		m.mu.Unlock()
		return
	}
	m.setStatus(change)
	snap := m.snapshot()
	m.mu.Unlock()

	m.notify(snap)
}

// Tick recomputes the time left from the wall clock.
func (m *Model) Tick() {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return
	}
	m.updateTimeLeft()
	snap := m.snapshot()
	m.mu.Unlock()

	m.notify(snap)
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// ValidationInput builds validator input for amount from the latest state.
func (m *Model) ValidationInput(amount float64) validator.Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return validator.Input{
		Amount:           amount,
		MinimumPrice:     m.lot.MinimumPrice,
		CurrentPrice:     m.current,
		MinimumIncrement: m.lot.MinimumIncrement,
		Status:           m.effectiveStatus(),
	}
}

// Validate checks amount against the latest state.
func (m *Model) Validate(amount float64) (decimal.Decimal, error) {
	return validator.Validate(m.ValidationInput(amount))
}

// install merges detail into the model. Caller holds mu.
func (m *Model) install(detail model.BidDetail) {
	if !m.loaded {
		m.recent.Reset()
		m.current = detail.Lot.MinimumPrice
		m.loaded = true
	} else if detail.Lot.MinimumPrice.GreaterThan(m.current) {
		m.current = detail.Lot.MinimumPrice
	}
	m.lot = detail.Lot

	offers := make([]model.Offer, len(detail.Offers))
	copy(offers, detail.Offers)
	model.SortOffers(offers)
	for _, o := range offers {
		m.apply(o, false)
	}

	if detail.TotalBids > m.totalBids {
		m.totalBids = detail.TotalBids
	}
	if len(offers) > m.totalBids {
		m.totalBids = len(offers)
	}
	m.updateTimeLeft()
}

// applyUpdate applies a push event. Caller holds mu.
func (m *Model) applyUpdate(u model.BidUpdate) ApplyResult {
	if u.LotID != "" && u.LotID != m.lotID {
		m.logger.Warn("bid update for another lot ignored", "update_lot_id", u.LotID)
		return IgnoredStale
	}
	offer := u.Offer()
	offer.LotID = m.lotID
	res := m.apply(offer, false)
	if u.TotalBids > m.totalBids {
		m.totalBids = u.TotalBids
	}
	return res
}

// apply is the single update rule for remote and optimistic offers. Caller holds mu.
func (m *Model) apply(offer model.Offer, optimistic bool) ApplyResult {
	key := offer.IdempotencyKey
	if key != "" {
		_, pending := m.optimistic[key]
		_, accepted := m.confirmed[key]
		switch {
		case pending && !optimistic:
			delete(m.optimistic, key)
			m.confirmed[key] = struct{}{}
			m.recent.Replace(func(r RecentOffer) bool {
				return r.Optimistic && r.IdempotencyKey == key
			}, RecentOffer{Offer: offer})
			if offer.Amount.GreaterThan(m.current) {
				m.current = offer.Amount
			}
			m.recompute()
			m.metrics.OfferConfirmed()
			return Confirmed
		case accepted && optimistic:
			// The server echo beat the submission response.
			m.metrics.OfferConfirmed()
			return Confirmed
		case pending || accepted:
			m.metrics.OfferIgnored()
			return IgnoredStale
		}
	}

	if !offer.Amount.GreaterThan(m.current) {
		m.logger.Debug("stale offer ignored",
			"amount", offer.Amount,
			"current_price", m.current,
			"optimistic", optimistic,
		)
		m.metrics.OfferIgnored()
		return IgnoredStale
	}

	m.current = offer.Amount
	m.recent.Push(RecentOffer{Offer: offer, Optimistic: optimistic})
	if key != "" {
		if optimistic {
			m.optimistic[key] = struct{}{}
		} else {
			m.confirmed[key] = struct{}{}
		}
	}
	m.totalBids++
	m.recompute()
	m.metrics.OfferApplied(optimistic)
	return Applied
}

// recompute refreshes the moving average and trend. Caller holds mu.
func (m *Model) recompute() {
	window := m.recent.Last(MovingAverageWindow)
	if len(window) == 0 {
		m.average = decimal.Zero
		m.trend = model.TrendNeutral
		return
	}

	sum := decimal.Zero
	for _, o := range window {
		sum = sum.Add(o.Amount)
	}
	m.average = sum.Div(decimal.NewFromInt(int64(len(window)))).Round(2)

	m.trend = model.TrendNeutral
	if len(window) >= 2 {
		switch window[len(window)-1].Amount.Cmp(window[len(window)-2].Amount) {
		case 1:
			m.trend = model.TrendUp
		case -1:
			m.trend = model.TrendDown
		}
	}
}

// setStatus applies a store status change. Caller holds mu.
func (m *Model) setStatus(change model.LotStatusChange) {
	if change.Status != "" {
		m.lot.Status = change.Status
	}
	if !change.ExpiresAt.IsZero() {
		m.lot.ExpiresAt = change.ExpiresAt
	}
	m.updateTimeLeft()
}

// updateTimeLeft recomputes time left and local expiry. Caller holds mu.
func (m *Model) updateTimeLeft() {
	if m.lot.ExpiresAt.IsZero() {
		m.timeLeft, m.expired = 0, false
		return
	}
	left := m.lot.ExpiresAt.Sub(m.now())
	if left <= 0 {
		m.timeLeft, m.expired = 0, true
		return
	}
	m.timeLeft, m.expired = left, false
}

// effectiveStatus lets any non-active store status win over local expiry. Caller holds mu.
func (m *Model) effectiveStatus() model.LotStatus {
	if m.lot.Status != model.LotActive {
		return m.lot.Status
	}
	if m.expired {
		return model.LotExpired
	}
	return model.LotActive
}

// snapshot copies the state. Caller holds mu.
func (m *Model) snapshot() Snapshot {
	return Snapshot{
		LotID:             m.lotID,
		Loaded:            m.loaded,
		Lot:               m.lot,
		Status:            m.effectiveStatus(),
		CurrentPrice:      m.current,
		RecentOffers:      m.recent.Items(),
		MovingAverage:     m.average,
		Trend:             m.trend,
		TimeLeft:          m.timeLeft,
		Expired:           m.expired,
		TotalBids:         m.totalBids,
		PendingOptimistic: len(m.optimistic),
	}
}

func (m *Model) notify(snap Snapshot) {
	if m.onChange != nil {
		m.onChange(snap)
	}
}
