package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/api"
	"github.com/sanlk21/smartrice-bidding/internal/metrics"
	"github.com/sanlk21/smartrice-bidding/internal/model"
	"github.com/sanlk21/smartrice-bidding/internal/poller"
	"github.com/sanlk21/smartrice-bidding/internal/router"
	"github.com/sanlk21/smartrice-bidding/internal/sequencer"
	"github.com/sanlk21/smartrice-bidding/internal/viewmodel"
)

// Session errors.
var (
	ErrLotAlreadyOpen = errors.New("lot already open")
	ErrLotNotOpen     = errors.New("lot not open")
	ErrSessionClosed  = errors.New("session closed")
)

// Store is the bid record store.
type Store interface {
	GetBid(ctx context.Context, lotID string) (*model.BidDetail, error)
	SubmitOffer(ctx context.Context, lotID string, req api.OfferRequest) (model.Offer, error)
}

// Channel is the push channel.
type Channel interface {
	router.Channel
	Connect(ctx context.Context) error
	Close() error
}

// Config holds session configuration.
type Config struct {
	SubmitTimeout time.Duration
	TickInterval  time.Duration // Countdown step for new offers
	Poller        poller.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SubmitTimeout: api.DefaultSubmitTimeout,
		TickInterval:  time.Second,
		Poller:        poller.DefaultConfig(),
	}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records session activity on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Session) {
		s.metrics = reg
	}
}

// WithSequencerOptions appends options to every sequencer the session creates.
func WithSequencerOptions(opts ...sequencer.Option) Option {
	return func(s *Session) {
		s.seqOpts = append(s.seqOpts, opts...)
	}
}

// Session is one bidder's connection to the marketplace.
type Session struct {
	cfg     Config
	store   Store
	ch      Channel
	router  *router.Router
	poller  *poller.Poller
	logger  *slog.Logger
	metrics *metrics.Registry
	seqOpts []sequencer.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	lots    map[string]*LotView
	started bool
	closed  bool
}

// New creates a session. Call Start to connect.
func New(cfg Config, store Store, ch Channel, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		store:  store,
		ch:     ch,
		logger: slog.Default(),
		lots:   make(map[string]*LotView),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.router = router.New(ch, s.logger, s.metrics)
	s.poller = poller.New(cfg.Poller, poller.LotSourceFunc(s.ActiveLots), s.logger)
	return s
}

// Start routes push events, starts the poller and connects the channel. A
// failed connect is returned but the channel keeps retrying in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.router.Start()
	if err := s.poller.Start(s.ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	if err := s.ch.Connect(ctx); err != nil {
		s.logger.Warn("initial push channel connect failed, retrying in background", "error", err)
		return fmt.Errorf("connect push channel: %w", err)
	}
	return nil
}

// Stop closes every open lot, stops the poller and closes the channel.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	views := make([]*LotView, 0, len(s.lots))
	for _, v := range s.lots {
		views = append(views, v)
	}
	s.mu.Unlock()

	for _, v := range views {
		v.Close()
	}

	var errs []error
	if err := s.poller.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop poller: %w", err))
	}
	s.router.Stop()
	if err := s.ch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close push channel: %w", err))
	}
	s.cancel()

	s.logger.Info("bidding session stopped")
	return errors.Join(errs...)
}

// OpenLot loads lotID and keeps its view model current until the view is
// closed. onChange, if set, receives every snapshot. Events that arrive while
// the lot is loading are buffered and applied after the load.
//
// A failed load returns the view together with a *viewmodel.LoadError. The
// view stays open and keeps buffering pushes; LotView.Load (or the next
// poller refresh) retries, and only Close discards what was buffered.
func (s *Session) OpenLot(ctx context.Context, lotID string, onChange func(viewmodel.Snapshot)) (*LotView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if _, ok := s.lots[lotID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLotAlreadyOpen, lotID)
	}

	v := &LotView{
		session: s,
		lotID:   lotID,
		logger:  s.logger.With("lot_id", lotID),
	}
	v.model = viewmodel.New(lotID,
		viewmodel.WithOnChange(onChange),
		viewmodel.WithLogger(s.logger),
		viewmodel.WithMetrics(s.metrics),
	)
	s.lots[lotID] = v
	s.mu.Unlock()

	// Watch before loading so nothing published during the fetch is lost.
	v.unwatch = s.router.Watch(lotID, v)

	if err := v.Load(ctx); err != nil {
		v.logger.Warn("initial lot load failed, buffering pushes until retry", "error", err)
		return v, err
	}
	return v, nil
}

// Lot returns the open view for lotID.
func (s *Session) Lot(lotID string) (*LotView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lots[lotID]
	return v, ok
}

// ActiveLots returns the open lots, sorted by ID.
func (s *Session) ActiveLots() []poller.Lot {
	s.mu.Lock()
	ids := make([]string, 0, len(s.lots))
	for id := range s.lots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]poller.Lot, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.lots[id])
	}
	s.mu.Unlock()
	return out
}

// NewOffer starts a confirmation sequence for a new offer on an open lot.
func (s *Session) NewOffer(lotID string, onChange func(sequencer.State)) (*sequencer.Sequencer, error) {
	v, ok := s.Lot(lotID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLotNotOpen, lotID)
	}

	opts := []sequencer.Option{
		sequencer.WithLogger(s.logger),
		sequencer.WithSubmitTimeout(s.cfg.SubmitTimeout),
		sequencer.WithTickInterval(s.cfg.TickInterval),
		sequencer.WithOnChange(onChange),
	}
	opts = append(opts, s.seqOpts...)
	return sequencer.New(lotID, v.model, &submitter{store: s.store, metrics: s.metrics}, opts...), nil
}

func (s *Session) forget(v *LotView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lots[v.lotID] == v {
		delete(s.lots, v.lotID)
	}
}

// submitter adapts the store to the sequencer and records outcomes.
type submitter struct {
	store   Store
	metrics *metrics.Registry
}

func (s *submitter) SubmitOffer(ctx context.Context, lotID string, amount decimal.Decimal, key string) (model.Offer, error) {
	start := time.Now()
	offer, err := s.store.SubmitOffer(ctx, lotID, api.OfferRequest{Amount: amount, IdempotencyKey: key})
	s.metrics.Submission(submissionResult(err), time.Since(start).Seconds())
	return offer, err
}

func submissionResult(err error) string {
	if err == nil {
		return "accepted"
	}
	var subErr *api.SubmissionError
	if errors.As(err, &subErr) && subErr.Terminal() {
		return "rejected"
	}
	return "failed"
}
