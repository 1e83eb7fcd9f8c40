package sequencer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnChange registers a callback for every state change. It may be called
// from the caller's goroutine, the countdown goroutine or the submission
// goroutine, never with the sequencer's lock held.
func WithOnChange(fn func(State)) Option {
	return func(s *Sequencer) {
		s.onChange = fn
	}
}

// WithTicker replaces the countdown ticker factory.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(s *Sequencer) {
		s.newTicker = newTicker
	}
}

// WithTickInterval sets the countdown step. Default 1s.
func WithTickInterval(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSubmitTimeout bounds each submission. Default 15s.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

// WithKeyGenerator replaces the idempotency key generator.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Sequencer) {
		s.newKey = fn
	}
}

// Sequencer runs the confirmation flow for one offer on one lot.
type Sequencer struct {
	lotID     string
	view      OfferView
	submitter Submitter
	logger    *slog.Logger
	onChange  func(State)

	newTicker     func(time.Duration) Ticker
	newKey        func() string
	interval      time.Duration
	submitTimeout time.Duration

	mu       sync.Mutex
	state    State
	ticker   Ticker
	stopTick chan struct{}
	gen      uint64 // Bumped on every transition that invalidates pending ticks or results
	closed   bool
}

// New creates a sequencer in DRAFTING for lotID.
func New(lotID string, view OfferView, submitter Submitter, opts ...Option) *Sequencer {
	s := &Sequencer{
		lotID:         lotID,
		view:          view,
		submitter:     submitter,
		logger:        slog.Default(),
		newTicker:     newRealTicker,
		newKey:        uuid.NewString,
		interval:      time.Second,
		submitTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("lot_id", lotID)
	s.state = s.fresh()
	return s
}

// State returns a copy of the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetAmount edits the draft. Editing an armed offer returns it to DRAFTING;
// it re-arms at once if the terms are accepted and the new draft is valid.
func (s *Sequencer) SetAmount(amount float64) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}

	if amount != s.state.Draft {
		s.state.IdempotencyKey = s.newKey()
	}
	s.disarm()
	s.state.Draft = amount
	s.evaluate()
	snap := s.state
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// AcceptTerms records whether the bidder accepted the terms. Withdrawing
// acceptance disarms the offer.
func (s *Sequencer) AcceptTerms(accepted bool) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}

	if s.state.AcceptedTerms == accepted {
		s.mu.Unlock()
		return nil
	}
	s.state.AcceptedTerms = accepted
	if !accepted {
		s.disarm()
	}
	s.evaluate()
	snap := s.state
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// ConfirmNow submits an armed offer without waiting for the countdown.
func (s *Sequencer) ConfirmNow() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Status != Armed {
		s.mu.Unlock()
		return ErrNotArmed
	}
	submit := s.beginSubmit()
	snap := s.state
	s.mu.Unlock()

	s.notify(snap)
	if submit != nil {
		go submit()
	}
	return nil
}

// Retry resumes the countdown after a failed submission.
func (s *Sequencer) Retry() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Status != Armed || !s.state.Paused {
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	s.state.Paused = false
	s.state.Err = nil
	s.state.CountdownRemaining = CountdownStart
	s.startCountdown()
	snap := s.state
	s.mu.Unlock()

	s.logger.Info("retrying offer", "idempotency_key", snap.IdempotencyKey)
	s.notify(snap)
	return nil
}

// Cancel discards the draft. It fails while a submission is in flight.
func (s *Sequencer) Cancel() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.state.Status {
	case Submitting:
		s.mu.Unlock()
		return ErrSubmissionInFlight
	case Done:
		s.mu.Unlock()
		return ErrFinished
	case Cancelled:
		s.mu.Unlock()
		return nil
	}

	s.stopCountdown()
	s.gen++
	s.state = State{
		LotID:              s.lotID,
		Status:             Cancelled,
		CountdownRemaining: CountdownStart,
	}
	snap := s.state
	s.mu.Unlock()

	s.logger.Debug("offer cancelled")
	s.notify(snap)
	return nil
}

// Reset starts a fresh draft. It fails while a submission is in flight.
func (s *Sequencer) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Status == Submitting {
		s.mu.Unlock()
		return ErrSubmissionInFlight
	}

	s.stopCountdown()
	s.gen++
	s.state = s.fresh()
	snap := s.state
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Close stops the countdown. A submission already in flight still completes
// and is applied to the view, but no further state changes are reported.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopCountdown()
}

func (s *Sequencer) fresh() State {
	return State{
		LotID:              s.lotID,
		Status:             Drafting,
		CountdownRemaining: CountdownStart,
		IdempotencyKey:     s.newKey(),
	}
}

// editable reports whether the draft may change. Caller holds mu.
func (s *Sequencer) editable() error {
	if s.closed {
		return ErrClosed
	}
	switch {
	case s.state.Status == Submitting:
		return ErrSubmissionInFlight
	case s.state.Status.Finished():
		return ErrFinished
	}
	return nil
}

// disarm returns an armed offer to DRAFTING. Caller holds mu.
func (s *Sequencer) disarm() {
	if s.state.Status != Armed {
		return
	}
	s.stopCountdown()
	s.gen++
	s.state.Status = Drafting
	s.state.Paused = false
	s.state.CountdownRemaining = CountdownStart
}

// evaluate validates a draft and arms it when the terms are accepted.
// Caller holds mu.
func (s *Sequencer) evaluate() {
	if s.state.Status != Drafting {
		return
	}

	amount, err := s.view.Validate(s.state.Draft)
	if err != nil {
		s.state.Amount = decimal.Zero
		s.state.Err = err
		return
	}
	s.state.Amount = amount
	s.state.Err = nil

	if !s.state.AcceptedTerms {
		return
	}
	s.state.Status = Armed
	s.state.Paused = false
	s.state.CountdownRemaining = CountdownStart
	s.startCountdown()
}

// startCountdown replaces any running ticker. Caller holds mu.
func (s *Sequencer) startCountdown() {
	s.stopCountdown()
	s.gen++
	gen := s.gen

	t := s.newTicker(s.interval)
	stop := make(chan struct{})
	s.ticker = t
	s.stopTick = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				s.tick(gen)
			}
		}
	}()
}

// stopCountdown stops the ticker and its goroutine. Caller holds mu.
func (s *Sequencer) stopCountdown() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopTick)
	s.ticker = nil
	s.stopTick = nil
}

func (s *Sequencer) tick(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.state.Status != Armed || s.state.Paused {
		s.mu.Unlock()
		return
	}

	s.state.CountdownRemaining--
	var submit func()
	if s.state.CountdownRemaining <= 0 {
		s.state.CountdownRemaining = 0
		submit = s.beginSubmit()
	}
	snap := s.state
	s.mu.Unlock()

	s.notify(snap)
	if submit != nil {
		go submit()
	}
}

// beginSubmit re-validates the draft against the latest view and moves to
// SUBMITTING. It returns the submission to run, or nil if validation failed
// and the offer went back to DRAFTING. Caller holds mu.
func (s *Sequencer) beginSubmit() func() {
	s.stopCountdown()
	s.gen++

	amount, err := s.view.Validate(s.state.Draft)
	if err != nil {
		s.logger.Info("offer no longer valid at submission", "draft", s.state.Draft, "error", err)
		s.state.Status = Drafting
		s.state.Paused = false
		s.state.CountdownRemaining = CountdownStart
		s.state.Amount = decimal.Zero
		s.state.Err = err
		return nil
	}

	s.state.Status = Submitting
	s.state.Amount = amount
	s.state.Err = nil
	gen := s.gen
	key := s.state.IdempotencyKey

	return func() { s.submit(gen, amount, key) }
}

func (s *Sequencer) submit(gen uint64, amount decimal.Decimal, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
	defer cancel()

	s.logger.Info("submitting offer", "amount", amount.StringFixed(2), "idempotency_key", key)
	offer, err := s.submitter.SubmitOffer(ctx, s.lotID, amount, key)

	if err == nil {
		if offer.IdempotencyKey == "" {
			offer.IdempotencyKey = key
		}
		if offer.LotID == "" {
			offer.LotID = s.lotID
		}
		s.view.ApplyLocalOptimisticOffer(offer)
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.logger.Warn("offer submission failed", "idempotency_key", key, "error", err)
		s.state.Status = Armed
		s.state.Paused = true
		s.state.CountdownRemaining = CountdownStart
		s.state.Err = err
	} else {
		s.state.Status = Done
		s.state.Offer = &offer
		s.state.Err = nil
	}
	snap := s.state
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Sequencer) notify(snap State) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
