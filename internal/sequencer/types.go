package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/model"
	"github.com/sanlk21/smartrice-bidding/internal/viewmodel"
)

// CountdownStart is the number of ticks an armed offer waits before submitting.
const CountdownStart = 5

// Sequencer errors.
var (
	ErrSubmissionInFlight = errors.New("submission in flight")
	ErrFinished           = errors.New("confirmation already finished")
	ErrNotArmed           = errors.New("offer is not armed")
	ErrNothingToRetry     = errors.New("no failed submission to retry")
	ErrClosed             = errors.New("sequencer closed")
)

// Status is the confirmation stage.
type Status int

const (
	Drafting Status = iota
	Armed
	Submitting
	Done
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Drafting:
		return "DRAFTING"
	case Armed:
		return "ARMED"
	case Submitting:
		return "SUBMITTING"
	case Done:
		return "DONE"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Finished reports whether no further transition is possible without Reset.
func (s Status) Finished() bool {
	return s == Done || s == Cancelled
}

// State is a copy of the pending confirmation.
type State struct {
	LotID              string
	Status             Status
	Draft              float64
	Amount             decimal.Decimal // Validated, rounded draft; zero until valid
	AcceptedTerms      bool
	CountdownRemaining int
	Paused             bool   // Armed after a failed submission, waiting for Retry
	IdempotencyKey     string // Stable across retries of the same draft
	Err                error  // Last validation or submission error
	Offer              *model.Offer
}

// OfferView is the lot view an offer is validated against and applied to.
type OfferView interface {
	Validate(amount float64) (decimal.Decimal, error)
	ApplyLocalOptimisticOffer(offer model.Offer) viewmodel.ApplyResult
}

// Submitter sends an offer to the bid record store.
type Submitter interface {
	SubmitOffer(ctx context.Context, lotID string, amount decimal.Decimal, idempotencyKey string) (model.Offer, error)
}

// Ticker drives the countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
