package viewmodel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/model"
)

const (
	RecentOffersSize    = 5
	MovingAverageWindow = 5
)

// ApplyResult reports what an incoming offer did to the model.
type ApplyResult int

const (
	Applied      ApplyResult = iota // Advanced the current price
	Confirmed                       // Matched a pending optimistic offer
	IgnoredStale                    // At or below the current price, or a duplicate
	Buffered                        // Held until the initial load completes
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Confirmed:
		return "confirmed"
	case IgnoredStale:
		return "ignored"
	case Buffered:
		return "buffered"
	}
	return fmt.Sprintf("ApplyResult(%d)", int(r))
}

// RecentOffer is an accepted offer as shown in the recent list.
type RecentOffer struct {
	model.Offer
	Optimistic bool // Placed locally and not yet echoed by the server
}

// Snapshot is an immutable copy of the model's state.
type Snapshot struct {
	LotID             string
	Loaded            bool
	Lot               model.BidLot
	Status            model.LotStatus // Effective status: store status, then local expiry
	CurrentPrice      decimal.Decimal
	RecentOffers      []RecentOffer // Oldest first
	MovingAverage     decimal.Decimal
	Trend             model.Trend
	TimeLeft          time.Duration
	Expired           bool
	TotalBids         int
	PendingOptimistic int
}

// LoadError is returned when the initial fetch of a lot fails.
type LoadError struct {
	LotID string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load lot %s: %v", e.LotID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// earlyEvent is a push event received before the first successful load.
type earlyEvent struct {
	update *model.BidUpdate
	status *model.LotStatusChange
}
