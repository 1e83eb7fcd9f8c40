package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Lot Types
// -----------------------------------------------------------------------------

// LotStatus is the lifecycle state of a bid lot as reported by the bid record store.
type LotStatus string

const (
	LotActive    LotStatus = "ACTIVE"
	LotExpired   LotStatus = "EXPIRED"
	LotCompleted LotStatus = "COMPLETED"
	LotCancelled LotStatus = "CANCELLED"
)

// IsActive reports whether offers may still be placed on the lot.
func (s LotStatus) IsActive() bool {
	return s == LotActive
}

// ParseLotStatus converts a wire status into a LotStatus. Matching is case-insensitive.
func ParseLotStatus(s string) (LotStatus, error) {
	switch LotStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case LotActive:
		return LotActive, nil
	case LotExpired:
		return LotExpired, nil
	case LotCompleted:
		return LotCompleted, nil
	case LotCancelled:
		return LotCancelled, nil
	}
	return "", fmt.Errorf("unknown lot status %q", s)
}

// Commodity describes the produce being sold.
type Commodity struct {
	Variety    string          // e.g. "Samba", "Nadu", "Keeri Samba"
	QuantityKg decimal.Decimal // Quantity offered in kilograms
	Location   string          // Storage or pickup location
}

// BidLot is a farmer's listing that buyers compete on.
type BidLot struct {
	ID               string
	FarmerID         string
	Commodity        Commodity
	MinimumPrice     decimal.Decimal     // Floor set by the farmer, always > 0
	MinimumIncrement decimal.NullDecimal // Optional step over the current price
	Status           LotStatus
	ExpiresAt        time.Time
}

// -----------------------------------------------------------------------------
// Offer Types
// -----------------------------------------------------------------------------

// Offer is a buyer's accepted bid against a lot. Accepted offers are immutable.
type Offer struct {
	ID             string
	LotID          string
	BidderID       string
	Amount         decimal.Decimal
	SubmittedAt    time.Time
	Seq            int64  // Server-assigned sequence within the lot, 0 if unknown
	IdempotencyKey string // Client-generated key, empty for offers from other clients
}

// Before reports whether o sorts ahead of other: by submission time, ties broken by sequence.
func (o Offer) Before(other Offer) bool {
	if !o.SubmittedAt.Equal(other.SubmittedAt) {
		return o.SubmittedAt.Before(other.SubmittedAt)
	}
	return o.Seq < other.Seq
}

// SortOffers orders offers in place by submission time, then sequence.
func SortOffers(offers []Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].Before(offers[j])
	})
}

// BidDetail is the authoritative projection of a lot and its offer history.
type BidDetail struct {
	Lot       BidLot
	Offers    []Offer // Ordered by SubmittedAt, then Seq
	TotalBids int
}

// HighestAmount returns the larger of the lot minimum price and every offer amount.
func (d BidDetail) HighestAmount() decimal.Decimal {
	highest := d.Lot.MinimumPrice
	for _, o := range d.Offers {
		if o.Amount.GreaterThan(highest) {
			highest = o.Amount
		}
	}
	return highest
}

// -----------------------------------------------------------------------------
// Push Types
// -----------------------------------------------------------------------------

// BidUpdate is a decoded bidUpdates push event.
type BidUpdate struct {
	LotID          string
	OfferID        string
	BidderID       string
	Amount         decimal.Decimal
	Timestamp      time.Time
	TotalBids      int
	IdempotencyKey string
	Seq            int64
}

// Offer converts the update into the accepted offer it announces.
func (u BidUpdate) Offer() Offer {
	return Offer{
		ID:             u.OfferID,
		LotID:          u.LotID,
		BidderID:       u.BidderID,
		Amount:         u.Amount,
		SubmittedAt:    u.Timestamp,
		Seq:            u.Seq,
		IdempotencyKey: u.IdempotencyKey,
	}
}

// LotStatusChange is a decoded lotStatus push event.
type LotStatusChange struct {
	LotID     string
	Status    LotStatus
	ExpiresAt time.Time // Zero when the event does not move the expiry
}

// Trend is the direction of the last accepted price move.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// ParseTime parses a wire timestamp. Both RFC 3339 strings and integer
// Unix milliseconds are accepted. An empty string yields the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
