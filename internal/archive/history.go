package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/model"
)

// MaxHistoryLimit caps a single history read.
const MaxHistoryLimit = 1000

// ErrEmptyLotID is returned when a lot ID is missing.
var ErrEmptyLotID = errors.New("lot id is required")

const selectOffers = `
	SELECT offer_id, lot_id, bidder_id, amount::text, submitted_at, seq, idempotency_key
	FROM offers
	WHERE lot_id = $1
	ORDER BY submitted_at DESC, seq DESC
	LIMIT $2
`

// HistoryReader reads archived offers.
type HistoryReader struct {
	db DB
}

// NewHistoryReader creates a reader on db.
func NewHistoryReader(db DB) *HistoryReader {
	return &HistoryReader{db: db}
}

// ListOffers returns up to limit of lotID's most recent offers, newest first.
// A limit outside 1..MaxHistoryLimit is clamped.
func (h *HistoryReader) ListOffers(ctx context.Context, lotID string, limit int) ([]model.Offer, error) {
	if lotID == "" {
		return nil, ErrEmptyLotID
	}
	if limit < 1 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := h.db.Query(ctx, selectOffers, lotID, limit)
	if err != nil {
		return nil, fmt.Errorf("query offers for lot %s: %w", lotID, err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		var (
			o      model.Offer
			amount string
		)
		if err := rows.Scan(&o.ID, &o.LotID, &o.BidderID, &amount, &o.SubmittedAt, &o.Seq, &o.IdempotencyKey); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		o.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("offer %s amount %q: %w", o.ID, amount, err)
		}
		o.SubmittedAt = o.SubmittedAt.UTC()
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read offers for lot %s: %w", lotID, err)
	}

	return offers, nil
}
