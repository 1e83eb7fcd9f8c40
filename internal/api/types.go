package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// BidResponse from GET /bids/{lotId}
type BidResponse struct {
	Bid       APILot     `json:"bid"`
	Offers    []APIOffer `json:"offers"`
	TotalBids int        `json:"totalBids"`
}

// APILot represents a lot as the bid record store returns it.
type APILot struct {
	ID               string              `json:"id"`
	FarmerID         string              `json:"farmerId"`
	RiceVariety      string              `json:"riceVariety"`
	QuantityKg       decimal.Decimal     `json:"quantity"`
	Location         string              `json:"location"`
	MinimumPrice     decimal.Decimal     `json:"minimumPrice"`
	MinimumIncrement decimal.NullDecimal `json:"minimumIncrement"`
	Status           string              `json:"status"`

	// ISO 8601 or unix milliseconds
	ExpiryDate json.RawMessage `json:"expiryDate"`
}

// APIOffer represents an accepted offer.
type APIOffer struct {
	ID             string          `json:"id"`
	BidID          string          `json:"bidId"`
	BidderID       string          `json:"bidderId"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      json.RawMessage `json:"timestamp"`
	Seq            int64           `json:"seq,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// OfferRequest is the body of POST /bids/{lotId}/offer.
type OfferRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// OfferResponse from POST /bids/{lotId}/offer
type OfferResponse struct {
	Offer     APIOffer `json:"offer"`
	TotalBids int      `json:"totalBids"`
}

// errorBody is the structured error the store returns on rejection.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
