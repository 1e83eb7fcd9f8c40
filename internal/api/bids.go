package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sanlk21/smartrice-bidding/internal/model"
)

// ErrEmptyLotID is returned when a lot ID is missing.
var ErrEmptyLotID = errors.New("lot id is required")

// SubmissionError is returned by SubmitOffer. It wraps either an *APIError
// (the store rejected or failed the request) or a transport error.
type SubmissionError struct {
	LotID string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit offer for lot %s: %v", e.LotID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Terminal reports whether resubmitting the same offer cannot succeed.
func (e *SubmissionError) Terminal() bool {
	var apiErr *APIError
	return errors.As(e.Err, &apiErr) && apiErr.IsTerminal()
}

// Code returns the store's machine-readable rejection code, if any.
func (e *SubmissionError) Code() string {
	var apiErr *APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// GetBid fetches a lot and its ordered offer history.
func (c *Client) GetBid(ctx context.Context, lotID string) (*model.BidDetail, error) {
	if lotID == "" {
		return nil, ErrEmptyLotID
	}

	var resp BidResponse
	if err := c.get(ctx, "/bids/"+url.PathEscape(lotID), &resp); err != nil {
		return nil, fmt.Errorf("get bid %s: %w", lotID, err)
	}

	detail, err := ToBidDetail(resp)
	if err != nil {
		return nil, fmt.Errorf("get bid %s: %w", lotID, err)
	}
	return detail, nil
}

// SubmitOffer posts one offer. It is not retried; a context without a
// deadline is bounded by the client's submit timeout.
func (c *Client) SubmitOffer(ctx context.Context, lotID string, req OfferRequest) (model.Offer, error) {
	if lotID == "" {
		return model.Offer{}, ErrEmptyLotID
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()
	}

	start := time.Now()
	var resp OfferResponse
	err := c.post(ctx, "/bids/"+url.PathEscape(lotID)+"/offer", req, &resp)
	if err != nil {
		c.logger.Warn("offer submission failed",
			"lot_id", lotID,
			"amount", req.Amount.StringFixed(2),
			"idempotency_key", req.IdempotencyKey,
			"error", err,
		)
		return model.Offer{}, &SubmissionError{LotID: lotID, Err: err}
	}

	offer, err := ToOffer(lotID, resp.Offer)
	if err != nil {
		return model.Offer{}, &SubmissionError{LotID: lotID, Err: err}
	}
	if offer.IdempotencyKey == "" {
		offer.IdempotencyKey = req.IdempotencyKey
	}
	if offer.Amount.IsZero() {
		offer.Amount = req.Amount
	}
	if offer.SubmittedAt.IsZero() {
		offer.SubmittedAt = time.Now().UTC()
	}

	c.logger.Debug("offer accepted",
		"lot_id", lotID,
		"offer_id", offer.ID,
		"amount", offer.Amount.StringFixed(2),
		"duration", time.Since(start),
	)
	return offer, nil
}
