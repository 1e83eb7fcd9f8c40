package api

import (
	"fmt"

	"github.com/sanlk21/smartrice-bidding/internal/model"
)

// ToBidLot converts an API lot to the domain type.
func ToBidLot(l APILot) (model.BidLot, error) {
	status, err := model.ParseLotStatus(l.Status)
	if err != nil {
		return model.BidLot{}, fmt.Errorf("lot %s: %w", l.ID, err)
	}
	expires, err := model.ParseTime(string(l.ExpiryDate))
	if err != nil {
		return model.BidLot{}, fmt.Errorf("lot %s: %w", l.ID, err)
	}
	if !l.MinimumPrice.IsPositive() {
		return model.BidLot{}, fmt.Errorf("lot %s: minimum price %s must be positive", l.ID, l.MinimumPrice)
	}

	return model.BidLot{
		ID:       l.ID,
		FarmerID: l.FarmerID,
		Commodity: model.Commodity{
			Variety:    l.RiceVariety,
			QuantityKg: l.QuantityKg,
			Location:   l.Location,
		},
		MinimumPrice:     l.MinimumPrice,
		MinimumIncrement: l.MinimumIncrement,
		Status:           status,
		ExpiresAt:        expires,
	}, nil
}

// ToOffer converts an API offer to the domain type. lotID fills a missing bidId.
func ToOffer(lotID string, o APIOffer) (model.Offer, error) {
	ts, err := model.ParseTime(string(o.Timestamp))
	if err != nil {
		return model.Offer{}, fmt.Errorf("offer %s: %w", o.ID, err)
	}
	if o.BidID != "" {
		lotID = o.BidID
	}

	return model.Offer{
		ID:             o.ID,
		LotID:          lotID,
		BidderID:       o.BidderID,
		Amount:         o.Amount,
		SubmittedAt:    ts,
		Seq:            o.Seq,
		IdempotencyKey: o.IdempotencyKey,
	}, nil
}

// ToBidDetail converts a GET /bids response. Offers come back sorted.
func ToBidDetail(r BidResponse) (*model.BidDetail, error) {
	lot, err := ToBidLot(r.Bid)
	if err != nil {
		return nil, err
	}

	offers := make([]model.Offer, 0, len(r.Offers))
	for _, o := range r.Offers {
		offer, err := ToOffer(lot.ID, o)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	model.SortOffers(offers)

	total := r.TotalBids
	if total < len(offers) {
		total = len(offers)
	}

	return &model.BidDetail{Lot: lot, Offers: offers, TotalBids: total}, nil
}
