package router

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sanlk21/smartrice-bidding/internal/channel"
	"github.com/sanlk21/smartrice-bidding/internal/model"
)

// Push event types.
const (
	EventBidUpdates  = "bidUpdates"
	EventLotStatus   = "lotStatus"
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
)

// ResyncReason says why a watcher should re-fetch authoritative state.
type ResyncReason string

const (
	ResyncReconnect   ResyncReason = "reconnect"
	ResyncSequenceGap ResyncReason = "sequence_gap"
)

// Channel is the part of the push channel client the router needs.
type Channel interface {
	Subscribe(eventType string, handler channel.Handler) (unsubscribe func())
	Send(eventType string, payload any) error
}

// LotHandler receives the events of one lot, or of every lot for WatchAll.
// Calls are made from the channel's dispatch goroutine, in arrival order.
type LotHandler interface {
	HandleBidUpdate(update model.BidUpdate)
	HandleLotStatus(change model.LotStatusChange)
	HandleResync(lotID string, reason ResyncReason)
	HandleConnection(ev channel.ConnectionEvent)
}

// Stats contains runtime counters.
type Stats struct {
	Received     int64
	Routed       int64
	DecodeErrors int64
	Unwatched    int64 // Events for lots nobody watches
	SequenceGaps int64
	Resyncs      int64
	WatchedLots  int
}

// lotPayload is the subscribe/unsubscribe request body.
type lotPayload struct {
	BidID string `json:"bidId"`
}

// bidUpdateWire is the bidUpdates payload.
type bidUpdateWire struct {
	BidID          string          `json:"bidId"`
	OfferID        string          `json:"offerId,omitempty"`
	BidderID       string          `json:"bidderId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      json.RawMessage `json:"timestamp"`
	TotalBids      int             `json:"totalBids"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Seq            int64           `json:"seq,omitempty"`
}

// lotStatusWire is the lotStatus payload.
type lotStatusWire struct {
	BidID           string          `json:"bidId"`
	Status          string          `json:"status"`
	ExpiryTimestamp json.RawMessage `json:"expiryTimestamp,omitempty"`
}

func decodeBidUpdate(ev channel.Event) (model.BidUpdate, error) {
	var w bidUpdateWire
	if err := json.Unmarshal(ev.Payload, &w); err != nil {
		return model.BidUpdate{}, fmt.Errorf("decode bidUpdates: %w", err)
	}
	if w.BidID == "" {
		return model.BidUpdate{}, fmt.Errorf("decode bidUpdates: missing bidId")
	}
	if !w.Amount.IsPositive() {
		return model.BidUpdate{}, fmt.Errorf("decode bidUpdates: non-positive amount %s", w.Amount)
	}
	ts, err := model.ParseTime(string(w.Timestamp))
	if err != nil {
		return model.BidUpdate{}, fmt.Errorf("decode bidUpdates: %w", err)
	}
	if ts.IsZero() {
		ts = ev.ReceivedAt.UTC()
	}

	seq := ev.Seq
	if seq == 0 {
		seq = w.Seq
	}

	return model.BidUpdate{
		LotID:          w.BidID,
		OfferID:        w.OfferID,
		BidderID:       w.BidderID,
		Amount:         w.Amount,
		Timestamp:      ts,
		TotalBids:      w.TotalBids,
		IdempotencyKey: w.IdempotencyKey,
		Seq:            seq,
	}, nil
}

func decodeLotStatus(ev channel.Event) (model.LotStatusChange, error) {
	var w lotStatusWire
	if err := json.Unmarshal(ev.Payload, &w); err != nil {
		return model.LotStatusChange{}, fmt.Errorf("decode lotStatus: %w", err)
	}
	if w.BidID == "" {
		return model.LotStatusChange{}, fmt.Errorf("decode lotStatus: missing bidId")
	}
	status, err := model.ParseLotStatus(w.Status)
	if err != nil {
		return model.LotStatusChange{}, fmt.Errorf("decode lotStatus: %w", err)
	}
	expires, err := model.ParseTime(string(w.ExpiryTimestamp))
	if err != nil {
		return model.LotStatusChange{}, fmt.Errorf("decode lotStatus: %w", err)
	}
	return model.LotStatusChange{LotID: w.BidID, Status: status, ExpiresAt: expires}, nil
}
