package bidding

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sanlk21/smartrice-bidding/internal/channel"
	"github.com/sanlk21/smartrice-bidding/internal/model"
	"github.com/sanlk21/smartrice-bidding/internal/router"
	"github.com/sanlk21/smartrice-bidding/internal/viewmodel"
)

// LotView is an open lot: its view model plus the subscriptions keeping it
// current. It receives routed push events for its lot.
type LotView struct {
	session *Session
	lotID   string
	model   *viewmodel.Model
	logger  *slog.Logger
	unwatch func()

	refresh   singleflight.Group
	closeOnce sync.Once
}

// LotID returns the lot ID.
func (v *LotView) LotID() string { return v.lotID }

// Model returns the lot's view model.
func (v *LotView) Model() *viewmodel.Model { return v.model }

// Snapshot returns the current view model state.
func (v *LotView) Snapshot() viewmodel.Snapshot { return v.model.Snapshot() }

// Tick recomputes the time left.
func (v *LotView) Tick() { v.model.Tick() }

// Load fetches the lot and installs it, replaying pushes buffered since the
// view opened. It retries a failed initial load; once loaded it behaves like
// Refresh.
func (v *LotView) Load(ctx context.Context) error {
	if err := v.model.Load(ctx, v.session.store); err != nil {
		return err
	}
	v.logger.Info("lot loaded", "current_price", v.model.Snapshot().CurrentPrice.StringFixed(2))
	return nil
}

// Refresh re-fetches the lot and reconciles it. Concurrent calls share one fetch.
func (v *LotView) Refresh(ctx context.Context) error {
	_, err, shared := v.refresh.Do(v.lotID, func() (any, error) {
		detail, err := v.session.store.GetBid(ctx, v.lotID)
		if err != nil {
			return nil, err
		}
		v.model.Reconcile(*detail)
		return nil, nil
	})
	if shared {
		v.logger.Debug("joined in-flight refresh")
	}
	return err
}

// Close stops routing events to the view and removes it from the session.
func (v *LotView) Close() {
	v.closeOnce.Do(func() {
		if v.unwatch != nil {
			v.unwatch()
		}
		v.session.forget(v)
		v.logger.Debug("lot closed")
	})
}

// HandleBidUpdate implements router.LotHandler.
func (v *LotView) HandleBidUpdate(u model.BidUpdate) {
	v.model.ApplyBidUpdate(u)
}

// HandleLotStatus implements router.LotHandler.
func (v *LotView) HandleLotStatus(c model.LotStatusChange) {
	v.model.SetLotStatus(c)
}

// HandleResync implements router.LotHandler. The re-fetch runs off the
// dispatch goroutine so other lots keep flowing.
func (v *LotView) HandleResync(lotID string, reason router.ResyncReason) {
	v.logger.Info("resyncing lot", "reason", reason)
	go func() {
		ctx := v.session.ctx
		if timeout := v.session.cfg.Poller.Timeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := v.Refresh(ctx); err != nil {
			v.logger.Warn("resync failed", "reason", reason, "error", err)
		}
	}()
}

// HandleConnection implements router.LotHandler.
func (v *LotView) HandleConnection(ev channel.ConnectionEvent) {
	if ev.Status != channel.StatusConnected {
		v.logger.Debug("push channel down, view may be stale", "status", ev.Status)
	}
}
