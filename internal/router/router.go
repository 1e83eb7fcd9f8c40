package router

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/sanlk21/smartrice-bidding/internal/channel"
	"github.com/sanlk21/smartrice-bidding/internal/metrics"
)

type watcher struct {
	id      uint64
	handler LotHandler
}

// Router dispatches push events to lot watchers.
type Router struct {
	ch      Channel
	logger  *slog.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	lots    map[string][]watcher // lot ID -> watchers
	all     []watcher            // WatchAll watchers
	nextID  uint64
	lastSeq map[string]int64 // lot ID -> last sequence seen
	unsubs  []func()
	stats   Stats
}

// New creates a router on ch. Call Start to begin receiving events.
func New(ch Channel, logger *slog.Logger, reg *metrics.Registry) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ch:      ch,
		logger:  logger,
		metrics: reg,
		lots:    make(map[string][]watcher),
		lastSeq: make(map[string]int64),
	}
}

// Start subscribes to the channel's event types.
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.unsubs) > 0 {
		return
	}
	r.unsubs = []func(){
		r.ch.Subscribe(EventBidUpdates, r.onBidUpdate),
		r.ch.Subscribe(EventLotStatus, r.onLotStatus),
		r.ch.Subscribe(channel.EventConnection, r.onConnection),
	}
	r.logger.Info("lot router started")
}

// Stop unsubscribes from the channel. Watchers are kept.
func (r *Router) Stop() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	r.logger.Info("lot router stopped")
}

// Watch delivers lotID's events to h until cancel is called. The first watcher
// of a lot asks the server to stream it; if the channel is down the request
// is sent again on the next connect.
func (r *Router) Watch(lotID string, h LotHandler) (cancel func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	first := len(r.lots[lotID]) == 0
	r.lots[lotID] = append(r.lots[lotID], watcher{id: id, handler: h})
	r.mu.Unlock()

	if first {
		r.send(EventSubscribe, lotID)
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unwatch(lotID, id) })
	}
}

// WatchAll delivers every lot's events to h until cancel is called.
func (r *Router) WatchAll(h LotHandler) (cancel func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.all = append(r.all, watcher{id: id, handler: h})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.all = without(r.all, id)
			r.mu.Unlock()
		})
	}
}

// WatchedLots returns the IDs of lots with at least one watcher, sorted.
func (r *Router) WatchedLots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watchedLots()
}

// Stats returns current counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.WatchedLots = len(r.lots)
	return s
}

func (r *Router) unwatch(lotID string, id uint64) {
	r.mu.Lock()
	r.lots[lotID] = without(r.lots[lotID], id)
	last := len(r.lots[lotID]) == 0
	if last {
		delete(r.lots, lotID)
		delete(r.lastSeq, lotID)
	}
	r.mu.Unlock()

	if last {
		r.send(EventUnsubscribe, lotID)
	}
}

func (r *Router) send(eventType, lotID string) {
	err := r.ch.Send(eventType, lotPayload{BidID: lotID})
	switch {
	case err == nil:
	case errors.Is(err, channel.ErrNotConnected):
		r.logger.Debug("channel down, request deferred to next connect", "type", eventType, "lot_id", lotID)
	default:
		r.logger.Warn("failed to send lot request", "type", eventType, "lot_id", lotID, "error", err)
	}
}

func (r *Router) onBidUpdate(ev channel.Event) {
	update, err := decodeBidUpdate(ev)
	if err != nil {
		r.decodeFailed(ev, err)
		return
	}

	r.mu.Lock()
	r.stats.Received++
	gap, gapSize := r.checkSequence(update.LotID, update.Seq)
	targets := r.targets(update.LotID)
	if gap {
		r.stats.Resyncs++
	}
	r.mu.Unlock()

	if gap {
		r.metrics.SequenceGap()
		r.metrics.Resync(string(ResyncSequenceGap))
		r.logger.Warn("sequence gap detected, resyncing lot",
			"lot_id", update.LotID,
			"seq", update.Seq,
			"gap", gapSize,
		)
		for _, h := range targets {
			h.HandleResync(update.LotID, ResyncSequenceGap)
		}
	}

	for _, h := range targets {
		h.HandleBidUpdate(update)
	}
}

func (r *Router) onLotStatus(ev channel.Event) {
	change, err := decodeLotStatus(ev)
	if err != nil {
		r.decodeFailed(ev, err)
		return
	}

	r.mu.Lock()
	r.stats.Received++
	targets := r.targets(change.LotID)
	r.mu.Unlock()

	for _, h := range targets {
		h.HandleLotStatus(change)
	}
}

// onConnection forwards lifecycle events and, on every connect, re-requests
// watched lots and tells their watchers to resync.
func (r *Router) onConnection(ev channel.Event) {
	if ev.Connection == nil {
		return
	}

	r.mu.Lock()
	var watched []string
	if ev.Connection.Status == channel.StatusConnected {
		watched = r.watchedLots()
		r.lastSeq = make(map[string]int64)
		r.stats.Resyncs += int64(len(watched))
	}
	handlers := r.allHandlers()
	r.mu.Unlock()

	for _, h := range handlers {
		h.HandleConnection(*ev.Connection)
	}

	for _, lotID := range watched {
		r.send(EventSubscribe, lotID)
		r.metrics.Resync(string(ResyncReconnect))

		r.mu.Lock()
		targets := r.handlersFor(lotID)
		r.mu.Unlock()
		for _, h := range targets {
			h.HandleResync(lotID, ResyncReconnect)
		}
	}
}

func (r *Router) decodeFailed(ev channel.Event, err error) {
	r.logger.Warn("dropping undecodable event", "type", ev.Type, "error", err)
	r.metrics.DecodeError()

	r.mu.Lock()
	r.stats.DecodeErrors++
	r.mu.Unlock()
}

// checkSequence records seq for lotID and reports a gap. Sequences of 0 are
// untracked; repeated or older sequences are left to the view model's
// staleness rule. Caller holds mu.
func (r *Router) checkSequence(lotID string, seq int64) (gap bool, gapSize int64) {
	if seq <= 0 {
		return false, 0
	}

	last, exists := r.lastSeq[lotID]
	if !exists {
		r.lastSeq[lotID] = seq
		return false, 0
	}
	if seq <= last {
		return false, 0
	}

	r.lastSeq[lotID] = seq
	if seq != last+1 {
		r.stats.SequenceGaps++
		return true, seq - last - 1
	}
	return false, 0
}

// targets returns the handlers for lotID and counts the routing. Caller holds mu.
func (r *Router) targets(lotID string) []LotHandler {
	out := r.handlersFor(lotID)
	if len(r.lots[lotID]) == 0 {
		r.stats.Unwatched++
	}
	if len(out) > 0 {
		r.stats.Routed++
	}
	return out
}

// handlersFor returns lotID's watchers followed by WatchAll watchers. Caller holds mu.
func (r *Router) handlersFor(lotID string) []LotHandler {
	lot := r.lots[lotID]
	out := make([]LotHandler, 0, len(lot)+len(r.all))
	for _, w := range lot {
		out = append(out, w.handler)
	}
	for _, w := range r.all {
		out = append(out, w.handler)
	}
	return out
}

// allHandlers returns one entry per registration. Caller holds mu.
func (r *Router) allHandlers() []LotHandler {
	var out []LotHandler
	for _, lotID := range r.watchedLots() {
		for _, w := range r.lots[lotID] {
			out = append(out, w.handler)
		}
	}
	for _, w := range r.all {
		out = append(out, w.handler)
	}
	return out
}

// watchedLots returns sorted lot IDs. Caller holds mu.
func (r *Router) watchedLots() []string {
	ids := make([]string, 0, len(r.lots))
	for id := range r.lots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func without(ws []watcher, id uint64) []watcher {
	out := make([]watcher, 0, len(ws))
	for _, w := range ws {
		if w.id != id {
			out = append(out, w)
		}
	}
	return out
}
