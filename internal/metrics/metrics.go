package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the engine's collectors on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	OffersApplied   *prometheus.CounterVec // by source: remote, optimistic
	OffersIgnored   prometheus.Counter
	OffersConfirmed prometheus.Counter
	OffersBuffered  prometheus.Counter

	ChannelState      prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	ReconnectFailures prometheus.Counter
	EventsReceived    *prometheus.CounterVec // by event type
	DecodeErrors      prometheus.Counter
	SequenceGaps      prometheus.Counter
	Resyncs           *prometheus.CounterVec // by reason

	Submissions       *prometheus.CounterVec // by result: accepted, rejected, failed
	SubmissionLatency prometheus.Histogram

	ArchiveInserted  prometheus.Counter
	ArchiveConflicts prometheus.Counter
	ArchiveErrors    prometheus.Counter
}

// NewRegistry creates and registers every collector.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		OffersApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidding_offers_applied_total",
			Help: "Offers that advanced a lot's current price.",
		}, []string{"source"}),
		OffersIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_offers_ignored_total",
			Help: "Stale or duplicate offers at or below the current price.",
		}),
		OffersConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_offers_confirmed_total",
			Help: "Optimistic offers matched by a server event.",
		}),
		OffersBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_offers_buffered_total",
			Help: "Push events held until the initial load completed.",
		}),
		ChannelState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bidding_channel_state",
			Help: "Push channel state (0 idle, 1 connecting, 2 connected, 3 reconnecting, 4 failed).",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_channel_reconnect_attempts_total",
		}),
		ReconnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_channel_reconnect_exhausted_total",
		}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidding_channel_events_total",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_channel_decode_errors_total",
		}),
		SequenceGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_sequence_gaps_total",
		}),
		Resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidding_resyncs_total",
		}, []string{"reason"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidding_submissions_total",
		}, []string{"result"}),
		SubmissionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bidding_submission_latency_seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ArchiveInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_archive_inserted_total",
		}),
		ArchiveConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_archive_conflicts_total",
		}),
		ArchiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidding_archive_errors_total",
		}),
	}

	r.reg.MustRegister(
		r.OffersApplied, r.OffersIgnored, r.OffersConfirmed, r.OffersBuffered,
		r.ChannelState, r.ReconnectAttempts, r.ReconnectFailures, r.EventsReceived,
		r.DecodeErrors, r.SequenceGaps, r.Resyncs,
		r.Submissions, r.SubmissionLatency,
		r.ArchiveInserted, r.ArchiveConflicts, r.ArchiveErrors,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) OfferApplied(optimistic bool) {
	if r == nil {
		return
	}
	source := "remote"
	if optimistic {
		source = "optimistic"
	}
	r.OffersApplied.WithLabelValues(source).Inc()
}

func (r *Registry) OfferIgnored() {
	if r != nil {
		r.OffersIgnored.Inc()
	}
}

func (r *Registry) OfferConfirmed() {
	if r != nil {
		r.OffersConfirmed.Inc()
	}
}

func (r *Registry) OfferBuffered() {
	if r != nil {
		r.OffersBuffered.Inc()
	}
}

func (r *Registry) SetChannelState(state int) {
	if r != nil {
		r.ChannelState.Set(float64(state))
	}
}

func (r *Registry) ReconnectAttempt() {
	if r != nil {
		r.ReconnectAttempts.Inc()
	}
}

func (r *Registry) ReconnectExhausted() {
	if r != nil {
		r.ReconnectFailures.Inc()
	}
}

func (r *Registry) EventReceived(eventType string) {
	if r != nil {
		r.EventsReceived.WithLabelValues(eventType).Inc()
	}
}

func (r *Registry) DecodeError() {
	if r != nil {
		r.DecodeErrors.Inc()
	}
}

func (r *Registry) SequenceGap() {
	if r != nil {
		r.SequenceGaps.Inc()
	}
}

func (r *Registry) Resync(reason string) {
	if r != nil {
		r.Resyncs.WithLabelValues(reason).Inc()
	}
}

// Submission records the outcome and duration of one offer submission.
func (r *Registry) Submission(result string, seconds float64) {
	if r == nil {
		return
	}
	r.Submissions.WithLabelValues(result).Inc()
	r.SubmissionLatency.Observe(seconds)
}

// ArchiveFlush records one batch insert.
func (r *Registry) ArchiveFlush(inserted, conflicts int) {
	if r == nil {
		return
	}
	r.ArchiveInserted.Add(float64(inserted))
	r.ArchiveConflicts.Add(float64(conflicts))
}

func (r *Registry) ArchiveError() {
	if r != nil {
		r.ArchiveErrors.Inc()
	}
}
