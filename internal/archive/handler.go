package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sanlk21/smartrice-bidding/internal/model"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity reports whether the push channel is open.
type Connectivity interface {
	IsConnected() bool
}

// Handler serves the archive's HTTP endpoints.
type Handler struct {
	reader  *HistoryReader
	db      Pinger
	ch      Connectivity
	writer  *OfferWriter
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler. writer and metrics may be nil.
func NewHandler(reader *HistoryReader, db Pinger, writer *OfferWriter, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reader: reader, db: db, writer: writer, metrics: metrics, logger: logger}
}

// WithChannel includes the push channel in health reports. A closed channel
// marks the archive degraded.
func (h *Handler) WithChannel(ch Connectivity) *Handler {
	h.ch = ch
	return h
}

// Routes configures the HTTP routes.
func (h *Handler) Routes(metricsPath string) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/lots/{id}/offers", h.ListOffers).Methods("GET")
	if h.metrics != nil {
		router.Handle(metricsPath, h.metrics).Methods("GET")
	}

	return router
}

// Health reports database connectivity and writer counters.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		health["status"] = "unhealthy"
		health["database"] = map[string]string{"status": "disconnected", "error": err.Error()}
		code = http.StatusServiceUnavailable
	} else {
		health["database"] = "connected"
	}

	if h.ch != nil {
		if h.ch.IsConnected() {
			health["channel"] = "connected"
		} else {
			health["channel"] = "disconnected"
			if code == http.StatusOK {
				health["status"] = "degraded"
			}
		}
	}

	if h.writer != nil {
		health["writer"] = h.writer.Stats()
	}

	respondJSON(w, code, health)
}

type offerJSON struct {
	ID             string    `json:"id"`
	LotID          string    `json:"bidId"`
	BidderID       string    `json:"bidderId,omitempty"`
	Amount         string    `json:"amount"`
	Timestamp      time.Time `json:"timestamp"`
	Seq            int64     `json:"seq,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
}

// ListOffers returns a lot's archived offers, newest first. The optional
// limit query parameter bounds the result.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["id"]

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	offers, err := h.reader.ListOffers(r.Context(), lotID, limit)
	if err != nil {
		h.logger.Error("list offers failed", "lot_id", lotID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read offers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"bidId":  lotID,
		"count":  len(offers),
		"offers": toJSON(offers),
	})
}

func toJSON(offers []model.Offer) []offerJSON {
	out := make([]offerJSON, len(offers))
	for i, o := range offers {
		out[i] = offerJSON{
			ID:             o.ID,
			LotID:          o.LotID,
			BidderID:       o.BidderID,
			Amount:         o.Amount.StringFixed(2),
			Timestamp:      o.SubmittedAt,
			Seq:            o.Seq,
			IdempotencyKey: o.IdempotencyKey,
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
