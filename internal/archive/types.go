package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sanlk21/smartrice-bidding/internal/model"
)

// DB is the subset of *pgxpool.Pool the archive uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Fetcher reads a lot's authoritative offer history for backfill.
type Fetcher interface {
	GetBid(ctx context.Context, lotID string) (*model.BidDetail, error)
}

// Config holds writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
	Backfill      bool // Re-fetch a lot's history when the router asks for a resync
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats tracks writer performance.
type Stats struct {
	Received  int64
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Backfills int64
}

// offerRow is one row of the offers table.
type offerRow struct {
	OfferID        string
	LotID          string
	BidderID       string
	Amount         string // Exact decimal text, cast to NUMERIC in SQL
	SubmittedAt    time.Time
	Seq            int64
	IdempotencyKey string
	ReceivedAt     time.Time
}

// offerNamespace scopes derived offer IDs.
var offerNamespace = uuid.MustParse("6f1c4f0e-3b7a-4c55-9d52-8a4e2b9c7d11")

// offerID returns the server's offer ID, or a stable ID derived from the
// fields that identify an accepted offer when the server sent none.
func offerID(o model.Offer) string {
	if o.ID != "" {
		return o.ID
	}
	key := fmt.Sprintf("%s|%d|%s|%d", o.LotID, o.Seq, o.Amount.String(), o.SubmittedAt.UnixMicro())
	return uuid.NewSHA1(offerNamespace, []byte(key)).String()
}

func toRow(o model.Offer, receivedAt time.Time) offerRow {
	return offerRow{
		OfferID:        offerID(o),
		LotID:          o.LotID,
		BidderID:       o.BidderID,
		Amount:         o.Amount.StringFixed(2),
		SubmittedAt:    o.SubmittedAt.UTC(),
		Seq:            o.Seq,
		IdempotencyKey: o.IdempotencyKey,
		ReceivedAt:     receivedAt.UTC(),
	}
}
