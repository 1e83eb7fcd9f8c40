package archive

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS offers (
	offer_id        TEXT PRIMARY KEY,
	lot_id          TEXT NOT NULL,
	bidder_id       TEXT NOT NULL DEFAULT '',
	amount          NUMERIC(14, 2) NOT NULL,
	submitted_at    TIMESTAMPTZ NOT NULL,
	seq             BIGINT NOT NULL DEFAULT 0,
	idempotency_key TEXT NOT NULL DEFAULT '',
	received_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS offers_lot_history_idx
	ON offers (lot_id, submitted_at DESC, seq DESC);
`

// EnsureSchema creates the offers table and its index if they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure offers schema: %w", err)
	}
	return nil
}
