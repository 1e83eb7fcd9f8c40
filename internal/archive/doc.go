// Package archive persists accepted offers seen on the push channel to
// PostgreSQL and serves the per-lot offer history back.
//
// Writes are batched with pgx.Batch and made idempotent with
// ON CONFLICT DO NOTHING, so replays after a reconnect or a backfill from the
// bid record store never duplicate rows.
package archive
