// Package viewmodel maintains the derived, in-memory bid state of one lot:
// current price, recent offers, moving average, trend and time left.
//
// The current price never decreases for the lifetime of a Model. Remote
// offers at or below it are treated as stale or duplicate and ignored.
// Optimistic offers placed by this client are keyed by idempotency key and
// are replaced, not double counted, when the server echoes them back.
package viewmodel
