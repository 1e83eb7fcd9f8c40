// Package channel implements the push channel client.
//
// The client:
//   - Opens one connection through a pluggable Transport (WebSocket or NATS)
//   - Fans typed events out to subscribers on a single dispatch goroutine, in arrival order
//   - Reconnects after an abnormal close with a fixed delay, up to a bounded number of attempts
//   - Emits connection lifecycle events (connected, disconnected, failed) as ordinary events
package channel
