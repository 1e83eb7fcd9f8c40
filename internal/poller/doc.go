// Package poller keeps open lot views current between push events.
//
// Two loops run side by side:
//   - a fast tick loop recomputes each lot's time left and local expiry
//   - a slow refresh loop re-fetches every lot from the bid record store with
//     bounded concurrency, so a missed push event is repaired without waiting
//     for a reconnect
package poller
