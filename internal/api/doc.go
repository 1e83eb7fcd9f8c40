// Package api is the REST client for the bid record store.
//
// Endpoints:
//   - GET  /bids/{lotId}        lot and ordered offer history
//   - POST /bids/{lotId}/offer  submit an offer {amount, idempotencyKey}
//
// Reads are retried with jittered exponential backoff on 5xx and 429.
// Offer submission is never retried here; the caller decides.
package api
