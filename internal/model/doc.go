// Package model defines the bidding domain types shared across the engine.
//
// Conventions:
//   - Amounts: shopspring decimal, rounded to two places at the validation boundary
//   - Timestamps: time.Time in UTC
//   - IDs: opaque strings issued by the bid record store; idempotency keys are UUIDs
package model
