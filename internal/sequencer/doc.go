// Package sequencer stages one offer through a timed confirmation before it
// is submitted: DRAFTING, ARMED (countdown), SUBMITTING, then DONE or
// CANCELLED. A failed submission returns to a paused ARMED state and is only
// resubmitted on an explicit Retry.
package sequencer
