// Package metrics exposes the engine's Prometheus instruments.
//
// Every method is safe on a nil *Registry so components can take metrics as
// an optional dependency.
package metrics
