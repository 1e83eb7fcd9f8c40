// Package router turns raw push channel events into per-lot callbacks.
//
// It decodes bidUpdates and lotStatus payloads, tracks the server sequence of
// each lot to detect gaps, asks the server to stream a lot while it is
// watched, and tells watchers to resync whenever the stream may have missed
// events (after a reconnect or a sequence gap).
package router
