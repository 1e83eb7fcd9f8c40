// Package buffer provides the unbounded FIFO used between producers that must
// never block or drop (socket readers, push handlers) and a single consumer.
package buffer
