package channel

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrNormalClosure   = errors.New("connection closed normally")
	ErrClosed          = errors.New("channel closed")
)

// EventConnection is the type of the lifecycle events the client emits itself.
const EventConnection = "connection"

// ConnectionStatus is the payload of a connection event.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusFailed       ConnectionStatus = "failed"
)

// ConnectionEvent describes a lifecycle transition.
type ConnectionEvent struct {
	Status  ConnectionStatus `json:"status"`
	Attempt int              `json:"attempt,omitempty"` // Reconnect attempts used so far
	Err     error            `json:"-"`                 // Cause of a disconnect or failure
}

// Envelope is the wire shape of every push message, in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is a decoded push message as delivered to handlers.
type Event struct {
	Type       string
	Seq        int64
	Payload    json.RawMessage
	ReceivedAt time.Time
	Connection *ConnectionEvent // Set only for EventConnection
}

// Handler receives events. Handlers run on the dispatch goroutine and must not block for long.
type Handler func(Event)

// Config configures a Client.
type Config struct {
	ReconnectDelay       time.Duration // Fixed wait before each reconnect attempt
	MaxReconnectAttempts int           // Attempts before giving up and emitting "failed"
	DialTimeout          time.Duration // Bound on each reconnect dial
	QueueSize            int           // Initial dispatch queue capacity (grows as needed)
}

// DefaultConfig returns the standard reconnect policy.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		DialTimeout:          10 * time.Second,
		QueueSize:            1024,
	}
}
