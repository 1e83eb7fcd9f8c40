package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID           = "bidding"
	DefaultBaseURL              = "http://localhost:8080/api"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultRetryBackoff         = 1 * time.Second
	DefaultTransport            = TransportWebSocket
	DefaultWSURL                = "ws://localhost:8080/ws"
	DefaultNATSURL              = "nats://localhost:4222"
	DefaultNATSPrefix           = "bid_events"
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultDialTimeout          = 10 * time.Second
	DefaultQueueSize            = 1024
	DefaultPingInterval         = 15 * time.Second
	DefaultPingTimeout          = 30 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultSubmitTimeout        = 15 * time.Second
	DefaultCountdownInterval    = 1 * time.Second
	DefaultTickInterval         = 1 * time.Second
	DefaultRefreshInterval      = 1 * time.Minute
	DefaultRefreshTimeout       = 10 * time.Second
	DefaultConcurrency          = 8
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Channel defaults
	if c.Channel.Transport == "" {
		c.Channel.Transport = DefaultTransport
	}
	if c.Channel.ReconnectDelay == 0 {
		c.Channel.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Channel.MaxReconnectAttempts == 0 {
		c.Channel.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Channel.DialTimeout == 0 {
		c.Channel.DialTimeout = DefaultDialTimeout
	}
	if c.Channel.QueueSize == 0 {
		c.Channel.QueueSize = DefaultQueueSize
	}
	if c.Channel.WebSocket.URL == "" {
		c.Channel.WebSocket.URL = DefaultWSURL
	}
	if c.Channel.WebSocket.PingInterval == 0 {
		c.Channel.WebSocket.PingInterval = DefaultPingInterval
	}
	if c.Channel.WebSocket.PingTimeout == 0 {
		c.Channel.WebSocket.PingTimeout = DefaultPingTimeout
	}
	if c.Channel.WebSocket.WriteTimeout == 0 {
		c.Channel.WebSocket.WriteTimeout = DefaultWriteTimeout
	}
	if c.Channel.NATS.URL == "" {
		c.Channel.NATS.URL = DefaultNATSURL
	}
	if c.Channel.NATS.Prefix == "" {
		c.Channel.NATS.Prefix = DefaultNATSPrefix
	}
	if c.Channel.NATS.BufferSize == 0 {
		c.Channel.NATS.BufferSize = DefaultQueueSize
	}

	// Bidding defaults
	if c.Bidding.SubmitTimeout == 0 {
		c.Bidding.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.Bidding.CountdownInterval == 0 {
		c.Bidding.CountdownInterval = DefaultCountdownInterval
	}
	if c.Bidding.TickInterval == 0 {
		c.Bidding.TickInterval = DefaultTickInterval
	}
	if c.Bidding.RefreshInterval == 0 {
		c.Bidding.RefreshInterval = DefaultRefreshInterval
	}
	if c.Bidding.RefreshTimeout == 0 {
		c.Bidding.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.Bidding.Concurrency == 0 {
		c.Bidding.Concurrency = DefaultConcurrency
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
