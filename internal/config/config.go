package config

import "time"

// Config is the root configuration.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Channel  ChannelConfig  `yaml:"channel"`
	Bidding  BiddingConfig  `yaml:"bidding"`
	Database DBConfig       `yaml:"database"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this process in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds bid record store REST settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"` // Sent as a bearer token
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Push channel transports.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// ChannelConfig holds push channel settings.
type ChannelConfig struct {
	Transport            string        `yaml:"transport"` // websocket or nats
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	QueueSize            int           `yaml:"queue_size"`

	WebSocket WebSocketConfig `yaml:"websocket"`
	NATS      NATSConfig      `yaml:"nats"`
}

// WebSocketConfig holds WebSocket transport settings.
type WebSocketConfig struct {
	URL          string        `yaml:"url"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NATSConfig holds NATS transport settings.
type NATSConfig struct {
	URL        string `yaml:"url"`
	Prefix     string `yaml:"prefix"` // Subjects are <prefix>.<event type>
	Token      string `yaml:"token"`
	BufferSize int    `yaml:"buffer_size"`
}

// BiddingConfig holds session settings.
type BiddingConfig struct {
	SubmitTimeout     time.Duration `yaml:"submit_timeout"`
	CountdownInterval time.Duration `yaml:"countdown_interval"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	RefreshTimeout    time.Duration `yaml:"refresh_timeout"`
	Concurrency       int           `yaml:"concurrency"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ArchiveConfig holds offer archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Backfill      bool          `yaml:"backfill"` // Re-fetch lot history on resync
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
