package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures the WebSocket transport.
type WebSocketConfig struct {
	URL              string        // e.g. wss://bids.smartrice.lk/ws
	APIKey           string        // Sent as a bearer token when set
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max silence before the connection is considered stale
	WriteTimeout     time.Duration // Write deadline for sends and control frames
	HandshakeTimeout time.Duration
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// WebSocketTransport dials gorilla/websocket connections.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	logger *slog.Logger
}

// NewWebSocketTransport creates a transport for cfg.URL.
func NewWebSocketTransport(cfg WebSocketConfig, logger *slog.Logger) *WebSocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketTransport{cfg: cfg, logger: logger}
}

// Dial opens a connection and starts its keepalive loop.
func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if t.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}

	c := &wsConn{
		cfg:      t.cfg,
		logger:   t.logger,
		ws:       ws,
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}

	// Server pings are answered with a pong; either direction counts as liveness.
	ws.SetPingHandler(func(data string) error {
		c.touch()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	if t.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	t.logger.Debug("websocket connected", "url", t.cfg.URL)
	return c, nil
}

type wsConn struct {
	cfg    WebSocketConfig
	logger *slog.Logger
	ws     *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
	stale    bool
	closed   bool
	done     chan struct{}
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *wsConn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err == nil {
		c.touch()
		return data, nil
	}

	c.mu.Lock()
	stale := c.stale
	c.mu.Unlock()

	switch {
	case stale:
		return nil, ErrStaleConnection
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return nil, fmt.Errorf("%w: %v", ErrNormalClosure, err)
	default:
		return nil, err
	}
}

func (c *wsConn) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and tears down the socket.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.writeMu.Lock()
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return c.ws.Close()
}

// heartbeatLoop pings the server and drops the socket once it goes quiet for
// longer than PingTimeout, which unblocks Read with ErrStaleConnection.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			lastSeen := c.lastSeen
			c.mu.Unlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastSeen) > c.cfg.PingTimeout {
				c.logger.Warn("no traffic from server, connection stale",
					"last_seen", lastSeen,
					"timeout", c.cfg.PingTimeout,
				)
				c.mu.Lock()
				c.stale = true
				c.mu.Unlock()
				c.ws.Close()
				return
			}
		}
	}
}
