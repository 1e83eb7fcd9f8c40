package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS transport.
//
// Inbound envelopes are read from every subject under Prefix. Outbound
// envelopes are published to Prefix + ".outbound".
type NATSConfig struct {
	URL         string
	Prefix      string // e.g. "bid_events"
	Name        string // Client connection name shown by the server
	Token       string
	DialTimeout time.Duration
	BufferSize  int // Inbound channel buffer per connection
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:         nats.DefaultURL,
		Prefix:      "bid_events",
		Name:        "smartrice-bidding",
		DialTimeout: 10 * time.Second,
		BufferSize:  4096,
	}
}

// NATSTransport receives push envelopes from a NATS subject tree.
// Reconnection is left to the Client, so the nats library's own reconnect is disabled.
type NATSTransport struct {
	cfg    NATSConfig
	logger *slog.Logger
}

// NewNATSTransport creates a NATS transport.
func NewNATSTransport(cfg NATSConfig, logger *slog.Logger) *NATSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultNATSConfig().BufferSize
	}
	return &NATSTransport{cfg: cfg, logger: logger}
}

// Dial connects and subscribes to the inbound subject tree.
func (t *NATSTransport) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := t.cfg.DialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout == 0 || left < timeout {
			timeout = left
		}
	}

	c := &natsConn{
		msgs: make(chan *nats.Msg, t.cfg.BufferSize),
		lost: make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name(t.cfg.Name),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.fail(err)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.fail(nil)
		}),
	}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(timeout))
	}
	if t.cfg.Token != "" {
		opts = append(opts, nats.Token(t.cfg.Token))
	}

	nc, err := nats.Connect(t.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", t.cfg.URL, err)
	}

	subject := t.cfg.Prefix + ".>"
	sub, err := nc.ChanSubscribe(subject, c.msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.nc = nc
	c.sub = sub
	c.outbound = t.cfg.Prefix + ".outbound"

	t.logger.Debug("nats connected", "url", t.cfg.URL, "subject", subject)
	return c, nil
}

type natsConn struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	outbound string
	msgs     chan *nats.Msg

	mu      sync.Mutex
	lost    chan struct{}
	lostErr error
	local   bool // Close was called by us
	once    sync.Once
}

// fail records why the connection went away. A nil err with no prior error is a clean close.
func (c *natsConn) fail(err error) {
	c.mu.Lock()
	if c.lostErr == nil && err != nil {
		c.lostErr = err
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.lost) })
}

func (c *natsConn) Read() ([]byte, error) {
	for {
		select {
		case msg := <-c.msgs:
			if msg.Subject == c.outbound {
				continue // Our own outbound traffic
			}
			return msg.Data, nil
		case <-c.lost:
			// Deliver what was already received before reporting the close.
			if data, ok := c.pending(); ok {
				return data, nil
			}
			c.mu.Lock()
			err, local := c.lostErr, c.local
			c.mu.Unlock()
			if err == nil || local {
				return nil, fmt.Errorf("%w: nats connection closed", ErrNormalClosure)
			}
			return nil, fmt.Errorf("nats connection lost: %w", err)
		}
	}
}

// pending returns the next buffered inbound message without blocking.
func (c *natsConn) pending() ([]byte, bool) {
	for {
		select {
		case msg := <-c.msgs:
			if msg.Subject == c.outbound {
				continue
			}
			return msg.Data, true
		default:
			return nil, false
		}
	}
}

func (c *natsConn) Write(data []byte) error {
	if !c.nc.IsConnected() {
		return ErrNotConnected
	}
	if err := c.nc.Publish(c.outbound, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

func (c *natsConn) Close() error {
	c.mu.Lock()
	c.local = true
	c.mu.Unlock()

	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.nc.Close()
	c.fail(nil)
	return nil
}
