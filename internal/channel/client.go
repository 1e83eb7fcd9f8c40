package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sanlk21/smartrice-bidding/internal/buffer"
	"github.com/sanlk21/smartrice-bidding/internal/metrics"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records connection state and traffic on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) {
		c.metrics = reg
	}
}

type subscription struct {
	id      uint64
	handler Handler
}

// Client is the push channel client. It owns at most one connection at a time.
type Client struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Registry

	// Dispatch: every event, including lifecycle events, goes through one FIFO
	// drained by one goroutine.
	queue        *buffer.Growable[Event]
	dispatchDone chan struct{}

	subsMu sync.RWMutex
	subs   map[string][]subscription
	nextID uint64

	mu      sync.Mutex
	machine *machine
	conn    Conn
	gen     uint64 // Bumped whenever the current connection or retry is superseded
	retry   *time.Timer
	closed  bool
}

// New creates a client and starts its dispatch goroutine. Call Connect to open
// the connection and Close to release it.
func New(cfg Config, transport Transport, opts ...Option) *Client {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	c := &Client{
		cfg:          cfg,
		transport:    transport,
		logger:       slog.Default(),
		queue:        buffer.New[Event](cfg.QueueSize),
		dispatchDone: make(chan struct{}),
		subs:         make(map[string][]subscription),
		machine:      newMachine(cfg.MaxReconnectAttempts),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.dispatchLoop()
	return c
}

// Connect opens the connection. On success the reconnect counter is reset and
// a connected event is emitted. A failed dial is returned and also enters the
// reconnect schedule, exactly as an abnormal close would.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.machine.state == StateConnected || c.machine.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.stopRetry()
	c.machine.connecting()
	c.setState()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.closed {
		if conn != nil {
			conn.Close()
		}
		if c.closed {
			return ErrClosed
		}
		return nil
	}
	if err != nil {
		c.logger.Warn("push channel connect failed", "error", err)
		c.lost(err)
		return fmt.Errorf("connect push channel: %w", err)
	}

	c.open(conn)
	return nil
}

// Subscribe registers handler for eventType. The returned func removes exactly
// this registration; calling it more than once is harmless.
func (c *Client) Subscribe(eventType string, handler Handler) (unsubscribe func()) {
	c.subsMu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[eventType] = append(c.subs[eventType], subscription{id: id, handler: handler})
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()

			list := c.subs[eventType]
			for i, s := range list {
				if s.id == id {
					next := make([]subscription, 0, len(list)-1)
					next = append(next, list[:i]...)
					next = append(next, list[i+1:]...)
					c.subs[eventType] = next
					break
				}
			}
			if len(c.subs[eventType]) == 0 {
				delete(c.subs, eventType)
			}
		})
	}
}

// Send writes an envelope of eventType carrying payload. It returns
// ErrNotConnected unless the connection is open.
func (c *Client) Send(eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	data, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.machine.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(data); err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.state
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close shuts the connection, cancels any pending reconnect and stops
// dispatch once queued events have been delivered.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.stopRetry()
	conn := c.conn
	c.conn = nil
	wasConnected := c.machine.state == StateConnected
	c.machine.closedNormally()
	c.setState()
	if wasConnected {
		c.emit(ConnectionEvent{Status: StatusDisconnected})
	}
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.queue.Close()
	return err
}

// Done is closed once the dispatch goroutine has delivered every queued event after Close.
func (c *Client) Done() <-chan struct{} {
	return c.dispatchDone
}

// open installs a live connection. Caller holds mu.
func (c *Client) open(conn Conn) {
	c.conn = conn
	c.machine.connected()
	c.setState()
	c.emit(ConnectionEvent{Status: StatusConnected})
	c.logger.Info("push channel connected")

	go c.readLoop(conn, c.gen)
}

// lost handles an abnormal close or failed dial. Caller holds mu.
func (c *Client) lost(cause error) {
	attempt, retry := c.machine.lost()
	c.setState()
	if !retry {
		c.logger.Error("push channel reconnect attempts exhausted",
			"attempts", attempt,
			"error", cause,
		)
		c.metrics.ReconnectExhausted()
		c.emit(ConnectionEvent{Status: StatusFailed, Attempt: attempt, Err: cause})
		return
	}

	c.gen++
	gen := c.gen
	c.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"max_attempts", c.cfg.MaxReconnectAttempts,
		"delay", c.cfg.ReconnectDelay,
	)
	c.retry = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.reconnect(gen, attempt)
	})
}

// reconnect runs one scheduled attempt.
func (c *Client) reconnect(gen uint64, attempt int) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.metrics.ReconnectAttempt()

	ctx := context.Background()
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := c.transport.Dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
		c.lost(err)
		return
	}
	c.open(conn)
}

// readLoop reads one connection until it closes.
func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.Read()
		receivedAt := time.Now()
		if err != nil {
			c.closedByPeer(gen, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.logger.Warn("dropping malformed push message", "error", err, "size", len(data))
			c.metrics.DecodeError()
			continue
		}

		c.metrics.EventReceived(env.Type)
		c.queue.Send(Event{
			Type:       env.Type,
			Seq:        env.Seq,
			Payload:    env.Payload,
			ReceivedAt: receivedAt,
		})
	}
}

// closedByPeer reacts to the end of a read loop.
func (c *Client) closedByPeer(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.closed {
		return
	}
	conn := c.conn
	c.conn = nil
	if conn != nil {
		go conn.Close()
	}

	if errors.Is(err, ErrNormalClosure) {
		c.logger.Info("push channel closed by server")
		c.machine.closedNormally()
		c.setState()
		c.emit(ConnectionEvent{Status: StatusDisconnected})
		return
	}

	c.logger.Warn("push channel lost", "error", err)
	c.emit(ConnectionEvent{Status: StatusDisconnected, Err: err})
	c.lost(err)
}

// emit queues a lifecycle event behind any data already received. Caller holds mu.
func (c *Client) emit(ev ConnectionEvent) {
	payload, _ := json.Marshal(ev)
	c.queue.Send(Event{
		Type:       EventConnection,
		Payload:    payload,
		ReceivedAt: time.Now(),
		Connection: &ev,
	})
}

// stopRetry cancels a pending reconnect. Caller holds mu.
func (c *Client) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// setState publishes the machine state to metrics. Caller holds mu.
func (c *Client) setState() {
	c.metrics.SetChannelState(int(c.machine.state))
}

func (c *Client) dispatchLoop() {
	defer close(c.dispatchDone)

	for {
		ev, ok := c.queue.Receive()
		if !ok {
			return
		}

		c.subsMu.RLock()
		handlers := c.subs[ev.Type]
		c.subsMu.RUnlock()

		for _, s := range handlers {
			s.handler(ev)
		}
	}
}
