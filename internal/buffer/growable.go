package buffer

import "sync"

// growThreshold is the fill percentage at which the ring doubles.
const growThreshold = 70

// Growable is a thread-safe FIFO backed by a ring that doubles its capacity
// once it is 70% full. Send never blocks and never drops while open.
type Growable[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	tail   int
	count  int
	closed bool

	sent     int64
	received int64
	resizes  int
}

// Stats is a point-in-time view of a Growable.
type Stats struct {
	Len      int
	Cap      int
	Sent     int64 // Items accepted by Send
	Received int64 // Items handed out to consumers
	Resizes  int
}

// New returns an empty queue with room for size items before the first resize.
func New[T any](size int) *Growable[T] {
	if size < 1 {
		size = 1
	}
	g := &Growable[T]{ring: make([]T, size)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Send appends item. It returns false once the queue is closed.
func (g *Growable[T]) Send(item T) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}

	limit := len(g.ring) * growThreshold / 100
	if limit < 1 {
		limit = 1
	}
	if g.count+1 >= limit {
		g.resize(len(g.ring) * 2)
	}

	g.ring[g.tail] = item
	g.tail = (g.tail + 1) % len(g.ring)
	g.count++
	g.sent++

	g.cond.Signal()
	return true
}

// Receive blocks until an item is available. After Close it keeps returning
// queued items and then reports false.
func (g *Growable[T]) Receive() (T, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.count == 0 && !g.closed {
		g.cond.Wait()
	}
	if g.count == 0 {
		var zero T
		return zero, false
	}
	return g.pop(), true
}

// DrainTo removes up to max items (all when max <= 0) in FIFO order.
func (g *Growable[T]) DrainTo(max int) []T {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = g.pop()
	}
	return out
}

// Close stops accepting items and wakes every blocked receiver.
func (g *Growable[T]) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	g.cond.Broadcast()
}

// Len returns the number of queued items.
func (g *Growable[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

// Stats returns counters for monitoring.
func (g *Growable[T]) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Len:      g.count,
		Cap:      len(g.ring),
		Sent:     g.sent,
		Received: g.received,
		Resizes:  g.resizes,
	}
}

// pop removes the head item. Caller holds mu and has checked count > 0.
func (g *Growable[T]) pop() T {
	var zero T
	item := g.ring[g.head]
	g.ring[g.head] = zero
	g.head = (g.head + 1) % len(g.ring)
	g.count--
	g.received++
	return item
}

// resize copies the live window into a new ring of the given size. Caller holds mu.
func (g *Growable[T]) resize(size int) {
	next := make([]T, size)
	if g.count > 0 {
		if g.head < g.tail {
			copy(next, g.ring[g.head:g.tail])
		} else {
			n := copy(next, g.ring[g.head:])
			copy(next[n:], g.ring[:g.tail])
		}
	}
	g.ring = next
	g.head = 0
	g.tail = g.count
	g.resizes++
}
