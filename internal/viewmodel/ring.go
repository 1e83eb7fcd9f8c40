package viewmodel

// Ring keeps the last N items pushed, evicting the oldest on overflow.
// It is not safe for concurrent use; Model guards it with its own mutex.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest item
	count int
}

// NewRing returns a ring holding at most size items.
func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}
	return &Ring[T]{items: make([]T, size)}
}

// Push appends item, evicting the oldest when full.
func (r *Ring[T]) Push(item T) {
	if r.count < len(r.items) {
		r.items[(r.head+r.count)%len(r.items)] = item
		r.count++
		return
	}
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
}

// Items returns the contents oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Replace swaps the first item matching pred for item. It reports whether one was found.
func (r *Ring[T]) Replace(pred func(T) bool, item T) bool {
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % len(r.items)
		if pred(r.items[idx]) {
			r.items[idx] = item
			return true
		}
	}
	return false
}

// Last returns the newest n items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	all := r.Items()
	if n < len(all) {
		return all[len(all)-n:]
	}
	return all
}

func (r *Ring[T]) Len() int { return r.count }

// Reset empties the ring.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.count = 0, 0
}
