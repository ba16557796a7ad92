package relay

import "sync"

// Relay is an unbounded, concurrency-safe FIFO that hands items from a
// producer goroutine to a consumer that periodically takes everything
// buffered so far.
type Relay[T any] struct {
	mu    sync.Mutex
	items []T
}

func New[T any]() *Relay[T] {
	return &Relay[T]{}
}

// Enqueue appends an item. It never blocks beyond the internal lock.
func (r *Relay[T]) Enqueue(item T) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
}

// DrainAll removes and returns every buffered item in arrival order.
// It returns nil when the relay is empty.
func (r *Relay[T]) DrainAll() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return nil
	}
	out := r.items
	r.items = nil
	return out
}

func (r *Relay[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
