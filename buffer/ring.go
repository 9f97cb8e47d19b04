// Package buffer provides the bounded histories a liveness session keeps:
// a typed ring over a fixed-capacity circular queue, and the frame window.
package buffer

import (
	"github.com/emirpasic/gods/queues/circularbuffer"
)

// Ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest
// value in O(1).
type Ring[T any] struct {
	queue    *circularbuffer.Queue
	capacity int
}

// NewRing creates a ring holding at most capacity values. Capacity must be
// positive.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{
		queue:    circularbuffer.New(capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest value when full.
func (r *Ring[T]) Push(v T) {
	r.queue.Enqueue(v)
}

func (r *Ring[T]) Len() int { return r.queue.Size() }

func (r *Ring[T]) Cap() int { return r.capacity }

func (r *Ring[T]) Full() bool { return r.queue.Full() }

// Clear drops every value.
func (r *Ring[T]) Clear() {
	r.queue.Clear()
}

// Values returns the contents oldest first.
func (r *Ring[T]) Values() []T {
	raw := r.queue.Values()
	out := make([]T, len(raw))
	for i, v := range raw {
		out[i] = v.(T)
	}
	return out
}

// Last returns the n most recent values, oldest first. If fewer than n are
// held, all of them are returned.
func (r *Ring[T]) Last(n int) []T {
	values := r.Values()
	if n < len(values) {
		values = values[len(values)-n:]
	}
	return values
}

// Newest returns the most recently pushed value.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.queue.Empty() {
		return zero, false
	}
	values := r.queue.Values()
	return values[len(values)-1].(T), true
}
