// Package heap provides a bounded max-heap keyed by distance.
//
// The heap retains the k smallest distances seen so far: while there is room
// every value is admitted, and once full a candidate only displaces the
// current maximum if it is strictly smaller. A single comparison against the
// root decides admission, so rejected candidates cost O(1).
package heap

import "github.com/hupe1980/kdgo/internal/fmath"

// Float is the set of supported distance types.
type Float interface {
	~float32 | ~float64
}

// Bounded is a fixed-capacity binary max-heap over distances with an
// associated value per entry. Storage is dense arrays using standard
// 0-indexed heap arithmetic (parent = (c-1)/2, children = 2p+1, 2p+2).
//
// A Bounded is not safe for concurrent use.
type Bounded[F Float, T any] struct {
	distances []F
	values    []T
	capacity  int
	size      int
}

// New creates a heap that retains the k smallest distances.
//
// k = 0 yields a degenerate heap that never admits anything; callers
// requesting zero neighbors must treat that as "no query".
func New[F Float, T any](k int) *Bounded[F, T] {
	return &Bounded[F, T]{
		distances: make([]F, k),
		values:    make([]T, k),
		capacity:  k,
	}
}

// Len returns the number of entries currently held.
func (h *Bounded[F, T]) Len() int { return h.size }

// Cap returns the capacity k.
func (h *Bounded[F, T]) Cap() int { return h.capacity }

// MaxDist returns the largest distance held, i.e. the current k-th smallest.
// While the heap holds fewer than k entries it returns positive infinity so
// that an underfull heap never prunes a real candidate.
func (h *Bounded[F, T]) MaxDist() F {
	if h.size < h.capacity {
		return fmath.Inf[F]()
	}
	return h.distances[0]
}

// Add offers a (distance, value) pair. It reports whether the pair was
// admitted: always while there is room, otherwise only if distance is
// strictly smaller than the current maximum.
func (h *Bounded[F, T]) Add(distance F, value T) bool {
	if h.size < h.capacity {
		h.distances[h.size] = distance
		h.values[h.size] = value
		h.size++
		h.siftUp(h.size - 1)
		return true
	}
	if h.capacity > 0 && distance < h.distances[0] {
		h.distances[0] = distance
		h.values[0] = value
		h.siftDown(0)
		return true
	}
	return false
}

// RemoveLargest pops the current maximum. Draining the heap yields entries in
// descending distance order; callers wanting ascending order reverse it.
//
// Calling RemoveLargest on an empty heap is a programming error and panics.
func (h *Bounded[F, T]) RemoveLargest() (F, T) {
	if h.size == 0 {
		panic("heap: RemoveLargest on empty heap")
	}
	distance, value := h.distances[0], h.values[0]
	h.size--
	h.distances[0] = h.distances[h.size]
	h.values[0] = h.values[h.size]
	var zero T
	h.values[h.size] = zero
	if h.size > 0 {
		h.siftDown(0)
	}
	return distance, value
}

// Reset empties the heap for reuse, keeping its capacity.
func (h *Bounded[F, T]) Reset() {
	var zero T
	for i := 0; i < h.size; i++ {
		h.values[i] = zero
	}
	h.size = 0
}

// Distances returns the live backing slice of distances in heap order.
// The caller must not retain it across Add/RemoveLargest calls.
func (h *Bounded[F, T]) Distances() []F { return h.distances[:h.size] }

// Values returns the live backing slice of values in heap order.
func (h *Bounded[F, T]) Values() []T { return h.values[:h.size] }

func (h *Bounded[F, T]) siftUp(c int) {
	for c > 0 {
		p := (c - 1) / 2
		if h.distances[c] <= h.distances[p] {
			return
		}
		h.swap(c, p)
		c = p
	}
}

func (h *Bounded[F, T]) siftDown(p int) {
	for {
		c := 2*p + 1
		if c >= h.size {
			return
		}
		if c+1 < h.size && h.distances[c+1] > h.distances[c] {
			c++
		}
		if h.distances[c] <= h.distances[p] {
			return
		}
		h.swap(c, p)
		p = c
	}
}

func (h *Bounded[F, T]) swap(i, j int) {
	h.distances[i], h.distances[j] = h.distances[j], h.distances[i]
	h.values[i], h.values[j] = h.values[j], h.values[i]
}
