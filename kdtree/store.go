package kdtree

import "sort"

// NeighborStore is the sink a range query pushes (distance, value) pairs
// into. Implementations decide collection policy; the traversal only ever
// calls Push, in traversal order.
type NeighborStore[F Float, T any] interface {
	Push(distance F, value T)
}

// SliceStore collects results into a slice.
type SliceStore[F Float, T any] struct {
	Results []Result[F, T]
}

// Push appends a result.
func (s *SliceStore[F, T]) Push(distance F, value T) {
	s.Results = append(s.Results, Result[F, T]{Distance: distance, Value: value})
}

// Sort orders the collected results by ascending distance.
func (s *SliceStore[F, T]) Sort() {
	sort.Slice(s.Results, func(i, j int) bool {
		return s.Results[i].Distance < s.Results[j].Distance
	})
}

// Reset empties the store for reuse, keeping its capacity.
func (s *SliceStore[F, T]) Reset() {
	s.Results = s.Results[:0]
}

// StoreFunc adapts a function to the NeighborStore interface.
type StoreFunc[F Float, T any] func(distance F, value T)

// Push calls the function.
func (f StoreFunc[F, T]) Push(distance F, value T) {
	f(distance, value)
}
