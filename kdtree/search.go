package kdtree

import (
	"github.com/hupe1980/kdgo/heap"
	"github.com/hupe1980/kdgo/internal/fmath"
)

// visitStatus is the per-node traversal state of one query. It lives in a
// SearchState keyed by node id, never on the node itself, so concurrent
// queries on one tree cannot corrupt each other.
type visitStatus uint8

const (
	statusNone visitStatus = iota
	statusLeftVisited
	statusRightVisited
	statusAllVisited
)

// SearchState holds the traversal state of a single query. A zero SearchState
// is ready for use; it grows to the tree's node count on first use.
//
// A SearchState may be reused across queries, but must never be shared by
// two queries running at the same time.
type SearchState struct {
	status []visitStatus
}

// NewSearchState creates a state sized for a tree with nodeCount nodes
// (see Tree.NodeCount). Sizing up front avoids a grow on first use.
func NewSearchState(nodeCount int) *SearchState {
	return &SearchState{status: make([]visitStatus, nodeCount)}
}

func (s *SearchState) prepare(nodeCount int) {
	if cap(s.status) < nodeCount {
		s.status = make([]visitStatus, nodeCount)
		return
	}
	s.status = s.status[:nodeCount]
	clear(s.status)
}

// Result is a single query result.
type Result[F Float, T any] struct {
	// Distance is in the tree metric's units (squared for SquaredEuclidean).
	Distance F
	Value    T
}

// SearchOptions controls the execution of a query. A nil *SearchOptions is
// valid and means defaults.
type SearchOptions[T any] struct {
	// State supplies the traversal state for this call. Concurrent queries
	// must each pass their own; if nil the tree's internal pool is used.
	State *SearchState

	// Filter restricts results to values it accepts. Filtered-out points
	// still cost a distance computation but never enter the result set.
	Filter func(value T) bool

	// Unsorted returns KNNSearch results in heap order (O(k)) instead of
	// ascending distance order (O(k log k)).
	Unsorted bool
}

// KNNSearch returns the k nearest neighbors of q, fewer if the tree holds
// fewer than k matching points. Results are in ascending distance order
// unless opts.Unsorted is set. Ties at the k-th distance are broken
// arbitrarily.
func (t *Tree[F, T]) KNNSearch(q [2]F, k int, opts *SearchOptions[T]) ([]Result[F, T], error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if t.size == 0 {
		return nil, nil
	}

	var state *SearchState
	var filter func(T) bool
	unsorted := false
	if opts != nil {
		state = opts.State
		filter = opts.Filter
		unsorted = opts.Unsorted
	}

	pooled := state == nil
	if pooled {
		state = t.statePool.Get().(*SearchState)
	}
	state.prepare(len(t.nodes))

	if k > t.size {
		k = t.size
	}
	h := heap.New[F, T](k)

	t.knn(q, h, state, filter)

	if pooled {
		t.statePool.Put(state)
	}

	results := make([]Result[F, T], h.Len())
	if unsorted {
		distances, values := h.Distances(), h.Values()
		for i := range results {
			results[i] = Result[F, T]{Distance: distances[i], Value: values[i]}
		}
		return results, nil
	}
	// Drain descending, fill backwards: ascending without an extra sort.
	for i := len(results) - 1; i >= 0; i-- {
		d, v := h.RemoveLargest()
		results[i] = Result[F, T]{Distance: d, Value: v}
	}

	return results, nil
}

// RangeSearch pushes every point within radius of q into store, in traversal
// order. The radius is in the tree metric's units: squared for
// SquaredEuclidean, so radius 25 means Euclidean distance 5.
func (t *Tree[F, T]) RangeSearch(q [2]F, radius F, store NeighborStore[F, T], opts *SearchOptions[T]) error {
	if radius < 0 || fmath.IsNaN(radius) {
		return ErrInvalidRange
	}
	if t.size == 0 {
		return nil
	}

	var state *SearchState
	var filter func(T) bool
	if opts != nil {
		state = opts.State
		filter = opts.Filter
	}

	pooled := state == nil
	if pooled {
		state = t.statePool.Get().(*SearchState)
	}
	state.prepare(len(t.nodes))

	t.rangeSearch(q, radius, store, state, filter)

	if pooled {
		t.statePool.Put(state)
	}

	return nil
}

// knn is the iterative branch-and-bound traversal. The pruning radius starts
// at +Inf and shrinks to the heap's k-th best distance as leaves are scanned.
func (t *Tree[F, T]) knn(q [2]F, h *heap.Bounded[F, T], state *SearchState, filter func(T) bool) {
	pruneDist := fmath.Inf[F]()

	cur := int32(0)
	for {
		status := state.status[cur]

		if status == statusAllVisited {
			if cur == 0 {
				return
			}
			cur = t.nodes[cur].parent
			continue
		}

		n := &t.nodes[cur]

		if n.isLeaf() {
			state.status[cur] = statusAllVisited
			t.scanLeaf(n, q, h, pruneDist, filter)
			pruneDist = h.MaxDist()
			if cur == 0 {
				return
			}
			cur = n.parent
			continue
		}

		// Stem: descend toward the query's side first, it is the side more
		// likely to shrink the pruning radius early.
		var next int32
		switch status {
		case statusNone:
			if q[n.splitDim] > n.splitValue {
				next = n.right
				state.status[cur] = statusRightVisited
			} else {
				next = n.left
				state.status[cur] = statusLeftVisited
			}
		case statusLeftVisited:
			next = n.right
			state.status[cur] = statusAllVisited
		default: // statusRightVisited
			next = n.left
			state.status[cur] = statusAllVisited
		}

		if t.pruned(next, q, pruneDist) {
			continue
		}
		cur = next
	}
}

// pruned reports whether the subtree at idx cannot contain an improving
// point: it is empty, or its bounding box is already farther than the current
// pruning radius. Singularities are never box-pruned; their one distance is
// checked exactly during the leaf scan.
func (t *Tree[F, T]) pruned(idx int32, q [2]F, pruneDist F) bool {
	c := &t.nodes[idx]
	if c.count == 0 {
		return true
	}
	return !c.singularity && t.metric.BoxDistance(q, c.min, c.max) > pruneDist
}

// scanLeaf feeds a leaf's points into the heap. For a singularity every point
// sits at one distance, computed once for the whole bucket.
func (t *Tree[F, T]) scanLeaf(n *node[F, T], q [2]F, h *heap.Bounded[F, T], pruneDist F, filter func(T) bool) {
	if n.singularity {
		d := t.metric.Distance(q, n.points[0])
		if d > pruneDist {
			return
		}
		for i := 0; i < n.count; i++ {
			if filter != nil && !filter(n.values[i]) {
				continue
			}
			h.Add(d, n.values[i])
		}
		return
	}

	for i := 0; i < n.count; i++ {
		if filter != nil && !filter(n.values[i]) {
			continue
		}
		h.Add(t.metric.Distance(q, n.points[i]), n.values[i])
	}
}

// rangeSearch shares the knn skeleton with a fixed, non-shrinking radius and
// an unbounded sink instead of a heap.
func (t *Tree[F, T]) rangeSearch(q [2]F, radius F, store NeighborStore[F, T], state *SearchState, filter func(T) bool) {
	cur := int32(0)
	for {
		status := state.status[cur]

		if status == statusAllVisited {
			if cur == 0 {
				return
			}
			cur = t.nodes[cur].parent
			continue
		}

		n := &t.nodes[cur]

		if n.isLeaf() {
			state.status[cur] = statusAllVisited
			t.scanLeafRange(n, q, radius, store, filter)
			if cur == 0 {
				return
			}
			cur = n.parent
			continue
		}

		var next int32
		switch status {
		case statusNone:
			if q[n.splitDim] > n.splitValue {
				next = n.right
				state.status[cur] = statusRightVisited
			} else {
				next = n.left
				state.status[cur] = statusLeftVisited
			}
		case statusLeftVisited:
			next = n.right
			state.status[cur] = statusAllVisited
		default: // statusRightVisited
			next = n.left
			state.status[cur] = statusAllVisited
		}

		if t.pruned(next, q, radius) {
			continue
		}
		cur = next
	}
}

func (t *Tree[F, T]) scanLeafRange(n *node[F, T], q [2]F, radius F, store NeighborStore[F, T], filter func(T) bool) {
	if n.singularity {
		d := t.metric.Distance(q, n.points[0])
		if d > radius {
			return
		}
		for i := 0; i < n.count; i++ {
			if filter != nil && !filter(n.values[i]) {
				continue
			}
			store.Push(d, n.values[i])
		}
		return
	}

	for i := 0; i < n.count; i++ {
		if filter != nil && !filter(n.values[i]) {
			continue
		}
		d := t.metric.Distance(q, n.points[i])
		if d <= radius {
			store.Push(d, n.values[i])
		}
	}
}
