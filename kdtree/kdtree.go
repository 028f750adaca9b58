// Package kdtree implements a bucketed, iterative 2D k-d tree with
// configurable payloads and distance metric.
//
// Points are accumulated in leaf buckets; a full leaf splits along the widest
// axis of its bounding box and becomes a stem. Insertion and queries both run
// as explicit iterative loops with parent backtracking, so tree depth never
// grows the call stack.
//
// # Concurrency Model
//
// Building (Add) is single-writer and must not overlap with queries. Once
// built, the tree is logically immutable and any number of goroutines may
// query it concurrently, provided each query uses its own SearchState (or
// passes nil to draw one from the tree's pool). Traversal state is never
// stored on nodes.
package kdtree

import (
	"sync"

	"github.com/hupe1980/kdgo/heap"
	"github.com/hupe1980/kdgo/internal/fmath"
)

// Float is the set of supported coordinate types.
type Float = heap.Float

// DefaultBucketSize is the default maximum leaf occupancy before a split.
const DefaultBucketSize = 24

// noNode marks an absent child/parent reference in the node arena.
const noNode = int32(-1)

// Options contains configuration options for a tree.
type Options struct {
	// BucketSize is the maximum number of points a leaf holds before it is
	// split. Must be >= 1.
	BucketSize int
}

// DefaultOptions contains the default configuration options for a tree.
var DefaultOptions = Options{
	BucketSize: DefaultBucketSize,
}

// node is an entry in the tree's node arena. It is either a leaf (points !=
// nil, no children) or a stem (points == nil, both children set) - never
// both, never neither. Child and parent links are arena indices; a node's id
// is its index, which external search state arrays are keyed by.
type node[F Float, T any] struct {
	// Leaf bucket. nil once the node has been split into a stem.
	points [][2]F
	values []T

	// count is the number of points in the subtree rooted here. For a leaf
	// this is the bucket occupancy.
	count int

	// Bounding box over every point ever added to this subtree. An axis that
	// ever saw a NaN coordinate has NaN bounds and never prunes again.
	min, max [2]F

	// singularity is true while the bounding box has zero width on every
	// axis, i.e. all points coincide (or at most one point so far).
	singularity bool

	// Valid only for stems.
	splitDim   int
	splitValue F

	left, right, parent int32
}

func (n *node[F, T]) isLeaf() bool { return n.points != nil }

// Tree is a 2D k-d tree over coordinates of type F carrying one payload of
// type T per point. Use struct{} for trees without payloads and uint32 for
// plain integer identifiers.
type Tree[F Float, T any] struct {
	nodes      []node[F, T]
	metric     Metric[F]
	bucketSize int
	size       int

	statePool sync.Pool
}

// New creates an empty tree using the squared Euclidean metric.
func New[F Float, T any](opts Options) *Tree[F, T] {
	return NewWithMetric[F, T](SquaredEuclidean[F]{}, opts)
}

// NewWithMetric creates an empty tree with a caller-supplied metric.
// A non-positive bucket size falls back to DefaultBucketSize.
func NewWithMetric[F Float, T any](m Metric[F], opts Options) *Tree[F, T] {
	bucketSize := opts.BucketSize
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}

	t := &Tree[F, T]{
		metric:     m,
		bucketSize: bucketSize,
	}
	t.statePool.New = func() any { return &SearchState{} }
	t.newNode(noNode, bucketSize)

	return t
}

// Len returns the number of points added to the tree.
func (t *Tree[F, T]) Len() int { return t.size }

// NodeCount returns the number of nodes in the arena. External SearchStates
// must be sized to at least this value.
func (t *Tree[F, T]) NodeCount() int { return len(t.nodes) }

// BucketSize returns the configured maximum leaf occupancy.
func (t *Tree[F, T]) BucketSize() int { return t.bucketSize }

// Metric returns the tree's distance strategy.
func (t *Tree[F, T]) Metric() Metric[F] { return t.metric }

// Add inserts a point with its payload. Points are immutable once inserted;
// there is no removal. Add is not safe for concurrent use, and must not
// overlap with queries.
func (t *Tree[F, T]) Add(point [2]F, value T) {
	cur := int32(0)
	for {
		t.extendBounds(cur, point)

		if t.nodes[cur].isLeaf() && t.nodes[cur].count == len(t.nodes[cur].points) {
			t.splitLeaf(cur)
		}

		n := &t.nodes[cur]
		if n.isLeaf() {
			n.points[n.count] = point
			n.values[n.count] = value
			n.count++
			t.size++
			return
		}

		n.count++
		if point[n.splitDim] > n.splitValue {
			cur = n.right
		} else {
			cur = n.left
		}
	}
}

// newNode appends a fresh leaf to the arena and returns its index.
func (t *Tree[F, T]) newNode(parent int32, capacity int) int32 {
	id := int32(len(t.nodes))
	t.nodes = append(t.nodes, node[F, T]{
		points:      make([][2]F, capacity),
		values:      make([]T, capacity),
		singularity: true,
		left:        noNode,
		right:       noNode,
		parent:      parent,
	})

	return id
}

// extendBounds widens node i's bounding box to cover p. A NaN coordinate
// poisons the axis: both bounds become NaN and stay NaN, so the axis can
// never prune and never wins a split.
func (t *Tree[F, T]) extendBounds(i int32, p [2]F) {
	n := &t.nodes[i]
	if n.count == 0 {
		n.min, n.max = p, p
		if fmath.IsNaN(p[0]) || fmath.IsNaN(p[1]) {
			n.singularity = false
		}
		return
	}

	for axis := 0; axis < 2; axis++ {
		v := p[axis]
		switch {
		case fmath.IsNaN(v):
			nan := fmath.NaN[F]()
			n.min[axis], n.max[axis] = nan, nan
			n.singularity = false
		case v < n.min[axis]:
			n.min[axis] = v
			n.singularity = false
		case v > n.max[axis]:
			n.max[axis] = v
			n.singularity = false
		}
	}
}

// axisWidth returns the width of a bound pair, treating NaN as zero so a
// poisoned axis never wins the split.
func axisWidth[F Float](lo, hi F) F {
	w := hi - lo
	if fmath.IsNaN(w) {
		return 0
	}
	return w
}

// splitLeaf converts a full leaf into a stem with two child leaves. If the
// widest axis has zero width (all points coincide), it doubles the leaf's
// capacity in place instead - splitting on zero width cannot terminate.
func (t *Tree[F, T]) splitLeaf(cur int32) {
	n := &t.nodes[cur]

	dim := 0
	if axisWidth(n.min[1], n.max[1]) > axisWidth(n.min[0], n.max[0]) {
		dim = 1
	}

	if axisWidth(n.min[dim], n.max[dim]) == 0 {
		grown := make([][2]F, n.count*2)
		copy(grown, n.points)
		n.points = grown

		grownValues := make([]T, n.count*2)
		copy(grownValues, n.values)
		n.values = grownValues
		return
	}

	split := (n.min[dim] + n.max[dim]) / 2
	switch {
	case fmath.IsInf(split):
		if split > 0 {
			split = fmath.Max[F]()
		} else {
			split = -fmath.Max[F]()
		}
	case fmath.IsNaN(split):
		split = 0
	}
	// Rounding can land the midpoint on the axis maximum, which would leave
	// the right side empty forever. Nudge down to the minimum: points are
	// partitioned by coord > splitValue, so both sides stay non-empty.
	if split == n.max[dim] {
		split = n.min[dim]
	}

	capacity := n.count
	if capacity < t.bucketSize {
		capacity = t.bucketSize
	}
	left := t.newNode(cur, capacity)
	right := t.newNode(cur, capacity)

	// The appends above may have moved the arena.
	n = &t.nodes[cur]

	for i := 0; i < n.count; i++ {
		p := n.points[i]
		child := left
		if p[dim] > split {
			child = right
		}

		t.extendBounds(child, p)
		c := &t.nodes[child]
		c.points[c.count] = p
		c.values[c.count] = n.values[i]
		c.count++
	}

	n.points = nil
	n.values = nil
	n.splitDim = dim
	n.splitValue = split
	n.left = left
	n.right = right
}
