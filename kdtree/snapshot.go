package kdtree

import "fmt"

// NodeSnapshot is the serializable image of one arena node. Leaf nodes carry
// their points and values; stems carry split data and child indices.
type NodeSnapshot[F Float, T any] struct {
	Parent      int32
	Left        int32
	Right       int32
	SplitDim    int
	SplitValue  F
	Min         [2]F
	Max         [2]F
	Count       int
	Singularity bool
	Leaf        bool
	Points      [][2]F // leaf only
	Values      []T    // leaf only
}

// TreeSnapshot is the full serializable image of a tree.
type TreeSnapshot[F Float, T any] struct {
	BucketSize int
	Size       int
	Nodes      []NodeSnapshot[F, T]
}

// Snapshot captures the tree's structure. Leaf point and value slices are
// copied, so the snapshot stays valid if the tree keeps growing.
func (t *Tree[F, T]) Snapshot() TreeSnapshot[F, T] {
	s := TreeSnapshot[F, T]{
		BucketSize: t.bucketSize,
		Size:       t.size,
		Nodes:      make([]NodeSnapshot[F, T], len(t.nodes)),
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		ns := NodeSnapshot[F, T]{
			Parent:      n.parent,
			Left:        n.left,
			Right:       n.right,
			SplitDim:    n.splitDim,
			SplitValue:  n.splitValue,
			Min:         n.min,
			Max:         n.max,
			Count:       n.count,
			Singularity: n.singularity,
			Leaf:        n.isLeaf(),
		}
		if ns.Leaf {
			ns.Points = append([][2]F(nil), n.points[:n.count]...)
			ns.Values = append([]T(nil), n.values[:n.count]...)
		}
		s.Nodes[i] = ns
	}

	return s
}

// FromSnapshot reconstructs a tree from a snapshot, using the squared
// Euclidean metric. It validates structural invariants (leaf/stem
// exclusivity, index ranges) and returns ErrInvalidSnapshot on violation.
func FromSnapshot[F Float, T any](s TreeSnapshot[F, T]) (*Tree[F, T], error) {
	return FromSnapshotWithMetric[F, T](SquaredEuclidean[F]{}, s)
}

// FromSnapshotWithMetric is FromSnapshot with a caller-supplied metric.
// The metric is not part of the snapshot; the caller must supply the same
// strategy the tree was built with, or distances will be inconsistent with
// the stored bounding boxes.
func FromSnapshotWithMetric[F Float, T any](m Metric[F], s TreeSnapshot[F, T]) (*Tree[F, T], error) {
	if len(s.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidSnapshot)
	}
	if s.BucketSize < 1 {
		return nil, fmt.Errorf("%w: bucket size %d", ErrInvalidSnapshot, s.BucketSize)
	}

	t := &Tree[F, T]{
		metric:     m,
		bucketSize: s.BucketSize,
		size:       s.Size,
		nodes:      make([]node[F, T], len(s.Nodes)),
	}
	t.statePool.New = func() any { return &SearchState{} }

	for i, ns := range s.Nodes {
		if err := validateNodeSnapshot(len(s.Nodes), i, ns); err != nil {
			return nil, err
		}

		n := node[F, T]{
			parent:      ns.Parent,
			left:        ns.Left,
			right:       ns.Right,
			splitDim:    ns.SplitDim,
			splitValue:  ns.SplitValue,
			min:         ns.Min,
			max:         ns.Max,
			count:       ns.Count,
			singularity: ns.Singularity,
		}
		if ns.Leaf {
			capacity := ns.Count
			if capacity < s.BucketSize {
				capacity = s.BucketSize
			}
			n.points = make([][2]F, capacity)
			n.values = make([]T, capacity)
			copy(n.points, ns.Points)
			copy(n.values, ns.Values)
		}
		t.nodes[i] = n
	}

	return t, nil
}

func validateNodeSnapshot[F Float, T any](nodeCount, i int, ns NodeSnapshot[F, T]) error {
	inRange := func(idx int32) bool { return idx >= 0 && int(idx) < nodeCount }

	if ns.Leaf {
		if ns.Left != noNode || ns.Right != noNode {
			return fmt.Errorf("%w: leaf node %d has children", ErrInvalidSnapshot, i)
		}
		if len(ns.Points) != ns.Count || len(ns.Values) != ns.Count {
			return fmt.Errorf("%w: leaf node %d count mismatch", ErrInvalidSnapshot, i)
		}
	} else {
		if !inRange(ns.Left) || !inRange(ns.Right) {
			return fmt.Errorf("%w: stem node %d child out of range", ErrInvalidSnapshot, i)
		}
		if ns.SplitDim != 0 && ns.SplitDim != 1 {
			return fmt.Errorf("%w: stem node %d split dimension %d", ErrInvalidSnapshot, i, ns.SplitDim)
		}
	}

	if i == 0 {
		if ns.Parent != noNode {
			return fmt.Errorf("%w: root has a parent", ErrInvalidSnapshot)
		}
	} else if !inRange(ns.Parent) {
		return fmt.Errorf("%w: node %d parent out of range", ErrInvalidSnapshot, i)
	}

	return nil
}
