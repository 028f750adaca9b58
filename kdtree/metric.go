package kdtree

// Metric is the distance strategy a tree is parameterized with. It supplies
// the two primitives every traversal needs: point-to-point distance and the
// minimum possible distance from a point to an axis-aligned bounding box.
//
// The strategy lives once on the tree, never on individual nodes.
//
// BoxDistance must treat NaN bounds as contributing nothing, so that a
// subtree whose bounding box was poisoned by a NaN coordinate is never
// wrongly pruned.
type Metric[F Float] interface {
	// Distance returns the distance between two points.
	Distance(a, b [2]F) F

	// BoxDistance returns the minimum distance from p to the box [min, max].
	// It is zero when p lies inside the box.
	BoxDistance(p, min, max [2]F) F
}

// SquaredEuclidean is the shipped metric: squared L2 distance. Squaring
// avoids a square root on the hot path; callers needing true Euclidean
// distances take the square root of results once, outside the traversal.
// Radius arguments to RangeSearch are accordingly squared as well.
type SquaredEuclidean[F Float] struct{}

// Distance returns the squared Euclidean distance between a and b.
func (SquaredEuclidean[F]) Distance(a, b [2]F) F {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}

// BoxDistance returns the squared distance from p to the nearest point of the
// box: per axis, zero if the coordinate lies within [min, max], else the
// squared distance to the nearest bound. NaN bounds fail both comparisons and
// contribute zero, keeping such boxes unprunable.
func (SquaredEuclidean[F]) BoxDistance(p, min, max [2]F) F {
	var d F
	for axis := 0; axis < 2; axis++ {
		if p[axis] > max[axis] {
			t := p[axis] - max[axis]
			d += t * t
		} else if p[axis] < min[axis] {
			t := min[axis] - p[axis]
			d += t * t
		}
	}
	return d
}
