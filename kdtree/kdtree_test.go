package kdtree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeAdd(t *testing.T) {
	t.Run("Len", func(t *testing.T) {
		tree := New[float64, int](DefaultOptions)

		assert.Equal(t, 0, tree.Len())
		for i := 0; i < 100; i++ {
			tree.Add([2]float64{float64(i), float64(i % 7)}, i)
			assert.Equal(t, i+1, tree.Len())
		}
	})

	t.Run("DefaultBucketSize", func(t *testing.T) {
		tree := New[float32, struct{}](Options{})
		assert.Equal(t, DefaultBucketSize, tree.BucketSize())
	})

	t.Run("SplitGrowsArena", func(t *testing.T) {
		tree := New[float64, int](Options{BucketSize: 4})
		require.Equal(t, 1, tree.NodeCount())

		for i := 0; i < 5; i++ {
			tree.Add([2]float64{float64(i), 0}, i)
		}
		// The full root split into two children.
		assert.Equal(t, 3, tree.NodeCount())
	})
}

// walkInvariants checks leaf/stem exclusivity and bounding-box containment on
// every reachable node.
func walkInvariants(t *testing.T, s TreeSnapshot[float64, int]) {
	t.Helper()

	var walk func(idx int32, checkPoint func([2]float64))
	walk = func(idx int32, checkPoint func([2]float64)) {
		n := s.Nodes[idx]

		if n.Leaf {
			require.Equal(t, noNode, n.Left)
			require.Equal(t, noNode, n.Right)
			for _, p := range n.Points {
				require.GreaterOrEqual(t, p[0], n.Min[0])
				require.GreaterOrEqual(t, p[1], n.Min[1])
				require.LessOrEqual(t, p[0], n.Max[0])
				require.LessOrEqual(t, p[1], n.Max[1])
				if checkPoint != nil {
					checkPoint(p)
				}
			}
			return
		}

		require.Nil(t, n.Points)
		require.NotEqual(t, noNode, n.Left)
		require.NotEqual(t, noNode, n.Right)
		require.Equal(t, idx, s.Nodes[n.Left].Parent)
		require.Equal(t, idx, s.Nodes[n.Right].Parent)
		require.Equal(t, n.Count, s.Nodes[n.Left].Count+s.Nodes[n.Right].Count)

		// Every point in the subtree must lie inside this node's box too.
		contains := func(p [2]float64) {
			require.GreaterOrEqual(t, p[0], n.Min[0])
			require.GreaterOrEqual(t, p[1], n.Min[1])
			require.LessOrEqual(t, p[0], n.Max[0])
			require.LessOrEqual(t, p[1], n.Max[1])
			if checkPoint != nil {
				checkPoint(p)
			}
		}
		walk(n.Left, contains)
		walk(n.Right, contains)
	}
	walk(0, nil)
}

func TestTreeInvariants(t *testing.T) {
	tree := New[float64, int](Options{BucketSize: 4})
	for i := 0; i < 500; i++ {
		tree.Add([2]float64{float64(i%23) * 1.5, float64(i%17) * -2.5}, i)
	}

	s := tree.Snapshot()
	require.Equal(t, 500, s.Size)
	require.Equal(t, 500, s.Nodes[0].Count)

	walkInvariants(t, s)
}

func TestTreeDuplicatePoints(t *testing.T) {
	// All points coincide: splitting is impossible, the leaf must double its
	// capacity instead of looping forever.
	tree := New[float64, int](Options{BucketSize: 4})

	const n = 64
	for i := 0; i < n; i++ {
		tree.Add([2]float64{3, 3}, i)
	}

	require.Equal(t, n, tree.Len())
	assert.Equal(t, 1, tree.NodeCount(), "coincident points must never split")

	s := tree.Snapshot()
	assert.True(t, s.Nodes[0].Singularity)

	results, err := tree.KNNSearch([2]float64{3, 3}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for _, r := range results {
		assert.Equal(t, 0.0, r.Distance)
	}
}

func TestTreeSingularityCleared(t *testing.T) {
	tree := New[float64, int](DefaultOptions)
	tree.Add([2]float64{1, 1}, 0)

	s := tree.Snapshot()
	assert.True(t, s.Nodes[0].Singularity)

	tree.Add([2]float64{2, 1}, 1)
	s = tree.Snapshot()
	assert.False(t, s.Nodes[0].Singularity)
}

func TestTreeNaNCoordinates(t *testing.T) {
	nan := math.NaN()

	tree := New[float64, int](Options{BucketSize: 4})
	tree.Add([2]float64{1, 1}, 0)
	tree.Add([2]float64{nan, 2}, 1)
	tree.Add([2]float64{2, 2}, 2)
	tree.Add([2]float64{3, 5}, 3)
	tree.Add([2]float64{4, 0}, 4)
	tree.Add([2]float64{5, 3}, 5)

	// The x axis is poisoned; bounds on it are NaN at the root.
	s := tree.Snapshot()
	assert.True(t, math.IsNaN(s.Nodes[0].Min[0]))
	assert.True(t, math.IsNaN(s.Nodes[0].Max[0]))
	assert.False(t, math.IsNaN(s.Nodes[0].Min[1]))

	// Finite points must still be found exactly.
	results, err := tree.KNNSearch([2]float64{1, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Value)
	assert.Equal(t, 0.0, results[0].Distance)

	results, err = tree.KNNSearch([2]float64{5, 3}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 5, results[0].Value)
}

func TestSnapshotRoundtrip(t *testing.T) {
	tree := New[float64, int](Options{BucketSize: 4})
	for i := 0; i < 200; i++ {
		tree.Add([2]float64{float64(i % 31), float64(i % 13)}, i)
	}

	restored, err := FromSnapshot(tree.Snapshot())
	require.NoError(t, err)

	assert.Equal(t, tree.Len(), restored.Len())
	assert.Equal(t, tree.NodeCount(), restored.NodeCount())

	q := [2]float64{7.5, 4.5}
	want, err := tree.KNNSearch(q, 12, nil)
	require.NoError(t, err)
	got, err := restored.KNNSearch(q, 12, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The restored tree must accept further inserts.
	restored.Add([2]float64{7.5, 4.5}, 1000)
	got, err = restored.KNNSearch(q, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1000, got[0].Value)
}

func TestFromSnapshotValidation(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		_, err := FromSnapshot(TreeSnapshot[float64, int]{BucketSize: 4})
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("LeafWithChildren", func(t *testing.T) {
		tree := New[float64, int](Options{BucketSize: 4})
		tree.Add([2]float64{1, 1}, 0)

		s := tree.Snapshot()
		s.Nodes[0].Left = 0

		_, err := FromSnapshot(s)
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("StemChildOutOfRange", func(t *testing.T) {
		tree := New[float64, int](Options{BucketSize: 2})
		for i := 0; i < 8; i++ {
			tree.Add([2]float64{float64(i), 0}, i)
		}

		s := tree.Snapshot()
		require.False(t, s.Nodes[0].Leaf)
		s.Nodes[0].Right = int32(len(s.Nodes))

		_, err := FromSnapshot(s)
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})
}
