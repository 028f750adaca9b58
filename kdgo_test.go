package kdgo_test

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/kdgo"
	"github.com/hupe1980/kdgo/blobstore"
	"github.com/hupe1980/kdgo/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDB(t *testing.T, n int, seed int64) (*kdgo.KDGo[float64, uint32], [][2]float64) {
	t.Helper()

	db, err := kdgo.KDTree[float64, uint32]().
		BucketSize(8).
		SquaredL2().
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed))
	points := make([][2]float64, n)
	for i := range points {
		points[i] = [2]float64{rng.Float64() * 100, rng.Float64() * 100}
		db.Insert(ctx, points[i], uint32(i))
	}

	return db, points
}

func TestKDGo(t *testing.T) {
	ctx := context.Background()

	t.Run("InsertAndSearch", func(t *testing.T) {
		db := kdgo.KDTree[float64, string]().MustBuild()

		db.Insert(ctx, [2]float64{0, 0}, "origin")
		db.Insert(ctx, [2]float64{10, 10}, "far")
		require.Equal(t, 2, db.Len())

		results, err := db.KNNSearch(ctx, [2]float64{1, 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "origin", results[0].Value)
		assert.InDelta(t, 2.0, results[0].Distance, 1e-12)
	})

	t.Run("InvalidK", func(t *testing.T) {
		db, _ := buildDB(t, 10, 101)

		_, err := db.KNNSearch(ctx, [2]float64{0, 0}, 0)
		require.ErrorIs(t, err, kdgo.ErrInvalidK)
	})

	t.Run("RangeSearchSorted", func(t *testing.T) {
		db := kdgo.KDTree[float64, int]().MustBuild()
		db.Insert(ctx, [2]float64{0, 0}, 0)
		db.Insert(ctx, [2]float64{3, 0}, 1)
		db.Insert(ctx, [2]float64{0, 4}, 2)
		db.Insert(ctx, [2]float64{30, 30}, 3)

		// Squared radius 25 covers Euclidean distance 5.
		results, err := db.RangeSearch(ctx, [2]float64{0, 0}, 25)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, 0, results[0].Value)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
		}
	})

	t.Run("RangeSearchInvalidRadius", func(t *testing.T) {
		db, _ := buildDB(t, 10, 102)

		_, err := db.RangeSearch(ctx, [2]float64{0, 0}, -1)
		require.ErrorIs(t, err, kdgo.ErrInvalidRange)
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		db, _ := buildDB(t, 10, 103)

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := db.KNNSearch(canceled, [2]float64{0, 0}, 1)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestBatchKNNSearch(t *testing.T) {
	ctx := context.Background()
	db, _ := buildDB(t, 2000, 201)

	rng := rand.New(rand.NewSource(202))
	queries := make([][2]float64, 64)
	for i := range queries {
		queries[i] = [2]float64{rng.Float64() * 100, rng.Float64() * 100}
	}

	batch, err := db.BatchKNNSearch(ctx, queries, 5)
	require.NoError(t, err)
	require.Len(t, batch, len(queries))

	for i, q := range queries {
		want, err := db.KNNSearch(ctx, q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, batch[i], "query %d", i)
	}
}

func TestBitmapFilter(t *testing.T) {
	ctx := context.Background()
	db, points := buildDB(t, 200, 301)

	allowed := roaring.New()
	for id := uint32(0); id < 200; id += 2 {
		allowed.Add(id)
	}

	results, err := db.KNNSearch(ctx, points[3], 10, kdgo.WithFilter(kdgo.BitmapFilter[uint32](allowed)))
	require.NoError(t, err)
	require.Len(t, results, 10)
	for _, r := range results {
		assert.Zero(t, r.Value%2)
	}

	excluded, err := db.KNNSearch(ctx, points[3], 10, kdgo.WithFilter(kdgo.BitmapExclude[uint32](allowed)))
	require.NoError(t, err)
	for _, r := range excluded {
		assert.NotZero(t, r.Value%2)
	}
}

func TestSnapshotFile(t *testing.T) {
	ctx := context.Background()
	db, points := buildDB(t, 500, 401)

	path := filepath.Join(t.TempDir(), "tree.kdg")
	require.NoError(t, db.SaveToFile(ctx, path))

	restored, err := kdgo.NewFromFile[float64, uint32](path)
	require.NoError(t, err)
	require.Equal(t, db.Len(), restored.Len())

	want, err := db.KNNSearch(ctx, points[7], 10)
	require.NoError(t, err)
	got, err := restored.KNNSearch(ctx, points[7], 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshotWriter(t *testing.T) {
	ctx := context.Background()
	db, _ := buildDB(t, 100, 402)

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	restored, err := kdgo.NewFromReader[float64, uint32](&buf)
	require.NoError(t, err)
	assert.Equal(t, db.Len(), restored.Len())
}

func TestSnapshotBlob(t *testing.T) {
	ctx := context.Background()
	db, points := buildDB(t, 300, 403)

	store := blobstore.NewMemory()
	require.NoError(t, db.SaveToBlob(ctx, store, "snapshots/tree.kdg"))

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/tree.kdg"}, names)

	restored, err := kdgo.NewFromBlob[float64, uint32](ctx, store, "snapshots/tree.kdg")
	require.NoError(t, err)

	want, err := db.KNNSearch(ctx, points[0], 3)
	require.NoError(t, err)
	got, err := restored.KNNSearch(ctx, points[0], 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = kdgo.NewFromBlob[float64, uint32](ctx, store, "snapshots/missing.kdg")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()

	metrics := &kdgo.BasicMetricsCollector{}
	db, err := kdgo.KDTree[float64, int]().
		Metrics(metrics).
		Build()
	require.NoError(t, err)

	db.Insert(ctx, [2]float64{1, 1}, 0)
	db.Insert(ctx, [2]float64{2, 2}, 1)

	_, err = db.KNNSearch(ctx, [2]float64{0, 0}, 1)
	require.NoError(t, err)
	_, err = db.KNNSearch(ctx, [2]float64{0, 0}, -1)
	require.Error(t, err)

	_, err = db.RangeSearch(ctx, [2]float64{0, 0}, 10)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.InsertCount)
	assert.Equal(t, int64(2), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
	assert.Equal(t, int64(1), stats.RangeSearchCount)
}

func TestCompressionOptions(t *testing.T) {
	ctx := context.Background()

	for _, compression := range []persistence.Compression{
		persistence.CompressionNone,
		persistence.CompressionZstd,
		persistence.CompressionLZ4,
	} {
		t.Run(compression.String(), func(t *testing.T) {
			db, err := kdgo.KDTree[float32, string]().
				Compression(compression).
				Build()
			require.NoError(t, err)

			db.Insert(ctx, [2]float32{1, 2}, "a")
			db.Insert(ctx, [2]float32{3, 4}, "b")

			var buf bytes.Buffer
			require.NoError(t, db.SaveToWriter(ctx, &buf))

			restored, err := kdgo.NewFromReader[float32, string](&buf)
			require.NoError(t, err)

			results, err := restored.KNNSearch(ctx, [2]float32{1, 2}, 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "a", results[0].Value)
		})
	}
}
