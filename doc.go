// Package kdgo provides an embeddable 2D k-d tree for exact nearest-neighbor
// and range queries over point data with arbitrary payloads.
//
// The index is a bucketed k-d tree tuned for incremental construction:
// points are inserted one at a time, leaves split lazily when their bucket
// fills, and queries prune subtrees by bounding-box distance. A built tree
// answers queries from many goroutines concurrently.
//
// # Quick Start
//
//	db, _ := kdgo.KDTree[float64, string]().
//	    SquaredL2().
//	    Build()
//
//	db.Insert([2]float64{1, 2}, "a")
//	db.Insert([2]float64{3, 4}, "b")
//
//	results, _ := db.KNNSearch(ctx, [2]float64{1, 1}, 1)
//	neighbors, _ := db.RangeSearch(ctx, [2]float64{0, 0}, 25)
//
// Distances are squared Euclidean throughout; pass squared radii to
// RangeSearch and expect squared distances in results.
//
// # Persistence
//
// Trees serialize to a compact binary snapshot with optional zstd or LZ4
// compression and CRC32 integrity checking:
//
//	_ = db.SaveToFile(ctx, "tree.kdg")
//	db, _ = kdgo.NewFromFile[float64, string]("tree.kdg")
//
// Snapshots can also be written to object storage through blobstore.Store
// implementations (S3, MinIO, local filesystem).
package kdgo
