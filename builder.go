// Package kdgo provides an embeddable 2D k-d tree index.
//
// This file implements the fluent builder API for creating and configuring
// KDGo instances. Builders are immutable - each method returns a new builder
// with the updated configuration.
package kdgo

import (
	"github.com/hupe1980/kdgo/codec"
	"github.com/hupe1980/kdgo/kdtree"
	"github.com/hupe1980/kdgo/persistence"
)

// KDTree creates a new k-d tree builder.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents accidental
// state sharing.
//
// Example:
//
//	db, err := kdgo.KDTree[float64, string]().
//	    BucketSize(32).
//	    SquaredL2().
//	    Logger(kdgo.NewJSONLogger(slog.LevelDebug)).
//	    Build()
func KDTree[F kdtree.Float, T any]() Builder[F, T] {
	return Builder[F, T]{
		bucketSize:  kdtree.DefaultBucketSize,
		compression: persistence.CompressionZstd,
	}
}

// Builder is an immutable fluent builder for creating KDGo instances.
// Each method returns a new builder with the updated configuration.
type Builder[F kdtree.Float, T any] struct {
	bucketSize  int
	metric      kdtree.Metric[F]
	codec       codec.Codec
	compression persistence.Compression
	logger      *Logger
	metrics     MetricsCollector
}

// BucketSize sets the leaf capacity before a split.
// Larger buckets amortize split cost; smaller buckets prune earlier.
// Default: 24.
func (b Builder[F, T]) BucketSize(n int) Builder[F, T] {
	b.bucketSize = n
	return b
}

// SquaredL2 sets the distance metric to Squared Euclidean distance.
// This is the default.
func (b Builder[F, T]) SquaredL2() Builder[F, T] {
	b.metric = kdtree.SquaredEuclidean[F]{}
	return b
}

// Metric sets a custom distance metric. The metric's point and box distances
// must be consistent: BoxDistance must never exceed the Distance to any point
// inside the box, or pruning will drop valid neighbors.
func (b Builder[F, T]) Metric(m kdtree.Metric[F]) Builder[F, T] {
	b.metric = m
	return b
}

// Codec sets the payload codec for snapshot serialization.
func (b Builder[F, T]) Codec(c codec.Codec) Builder[F, T] {
	b.codec = c
	return b
}

// Compression sets the snapshot body compression.
// Default: zstd.
func (b Builder[F, T]) Compression(c persistence.Compression) Builder[F, T] {
	b.compression = c
	return b
}

// Logger sets the structured logger for operation tracing.
func (b Builder[F, T]) Logger(l *Logger) Builder[F, T] {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b Builder[F, T]) Metrics(mc MetricsCollector) Builder[F, T] {
	b.metrics = mc
	return b
}

// Build creates the KDGo instance.
func (b Builder[F, T]) Build() (*KDGo[F, T], error) {
	metric := b.metric
	if metric == nil {
		metric = kdtree.SquaredEuclidean[F]{}
	}

	tree := kdtree.NewWithMetric[F, T](metric, kdtree.Options{
		BucketSize: b.bucketSize,
	})

	return wrap(tree, b.options()...), nil
}

// MustBuild creates the KDGo instance, panicking on error.
func (b Builder[F, T]) MustBuild() *KDGo[F, T] {
	db, err := b.Build()
	if err != nil {
		panic(err)
	}
	return db
}

func (b Builder[F, T]) options() []Option {
	var opts []Option
	if b.codec != nil {
		opts = append(opts, WithCodec(b.codec))
	}
	opts = append(opts, WithCompression(b.compression))
	if b.logger != nil {
		opts = append(opts, WithLogger(b.logger))
	}
	if b.metrics != nil {
		opts = append(opts, WithMetricsCollector(b.metrics))
	}
	return opts
}
