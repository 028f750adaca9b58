package kdgo

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/hupe1980/kdgo/blobstore"
	"github.com/hupe1980/kdgo/codec"
	"github.com/hupe1980/kdgo/kdtree"
	"github.com/hupe1980/kdgo/persistence"
	"golang.org/x/sync/errgroup"
)

// Result is a single query result, re-exported from the kdtree package.
type Result[F kdtree.Float, T any] = kdtree.Result[F, T]

// SearchOption customizes a single query.
type SearchOption[T any] func(o *kdtree.SearchOptions[T])

// WithFilter restricts results to values the predicate accepts.
func WithFilter[T any](filter func(value T) bool) SearchOption[T] {
	return func(o *kdtree.SearchOptions[T]) {
		o.Filter = filter
	}
}

// WithUnsorted returns KNN results in heap order instead of ascending
// distance order, saving the final O(k log k) sort.
func WithUnsorted[T any]() SearchOption[T] {
	return func(o *kdtree.SearchOptions[T]) {
		o.Unsorted = true
	}
}

// Options contains configuration options for a KDGo instance.
type Options struct {
	// Codec encodes point payloads in snapshots. Default: codec.Default.
	Codec codec.Codec

	// Compression selects the snapshot body compression. Default: zstd.
	Compression persistence.Compression

	// Logger receives structured operation logs. Default: NoopLogger.
	Logger *Logger

	// Metrics receives operation timings. Default: NoopMetricsCollector.
	Metrics MetricsCollector

	// BatchConcurrency bounds the goroutines used by BatchKNNSearch.
	// Default: GOMAXPROCS.
	BatchConcurrency int
}

// Option configures a KDGo instance.
type Option func(o *Options)

// WithCodec sets the payload codec for snapshot serialization.
func WithCodec(c codec.Codec) Option {
	return func(o *Options) {
		o.Codec = c
	}
}

// WithCompression sets the snapshot body compression.
func WithCompression(c persistence.Compression) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithLogger sets the structured logger for operation tracing.
func WithLogger(l *Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetricsCollector sets the metrics collector for monitoring.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *Options) {
		o.Metrics = mc
	}
}

// WithBatchConcurrency bounds the goroutines used by BatchKNNSearch.
func WithBatchConcurrency(n int) Option {
	return func(o *Options) {
		o.BatchConcurrency = n
	}
}

// KDGo is a 2D point index with payloads of type T. It wraps the raw kdtree
// with a write lock, operation logging and metrics, and snapshot persistence.
//
// Inserts are serialized; queries run concurrently with each other but not
// with inserts. For query-only workloads on a built tree the raw
// kdtree.Tree can be used without any locking.
type KDGo[F kdtree.Float, T any] struct {
	mu   sync.RWMutex
	tree *kdtree.Tree[F, T]
	opts Options
}

func wrap[F kdtree.Float, T any](tree *kdtree.Tree[F, T], optFns ...Option) *KDGo[F, T] {
	opts := Options{
		Codec:            codec.Default,
		Compression:      persistence.CompressionZstd,
		Logger:           NoopLogger(),
		Metrics:          NoopMetricsCollector{},
		BatchConcurrency: runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = runtime.GOMAXPROCS(0)
	}

	return &KDGo[F, T]{tree: tree, opts: opts}
}

// NewFromReader loads a snapshot into a new KDGo instance.
func NewFromReader[F kdtree.Float, T any](r io.Reader, optFns ...Option) (*KDGo[F, T], error) {
	tree, err := persistence.Load[F, T](r)
	if err != nil {
		return nil, err
	}
	return wrap(tree, optFns...), nil
}

// NewFromFile loads a snapshot file into a new KDGo instance.
func NewFromFile[F kdtree.Float, T any](path string, optFns ...Option) (*KDGo[F, T], error) {
	tree, err := persistence.LoadFile[F, T](path)
	if err != nil {
		return nil, err
	}
	return wrap(tree, optFns...), nil
}

// NewFromBlob loads a snapshot from a blob store into a new KDGo instance.
func NewFromBlob[F kdtree.Float, T any](ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*KDGo[F, T], error) {
	rc, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open snapshot blob %q: %w", name, err)
	}
	defer rc.Close()

	return NewFromReader[F, T](rc, optFns...)
}

// Insert adds a point with its payload to the index.
func (db *KDGo[F, T]) Insert(ctx context.Context, point [2]F, value T) {
	start := time.Now()

	db.mu.Lock()
	db.tree.Add(point, value)
	size := db.tree.Len()
	db.mu.Unlock()

	db.opts.Metrics.RecordInsert(time.Since(start))
	db.opts.Logger.LogInsert(ctx, size)
}

// Len returns the number of points in the index.
func (db *KDGo[F, T]) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Len()
}

// NodeCount returns the number of tree nodes, for capacity planning.
func (db *KDGo[F, T]) NodeCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.NodeCount()
}

// Tree returns the underlying kdtree. The caller must not add points through
// it while other goroutines use the KDGo instance.
func (db *KDGo[F, T]) Tree() *kdtree.Tree[F, T] {
	return db.tree
}

// KNNSearch returns the k nearest neighbors of query in ascending distance
// order. Distances are in the metric's units: squared for the default
// squared-Euclidean metric.
func (db *KDGo[F, T]) KNNSearch(ctx context.Context, query [2]F, k int, optFns ...SearchOption[T]) ([]Result[F, T], error) {
	start := time.Now()

	results, err := db.knnSearch(ctx, query, k, nil, optFns)

	db.opts.Metrics.RecordSearch(k, time.Since(start), err)
	db.opts.Logger.LogSearch(ctx, k, len(results), err)

	return results, err
}

func (db *KDGo[F, T]) knnSearch(ctx context.Context, query [2]F, k int, state *kdtree.SearchState, optFns []SearchOption[T]) ([]Result[F, T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := kdtree.SearchOptions[T]{State: state}
	for _, fn := range optFns {
		fn(&opts)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.tree.KNNSearch(query, k, &opts)
}

// BatchKNNSearch answers one KNN query per element of queries, in order,
// fanning the work out over BatchConcurrency goroutines. Each goroutine
// carries its own traversal state, so queries never contend.
func (db *KDGo[F, T]) BatchKNNSearch(ctx context.Context, queries [][2]F, k int, optFns ...SearchOption[T]) ([][]Result[F, T], error) {
	start := time.Now()

	results := make([][]Result[F, T], len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.opts.BatchConcurrency)

	for i, q := range queries {
		g.Go(func() error {
			state := kdtree.NewSearchState(db.NodeCount())
			r, err := db.knnSearch(gctx, q, k, state, optFns)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	err := g.Wait()
	db.opts.Metrics.RecordSearch(k, time.Since(start), err)
	db.opts.Logger.WithCount(len(queries)).LogSearch(ctx, k, len(results), err)
	if err != nil {
		return nil, err
	}

	return results, nil
}

// RangeSearch returns every point within radius of center, in ascending
// distance order. The radius is in the metric's units: squared for the
// default squared-Euclidean metric, so radius 25 means Euclidean distance 5.
func (db *KDGo[F, T]) RangeSearch(ctx context.Context, center [2]F, radius F, optFns ...SearchOption[T]) ([]Result[F, T], error) {
	start := time.Now()

	var store kdtree.SliceStore[F, T]
	err := db.rangeSearch(ctx, center, radius, &store, optFns)
	if err == nil {
		store.Sort()
	}

	db.opts.Metrics.RecordRangeSearch(time.Since(start), err)
	db.opts.Logger.LogRangeSearch(ctx, float64(radius), len(store.Results), err)

	if err != nil {
		return nil, err
	}
	return store.Results, nil
}

// RangeSearchStore pushes every point within radius of center into store, in
// traversal order. Use this form to stream large result sets without
// buffering them.
func (db *KDGo[F, T]) RangeSearchStore(ctx context.Context, center [2]F, radius F, store kdtree.NeighborStore[F, T], optFns ...SearchOption[T]) error {
	start := time.Now()

	err := db.rangeSearch(ctx, center, radius, store, optFns)

	db.opts.Metrics.RecordRangeSearch(time.Since(start), err)
	db.opts.Logger.LogRangeSearch(ctx, float64(radius), -1, err)

	return err
}

func (db *KDGo[F, T]) rangeSearch(ctx context.Context, center [2]F, radius F, store kdtree.NeighborStore[F, T], optFns []SearchOption[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var opts kdtree.SearchOptions[T]
	for _, fn := range optFns {
		fn(&opts)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.tree.RangeSearch(center, radius, store, &opts)
}

// SaveToWriter writes a snapshot of the index to w.
func (db *KDGo[F, T]) SaveToWriter(ctx context.Context, w io.Writer) error {
	start := time.Now()

	err := db.save(ctx, func(opts *persistence.SaveOptions) error {
		return persistence.Save(w, db.tree, opts)
	})

	db.opts.Metrics.RecordSnapshot(time.Since(start), err)
	db.opts.Logger.LogSnapshot(ctx, "writer", err)

	return err
}

// SaveToFile writes a snapshot of the index to path, atomically.
func (db *KDGo[F, T]) SaveToFile(ctx context.Context, path string) error {
	start := time.Now()

	err := db.save(ctx, func(opts *persistence.SaveOptions) error {
		return persistence.SaveFile(path, db.tree, opts)
	})

	db.opts.Metrics.RecordSnapshot(time.Since(start), err)
	db.opts.Logger.LogSnapshot(ctx, path, err)

	return err
}

// SaveToBlob writes a snapshot of the index to a blob store.
func (db *KDGo[F, T]) SaveToBlob(ctx context.Context, store blobstore.Store, name string) error {
	start := time.Now()

	pr, pw := io.Pipe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := db.save(gctx, func(opts *persistence.SaveOptions) error {
			return persistence.Save(pw, db.tree, opts)
		})
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := store.Put(gctx, name, pr, -1)
		// Unblock the writer if the upload failed mid-stream.
		pr.CloseWithError(err)
		return err
	})

	err := g.Wait()
	db.opts.Metrics.RecordSnapshot(time.Since(start), err)
	db.opts.Logger.LogSnapshot(ctx, name, err)

	return err
}

func (db *KDGo[F, T]) save(ctx context.Context, write func(opts *persistence.SaveOptions) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := persistence.SaveOptions{
		Compression: db.opts.Compression,
		Codec:       db.opts.Codec,
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return write(&opts)
}
