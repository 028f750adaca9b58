// Package testutil provides deterministic helpers for tests and benchmarks:
// a seeded thread-safe RNG and brute-force reference searches.
package testutil

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/kdgo/kdtree"
)

// RNG encapsulates a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Point returns a pseudo-random 2D point with coordinates in [0, scale).
func Point[F kdtree.Float](r *RNG, scale float64) [2]F {
	return [2]F{F(r.Float64() * scale), F(r.Float64() * scale)}
}

// Points returns n pseudo-random 2D points with coordinates in [0, scale).
func Points[F kdtree.Float](r *RNG, n int, scale float64) [][2]F {
	pts := make([][2]F, n)
	for i := range pts {
		pts[i] = Point[F](r, scale)
	}
	return pts
}

// BruteKNN returns the k nearest points to q by exhaustive scan, sorted by
// ascending squared Euclidean distance. Values are parallel to points.
func BruteKNN[F kdtree.Float, T any](points [][2]F, values []T, q [2]F, k int) []kdtree.Result[F, T] {
	var m kdtree.SquaredEuclidean[F]

	results := make([]kdtree.Result[F, T], len(points))
	for i, p := range points {
		results[i] = kdtree.Result[F, T]{Distance: m.Distance(q, p), Value: values[i]}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

// BruteRange returns every point within (squared) radius of q by exhaustive
// scan, sorted by ascending distance.
func BruteRange[F kdtree.Float, T any](points [][2]F, values []T, q [2]F, radius F) []kdtree.Result[F, T] {
	var m kdtree.SquaredEuclidean[F]

	var results []kdtree.Result[F, T]
	for i, p := range points {
		if d := m.Distance(q, p); d <= radius {
			results = append(results, kdtree.Result[F, T]{Distance: d, Value: values[i]})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	return results
}
