// Package fmath provides generic float helpers shared by the tree and heap
// implementations. It exists because coordinate precision (float32 vs float64)
// is a type parameter throughout the library.
package fmath

import (
	"math"
	"unsafe"
)

// Float is the set of supported coordinate types.
type Float interface {
	~float32 | ~float64
}

// Inf returns positive infinity in the requested precision.
func Inf[F Float]() F {
	return F(math.Inf(1))
}

// NaN returns a quiet NaN in the requested precision.
func NaN[F Float]() F {
	return F(math.NaN())
}

// Max returns the largest finite value representable in F.
func Max[F Float]() F {
	var f F
	if unsafe.Sizeof(f) == 4 {
		return F(math.MaxFloat32)
	}
	return F(math.MaxFloat64)
}

// Size returns the byte width of F: 4 for float32, 8 for float64.
func Size[F Float]() int {
	var f F
	return int(unsafe.Sizeof(f))
}

// IsNaN reports whether v is a NaN.
func IsNaN[F Float](v F) bool {
	return v != v
}

// IsInf reports whether v is an infinity of either sign.
func IsInf[F Float](v F) bool {
	return math.IsInf(float64(v), 0)
}
