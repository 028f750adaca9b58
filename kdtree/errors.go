package kdtree

import "errors"

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("kdtree: k must be positive")

	// ErrInvalidRange is returned when a range query radius is negative or NaN.
	ErrInvalidRange = errors.New("kdtree: radius must be non-negative")

	// ErrInvalidSnapshot is returned when a tree snapshot fails validation.
	ErrInvalidSnapshot = errors.New("kdtree: invalid snapshot")
)
