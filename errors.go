package kdgo

import (
	"github.com/hupe1980/kdgo/kdtree"
	"github.com/hupe1980/kdgo/persistence"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = kdtree.ErrInvalidK

	// ErrInvalidRange is returned when a search radius is negative or NaN.
	ErrInvalidRange = kdtree.ErrInvalidRange

	// ErrInvalidSnapshot is returned when snapshot data fails validation.
	ErrInvalidSnapshot = kdtree.ErrInvalidSnapshot

	// ErrChecksum is returned when a snapshot fails its integrity check.
	ErrChecksum = persistence.ErrChecksum
)

// ErrPrecisionMismatch indicates a snapshot was written with a different
// coordinate precision than the one requested on load.
//
// It aliases the persistence package error so callers can match it with
// errors.As at either level.
type ErrPrecisionMismatch = persistence.ErrPrecisionMismatch
