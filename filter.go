package kdgo

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// BitmapFilter adapts a roaring bitmap of permitted identifiers into a
// search filter for trees whose payloads are integer IDs. Points whose ID is
// not in the bitmap are skipped during traversal.
//
// Example:
//
//	allowed := roaring.BitmapOf(4, 7, 19)
//	results, _ := db.KNNSearch(ctx, query, 10, kdgo.WithFilter(kdgo.BitmapFilter[uint32](allowed)))
func BitmapFilter[T ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64](allowed *roaring.Bitmap) func(T) bool {
	return func(id T) bool {
		return allowed.Contains(uint32(id))
	}
}

// BitmapExclude is the complement of BitmapFilter: points whose ID is in the
// bitmap are skipped.
func BitmapExclude[T ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64](denied *roaring.Bitmap) func(T) bool {
	return func(id T) bool {
		return !denied.Contains(uint32(id))
	}
}
