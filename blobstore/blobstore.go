// Package blobstore abstracts object storage for tree snapshots.
//
// Implementations exist for S3 (blobstore/s3), MinIO and S3-compatible
// services (blobstore/minio), plus local-filesystem and in-memory stores in
// this package.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for reading and writing immutable snapshot blobs.
type Store interface {
	// Put writes a blob. size is the number of bytes r will yield, or -1 if
	// unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Open opens a blob for reading. The caller must close it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
