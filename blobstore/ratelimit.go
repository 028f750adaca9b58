package blobstore

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Throttled wraps a Store and limits the byte rate of uploads and downloads,
// keeping snapshot transfers from saturating shared network links.
type Throttled struct {
	inner   Store
	limiter *rate.Limiter
}

// Throttle wraps store with a byte-rate limit shared across all transfers.
func Throttle(store Store, bytesPerSec int) *Throttled {
	burst := bytesPerSec
	if burst < 64*1024 {
		burst = 64 * 1024
	}
	return &Throttled{
		inner:   store,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
	}
}

// Put writes a blob at the configured rate.
func (t *Throttled) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	return t.inner.Put(ctx, name, newLimitedReader(ctx, r, t.limiter), size)
}

// Open opens a blob whose reads are paced at the configured rate.
func (t *Throttled) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := t.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &limitedReadCloser{
		limitedReader: newLimitedReader(ctx, rc, t.limiter),
		closer:        rc,
	}, nil
}

// Delete removes a blob.
func (t *Throttled) Delete(ctx context.Context, name string) error {
	return t.inner.Delete(ctx, name)
}

// List returns all blob names with the given prefix.
func (t *Throttled) List(ctx context.Context, prefix string) ([]string, error) {
	return t.inner.List(ctx, prefix)
}

// limitedReader paces reads through a shared rate limiter. Reads are capped
// at the limiter's burst so a single large read cannot exceed the reservable
// amount.
type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func newLimitedReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) *limitedReader {
	return &limitedReader{ctx: ctx, r: r, limiter: limiter}
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if burst := lr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.limiter.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

type limitedReadCloser struct {
	*limitedReader
	closer io.Closer
}

func (lrc *limitedReadCloser) Close() error {
	return lrc.closer.Close()
}
