package blobstore

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottledStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PreservesContents", func(t *testing.T) {
		store := Throttle(NewMemory(), 1<<30)

		payload := bytes.Repeat([]byte{0xab}, 256*1024)
		require.NoError(t, store.Put(ctx, "big", bytes.NewReader(payload), int64(len(payload))))

		rc, err := store.Open(ctx, "big")
		require.NoError(t, err)
		defer rc.Close()

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("PacesReads", func(t *testing.T) {
		mem := NewMemory()
		store := Throttle(mem, 64*1024)

		// 128 KiB at 64 KiB/s with a 64 KiB burst: the second half must
		// wait for the bucket to refill. Seed the blob through the inner
		// store so the upload does not drain the bucket first.
		payload := bytes.Repeat([]byte{0x42}, 128*1024)
		require.NoError(t, mem.Put(ctx, "paced", bytes.NewReader(payload), int64(len(payload))))

		rc, err := store.Open(ctx, "paced")
		require.NoError(t, err)
		defer rc.Close()

		start := time.Now()
		_, err = io.ReadAll(rc)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("HonorsContextCancel", func(t *testing.T) {
		mem := NewMemory()
		store := Throttle(mem, 1024)

		payload := bytes.Repeat([]byte{0x01}, 512*1024)
		require.NoError(t, mem.Put(ctx, "slow", bytes.NewReader(payload), int64(len(payload))))

		cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		rc, err := store.Open(cancelCtx, "slow")
		require.NoError(t, err)
		defer rc.Close()

		_, err = io.ReadAll(rc)
		require.Error(t, err)
	})

	t.Run("DelegatesDeleteAndList", func(t *testing.T) {
		mem := NewMemory()
		store := Throttle(mem, 1<<30)

		require.NoError(t, store.Put(ctx, "a", bytes.NewReader([]byte("v")), 1))

		names, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, names)

		require.NoError(t, store.Delete(ctx, "a"))
		_, err = store.Open(ctx, "a")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
