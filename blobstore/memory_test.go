package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PutOpenRoundtrip", func(t *testing.T) {
		store := NewMemory()

		payload := []byte("hello, blob")
		require.NoError(t, store.Put(ctx, "a/b", bytes.NewReader(payload), int64(len(payload))))

		rc, err := store.Open(ctx, "a/b")
		require.NoError(t, err)
		defer rc.Close()

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("OpenMissing", func(t *testing.T) {
		store := NewMemory()

		_, err := store.Open(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		store := NewMemory()

		require.NoError(t, store.Put(ctx, "x", strings.NewReader("old"), 3))
		require.NoError(t, store.Put(ctx, "x", strings.NewReader("new"), 3))

		rc, err := store.Open(ctx, "x")
		require.NoError(t, err)
		defer rc.Close()

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("Delete", func(t *testing.T) {
		store := NewMemory()

		require.NoError(t, store.Put(ctx, "x", strings.NewReader("v"), 1))
		require.NoError(t, store.Delete(ctx, "x"))

		_, err := store.Open(ctx, "x")
		require.ErrorIs(t, err, ErrNotFound)

		// Deleting a missing blob is not an error.
		require.NoError(t, store.Delete(ctx, "x"))
	})

	t.Run("List", func(t *testing.T) {
		store := NewMemory()

		for _, name := range []string{"snap/a", "snap/b", "other/c"} {
			require.NoError(t, store.Put(ctx, name, strings.NewReader("v"), 1))
		}

		names, err := store.List(ctx, "snap/")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"snap/a", "snap/b"}, names)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Roundtrip", func(t *testing.T) {
		store, err := NewLocal(t.TempDir())
		require.NoError(t, err)

		payload := []byte("on disk")
		require.NoError(t, store.Put(ctx, "dir/blob.bin", bytes.NewReader(payload), int64(len(payload))))

		rc, err := store.Open(ctx, "dir/blob.bin")
		require.NoError(t, err)
		defer rc.Close()

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		names, err := store.List(ctx, "dir/")
		require.NoError(t, err)
		assert.Equal(t, []string{"dir/blob.bin"}, names)
	})

	t.Run("OpenMissing", func(t *testing.T) {
		store, err := NewLocal(t.TempDir())
		require.NoError(t, err)

		_, err = store.Open(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RejectsTraversal", func(t *testing.T) {
		store, err := NewLocal(t.TempDir())
		require.NoError(t, err)

		err = store.Put(ctx, "../escape", strings.NewReader("v"), 1)
		require.Error(t, err)
	})
}
