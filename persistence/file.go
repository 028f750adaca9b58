package persistence

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/kdgo/kdtree"
)

// SaveFile writes a snapshot to path atomically: it writes to a temp file in
// the same directory, fsyncs, and renames over the target.
func SaveFile[F kdtree.Float, T any](path string, t *kdtree.Tree[F, T], opts *SaveOptions) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".kdgo-snapshot-*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := Save(w, t, opts); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("persistence: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("persistence: rename snapshot: %w", err)
	}
	tmpPath = ""

	return nil
}

// LoadFile reads a snapshot from path.
func LoadFile[F kdtree.Float, T any](path string) (*kdtree.Tree[F, T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open snapshot: %w", err)
	}
	defer f.Close()

	return Load[F, T](bufio.NewReader(f))
}

// LoadFileMmap reads a snapshot from path via a read-only memory mapping,
// avoiding read syscalls for large files. The mapping is released before
// returning; the resulting tree does not reference the file. On platforms
// without mmap support it falls back to a plain read.
func LoadFileMmap[F kdtree.Float, T any](path string) (*kdtree.Tree[F, T], error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	defer release()

	return Load[F, T](bytes.NewReader(data))
}
