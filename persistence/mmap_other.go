//go:build !unix

package persistence

import "os"

// mapFile falls back to a plain read on platforms without mmap support.
func mapFile(path string) ([]byte, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() {}, nil
}
