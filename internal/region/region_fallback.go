//go:build !unix

package region

import (
	"fmt"
	"os"
)

// MapAnon allocates size bytes on the Go heap when anonymous mappings are not
// available.
func MapAnon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("region: invalid size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}

// Pin is a no-op on platforms without mlock.
func Pin(b []byte) error { return nil }

// Unpin is a no-op on platforms without mlock.
func Unpin(b []byte) error { return nil }

// MapFile reads nothing from path and returns a heap buffer whose contents are
// written to path on release.
func MapFile(path string, size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("region: invalid size %d", size)
	}
	data := make([]byte, size)
	return data, func() error { return os.WriteFile(path, data, 0o644) }, nil
}
