// Package region provides backing buffers for a pool: anonymous or
// file-backed memory mappings where the platform supports them, plain heap
// slices otherwise.
package region

// Heap returns a heap-allocated buffer of size bytes with a no-op release.
// Useful in tests and on hosts where mmap is undesirable.
func Heap(size int) ([]byte, func() error) {
	return make([]byte, size), func() error { return nil }
}

// Acquire returns a buffer of size bytes. A non-empty path maps that file;
// otherwise useMmap selects an anonymous mapping over the Go heap.
func Acquire(size int, useMmap bool, path string) ([]byte, func() error, error) {
	switch {
	case path != "":
		return MapFile(path, size)
	case useMmap:
		return MapAnon(size)
	default:
		b, release := Heap(size)
		return b, release, nil
	}
}
