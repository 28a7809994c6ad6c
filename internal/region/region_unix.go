//go:build unix

package region

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MapAnon reserves size bytes of private, zero-filled memory outside the Go
// heap and returns it together with a release function.
func MapAnon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("region: invalid size %d", size)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("region: mmap %d bytes: %w", size, err)
	}
	release := func() error {
		if data == nil {
			return nil
		}
		err := unix.Munmap(data)
		data = nil
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data, release, nil
}

// Pin locks the pages backing b into RAM so the pool's budget is never paged out.
func Pin(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Mlock(b); err != nil {
		return fmt.Errorf("region: mlock: %w", err)
	}
	return nil
}

// Unpin reverses Pin.
func Unpin(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}

// MapFile creates (or truncates) the file at path to size bytes and maps it
// shared and writable, so the pool's contents land in the file. The release
// function unmaps it; the file itself is left in place.
func MapFile(path string, size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("region: invalid size %d", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close() // safe before return; mapping keeps pages alive

	if err := f.Truncate(int64(size)); err != nil {
		return nil, nil, fmt.Errorf("region: truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("region: mmap %s: %w", path, err)
	}
	release := func() error {
		if data == nil {
			return nil
		}
		if err := unix.Msync(data, unix.MS_SYNC); err != nil {
			return fmt.Errorf("region: msync %s: %w", path, err)
		}
		err := unix.Munmap(data)
		data = nil
		return err
	}
	return data, release, nil
}
