package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSpace indicates that no block large enough was found anywhere in the pool.
	// It is the only condition a caller is expected to recover from.
	ErrNoSpace = errors.New("pool: no free block large enough")

	// ErrBadSize indicates a request for zero or a negative number of bytes.
	ErrBadSize = errors.New("pool: size must be positive")

	// ErrNotActive indicates the pool has not been initialised or was exited.
	ErrNotActive = errors.New("pool: not initialised")

	// ErrActive indicates Init was called on a pool that is already in use.
	ErrActive = errors.New("pool: already initialised")

	// ErrNilBuffer indicates Init was handed a nil or empty buffer.
	ErrNilBuffer = errors.New("pool: nil or empty buffer")

	// ErrTooSmall indicates the buffer leaves less than MinNonRegular bytes for the non-regular chunk.
	ErrTooSmall = errors.New("pool: buffer too small")

	// ErrLayout indicates an accounting mismatch while packing the buffer.
	ErrLayout = errors.New("pool: layout accounting mismatch")

	// ErrBadPtr indicates a pointer that does not name a block handed out by this pool.
	ErrBadPtr = errors.New("pool: pointer not owned by pool")

	// ErrDoubleFree indicates an attempt to free a block that is already free.
	ErrDoubleFree = errors.New("pool: double free")

	// ErrMisaligned indicates a regular pointer that is not on a block boundary.
	ErrMisaligned = errors.New("pool: pointer not on a block boundary")

	// ErrCorrupt indicates pool metadata failed a consistency check.
	ErrCorrupt = errors.New("pool: corrupted metadata")
)

// UsageError is the panic value raised for programming errors: freeing a
// foreign or already freed pointer, a misaligned regular pointer, or a
// clobbered boundary tag. Recovering code can match the cause with errors.Is.
type UsageError struct {
	Op  string
	Ptr Ptr
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s(%#x): %v", e.Op, uint64(e.Ptr), e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func misuse(op string, p Ptr, err error) {
	panic(&UsageError{Op: op, Ptr: p, Err: err})
}
