package pool

// Ptr is an offset into the pool's backing buffer. It is what the pool hands
// out instead of a raw address; Bytes turns it into a bounds-checked view.
type Ptr uint64

// Nil is the zero Ptr. The pool header occupies offset 0, so no payload ever
// starts there.
const Nil Ptr = 0

// Allocator is the interface host subsystems allocate through.
//
// Implementations:
//   - *Pool: the allocator core
//   - *Checked: a wrapper that records call sites and validates every call
type Allocator interface {
	// Alloc returns a block of at least n bytes and a view of its first n bytes.
	Alloc(n int) (Ptr, []byte, error)

	// Calloc is Alloc(count*size) with the view zeroed. The product is not
	// checked for overflow.
	Calloc(count, size int) (Ptr, []byte, error)

	// Realloc resizes p to n bytes, moving it if needed. The returned view
	// holds the first min(old, n) bytes of the original block.
	Realloc(p Ptr, n int) (Ptr, []byte, error)

	// Free releases p. Freeing Nil is a no-op.
	Free(p Ptr) error

	// Bytes returns a view of the first n bytes of the block at p.
	Bytes(p Ptr, n int) []byte
}

var (
	_ Allocator = (*Pool)(nil)
	_ Allocator = (*Checked)(nil)
)
