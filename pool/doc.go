// Package pool provides a fixed-region memory allocator over a caller-supplied buffer.
//
// # Overview
//
// A Pool never grows and never asks the runtime for memory: every allocation is
// carved out of the buffer handed to Init. Requests up to MaxRegular bytes are
// served from seven segregated size classes tracked by a bitmap; larger
// requests, and small ones whose classes are exhausted, come from a first-fit
// non-regular chunk that splits and coalesces blocks.
//
// Pointers are offsets (Ptr) into the buffer. Bytes turns a Ptr into a
// bounds-checked view.
//
// # Buffer Layout
//
//	[pool header 32B][16B blocks][32B]...[1KiB blocks][non-regular chunk][bitmap]
//
// The 16-byte class receives size>>14 blocks and each coarser class half as many
// as the previous one, so every class gets the same byte budget. The bitmap
// holds one bit per regular block and sits at the tail of the buffer. Plan
// computes the layout without touching memory.
//
// # Implementations
//
// Pool: the allocator core
//
//   - O(1) regular allocation through a per-class prediction stack
//   - bitmap scan fallback that skips full bytes
//   - first-fit non-regular search starting at a cursor, with wrap-around
//   - eager coalescing on free, lazy coalescing during search
//
// Checked: an auditing wrapper
//
//   - records the call site and requested size of every live block
//   - rejects pointers that are not live
//   - validates boundary tags before touching non-regular payloads
//   - optionally runs Check after every mutation
//
// # Usage Example
//
//	buf := make([]byte, 1<<20)
//	p, err := pool.New(buf)
//	if err != nil {
//	    return err
//	}
//	defer p.Exit()
//
//	ptr, b, err := p.Alloc(200)
//	if err != nil {
//	    return err
//	}
//	copy(b, payload)
//	_ = p.Free(ptr)
//
// # Errors
//
// ErrNoSpace is the only condition a caller is expected to handle at runtime.
// Programming errors (freeing a foreign or already freed pointer, a
// misaligned regular pointer, a clobbered boundary tag) panic with a
// *UsageError whose cause can be matched with errors.Is.
//
// # Thread Safety
//
// Every exported method holds the pool's mutex for its whole duration. Views
// returned by Alloc and Bytes alias the buffer and are not protected.
package pool
