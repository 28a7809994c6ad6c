package pool

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/joshuapare/fixedpool/internal/format"
)

// Pool serves every allocation from a single caller-supplied buffer.
//
// The buffer is partitioned once by Init:
//
//	[pool header][regular chunk 16B]...[regular chunk 1KiB][non-regular chunk][bitmap]
//
// Requests up to MaxRegular come from the size-classed regular chunks whose
// used/free state lives in the bitmap; larger requests, and small ones whose
// classes are exhausted, are carved first-fit out of the non-regular chunk.
// One mutex is held for the whole of every call.
type Pool struct {
	mu sync.Mutex

	raw    []byte // caller's buffer, zeroed on Exit
	buf    []byte // raw trimmed to an aligned start; all offsets are relative to it
	tag    uint64
	active bool

	layout  Layout
	classes [NumClasses]class
	regEnd  int
	nr      nonRegular

	bitmapOff int
	bitmapLen int

	opts  options
	log   *slog.Logger
	stats Stats
}

// Alloc implements Allocator.
func (p *Pool) Alloc(n int) (Ptr, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return Nil, nil, ErrNotActive
	}
	off, err := p.alloc(n)
	if err != nil {
		return Nil, nil, err
	}
	return Ptr(off), p.view(off, n), nil
}

// Calloc implements Allocator.
func (p *Pool) Calloc(count, size int) (Ptr, []byte, error) {
	n := count * size

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return Nil, nil, ErrNotActive
	}
	off, err := p.alloc(n)
	if err != nil {
		return Nil, nil, err
	}
	b := p.view(off, n)
	clear(b)
	return Ptr(off), b, nil
}

// Realloc implements Allocator. Realloc(Nil, n) allocates; Realloc(ptr, 0)
// frees ptr and returns Nil. On ErrNoSpace the original block is untouched
// and still owned by the caller.
func (p *Pool) Realloc(ptr Ptr, n int) (Ptr, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return Nil, nil, ErrNotActive
	}
	if ptr == Nil {
		off, err := p.alloc(n)
		if err != nil {
			return Nil, nil, err
		}
		return Ptr(off), p.view(off, n), nil
	}
	if n == 0 {
		p.free(ptr, "realloc")
		return Nil, nil, nil
	}
	if n < 0 {
		return Nil, nil, ErrBadSize
	}

	p.stats.Reallocs++
	var (
		off int
		err error
	)
	if at, regular := p.locate(ptr, "realloc"); regular {
		off, err = p.reallocRegular(at, int(ptr), n)
	} else {
		off, err = p.reallocNonRegular(at, n)
	}
	if err != nil {
		return Nil, nil, err
	}
	return Ptr(off), p.view(off, n), nil
}

// Free implements Allocator. Freeing a pointer the pool never handed out, or
// freeing twice, panics with a *UsageError.
func (p *Pool) Free(ptr Ptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return ErrNotActive
	}
	if ptr == Nil {
		return nil
	}
	p.free(ptr, "free")
	return nil
}

// Bytes implements Allocator. Asking for more than the block's usable size
// panics with a *UsageError wrapping ErrBadPtr.
func (p *Pool) Bytes(ptr Ptr, n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || ptr == Nil {
		return nil
	}
	at, regular := p.locate(ptr, "bytes")
	if n < 0 || n > p.usable(at, regular) {
		misuse("bytes", ptr, ErrBadPtr)
	}
	return p.view(int(ptr), n)
}

// UsableSize returns the number of bytes the block at ptr can hold, which may
// exceed the size it was requested with.
func (p *Pool) UsableSize(ptr Ptr) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || ptr == Nil {
		return 0
	}
	return p.usable(p.locate(ptr, "usable"))
}

// Contains reports whether ptr names a live or free block start in this pool.
// Unlike the other accessors it never panics.
func (p *Pool) Contains(ptr Ptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || ptr == Nil || ptr >= Ptr(len(p.buf)) {
		return false
	}
	off := int(ptr)
	if off >= p.classes[0].base && off < p.regEnd {
		c := &p.classes[p.classOf(off)]
		return (off-c.base)%c.size == 0
	}
	_, ok := p.nr.hdrs[off-HeaderSize]
	return off >= p.nr.start+HeaderSize && off < p.nr.end && ok
}

// Active reports whether the pool is initialised.
func (p *Pool) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

//---- internal helpers (callers hold p.mu)

func (p *Pool) alloc(n int) (int, error) {
	if n <= 0 {
		return 0, ErrBadSize
	}
	if n <= MaxRegular {
		if off, ok := p.allocRegular(n); ok {
			p.stats.Allocs++
			p.stats.RegularAllocs++
			return off, nil
		}
	}
	if off, ok := p.allocNonRegular(n); ok {
		p.stats.Allocs++
		p.stats.NonRegularAllocs++
		return off, nil
	}
	p.stats.Failures++
	p.log.Debug("allocation failed", "size", n, "used", p.stats.UsedBytes)
	return 0, ErrNoSpace
}

func (p *Pool) free(ptr Ptr, op string) {
	if at, regular := p.locate(ptr, op); regular {
		p.freeRegular(at, int(ptr), op)
	} else {
		p.freeNonRegular(at, op)
	}
	p.stats.Frees++
}

// locate maps ptr to the chunk that owns it. For regular pointers it returns
// the class index and true; for non-regular pointers the header offset and
// false. Anything else is a caller bug.
func (p *Pool) locate(ptr Ptr, op string) (int, bool) {
	if ptr >= Ptr(len(p.buf)) {
		misuse(op, ptr, ErrBadPtr)
	}
	off := int(ptr)
	if off >= p.classes[0].base && off < p.regEnd {
		return p.classOf(off), true
	}
	if off >= p.nr.start+HeaderSize && off < p.nr.end {
		h := off - HeaderSize
		if _, ok := p.nr.hdrs[h]; ok {
			return h, false
		}
	}
	misuse(op, ptr, ErrBadPtr)
	return 0, false
}

// classOf returns the class whose chunk contains off. Classes with no blocks
// have an empty range and are skipped by the search.
func (p *Pool) classOf(off int) int {
	return sort.Search(NumClasses, func(i int) bool {
		return p.classes[i].end() > off
	})
}

func (p *Pool) usable(at int, regular bool) int {
	if regular {
		return p.classes[at].size
	}
	return p.nr.hdrs[at].size
}

func (p *Pool) view(off, n int) []byte {
	b, ok := format.Slice(p.buf, off, n)
	if !ok {
		misuse("view", Ptr(off), ErrBadPtr)
	}
	return b
}

func (p *Pool) addUsed(n int) {
	p.stats.UsedBytes += int64(n)
	if p.stats.UsedBytes > p.stats.PeakBytes {
		p.stats.PeakBytes = p.stats.UsedBytes
	}
}

func (p *Pool) subUsed(n int) {
	p.stats.UsedBytes -= int64(n)
}
