package pool

import (
	"cmp"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
)

// Site identifies the code that made an allocation.
type Site struct {
	Func string
	File string
	Line int
}

func (s Site) String() string {
	return fmt.Sprintf("%s (%s:%d)", s.Func, filepath.Base(s.File), s.Line)
}

// Caller returns the Site skip frames above the function calling Caller.
// Caller(0) names that function itself.
func Caller(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{Func: "unknown"}
	}
	fn := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return Site{Func: fn, File: file, Line: line}
}

// Live describes an allocation the Checked wrapper is tracking.
type Live struct {
	Ptr       Ptr
	Requested int  // bytes asked for
	Usable    int  // bytes the block can hold
	Site      Site // where it was allocated
	Seq       uint64
}

// CheckedStats extends Stats with the byte accounting only the wrapper can
// do, because it remembers what every live block was requested with.
type CheckedStats struct {
	Stats
	Live         int
	NeededBytes  int64 // sum of requested sizes of live allocations
	RealBytes    int64 // sum of usable sizes of live allocations
	PeakNeeded   int64
	WastePercent float64 // share of RealBytes not asked for
}

// Checked is the auditing implementation of Allocator. It wraps a *Pool,
// records the call site and requested size of every live allocation, checks
// that pointers handed to Free, Realloc and Bytes are live, validates the
// boundary tag in front of non-regular payloads before touching them, and
// optionally runs a full consistency check after every mutation.
type Checked struct {
	p *Pool

	mu     sync.Mutex
	live   map[Ptr]Live
	seq    uint64
	verify bool

	needed     int64
	real       int64
	peakNeeded int64
}

// CheckedOption configures a Checked wrapper.
type CheckedOption func(*Checked)

// VerifyEachCall runs Pool.Check after every successful mutation and panics
// with the returned error on the first inconsistency.
func VerifyEachCall() CheckedOption {
	return func(c *Checked) {
		c.verify = true
	}
}

// NewChecked wraps p.
func NewChecked(p *Pool, opts ...CheckedOption) *Checked {
	c := &Checked{
		p:    p,
		live: make(map[Ptr]Live),
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// Pool returns the wrapped pool.
func (c *Checked) Pool() *Pool {
	return c.p
}

// Alloc implements Allocator, recording the caller as the allocation site.
func (c *Checked) Alloc(n int) (Ptr, []byte, error) {
	return c.AllocAt(n, Caller(1))
}

// AllocAt is Alloc with an explicit allocation site.
func (c *Checked) AllocAt(n int, site Site) (Ptr, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ptr, b, err := c.p.Alloc(n)
	if err != nil {
		return Nil, nil, err
	}
	c.track(ptr, n, site)
	c.verifyNow()
	return ptr, b, nil
}

// Calloc implements Allocator, recording the caller as the allocation site.
func (c *Checked) Calloc(count, size int) (Ptr, []byte, error) {
	return c.CallocAt(count, size, Caller(1))
}

// CallocAt is Calloc with an explicit allocation site.
func (c *Checked) CallocAt(count, size int, site Site) (Ptr, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ptr, b, err := c.p.Calloc(count, size)
	if err != nil {
		return Nil, nil, err
	}
	c.track(ptr, count*size, site)
	c.verifyNow()
	return ptr, b, nil
}

// Realloc implements Allocator, recording the caller as the new allocation site.
func (c *Checked) Realloc(ptr Ptr, n int) (Ptr, []byte, error) {
	return c.ReallocAt(ptr, n, Caller(1))
}

// ReallocAt is Realloc with an explicit allocation site.
func (c *Checked) ReallocAt(ptr Ptr, n int, site Site) (Ptr, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ptr != Nil {
		c.mustOwn(ptr, "realloc")
	}
	np, b, err := c.p.Realloc(ptr, n)
	if err != nil {
		if ptr != Nil {
			c.refresh(ptr)
		}
		return Nil, nil, err
	}
	if ptr != Nil {
		c.untrack(ptr)
	}
	if np != Nil {
		c.track(np, n, site)
	}
	c.verifyNow()
	return np, b, nil
}

// Free implements Allocator.
func (c *Checked) Free(ptr Ptr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ptr == Nil {
		return nil
	}
	c.mustOwn(ptr, "free")
	if err := c.p.Free(ptr); err != nil {
		return err
	}
	c.untrack(ptr)
	c.verifyNow()
	return nil
}

// Bytes implements Allocator. Unlike Pool.Bytes it refuses views longer than
// the size the block was requested with.
func (c *Checked) Bytes(ptr Ptr, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ptr == Nil {
		return nil
	}
	l := c.mustOwn(ptr, "bytes")
	if n > l.Requested {
		misuse("bytes", ptr, fmt.Errorf("%w: view of %d bytes exceeds request of %d", ErrBadPtr, n, l.Requested))
	}
	return c.p.Bytes(ptr, n)
}

// Stats returns the pool's counters plus the wrapper's byte accounting.
func (c *Checked) Stats() CheckedStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CheckedStats{
		Stats:       c.p.Stats(),
		Live:        len(c.live),
		NeededBytes: c.needed,
		RealBytes:   c.real,
		PeakNeeded:  c.peakNeeded,
	}
	if c.real > 0 {
		s.WastePercent = float64(c.real-c.needed) / float64(c.real) * 100
	}
	return s
}

// Leaks returns every live allocation in allocation order.
func (c *Checked) Leaks() []Live {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Live, 0, len(c.live))
	for _, l := range c.live {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Live) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

// Dump writes the pool report followed by live allocations grouped by site.
func (c *Checked) Dump(w io.Writer) error {
	if err := c.p.Dump(w); err != nil {
		return err
	}

	type group struct {
		site  Site
		count int
		bytes int
	}
	bySite := make(map[Site]*group)
	for _, l := range c.Leaks() {
		g, ok := bySite[l.Site]
		if !ok {
			g = &group{site: l.Site}
			bySite[l.Site] = g
		}
		g.count++
		g.bytes += l.Requested
	}
	groups := make([]*group, 0, len(bySite))
	for _, g := range bySite {
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(a, b *group) int {
		if a.bytes != b.bytes {
			return cmp.Compare(b.bytes, a.bytes)
		}
		return cmp.Compare(a.site.String(), b.site.String())
	})

	s := c.Stats()
	if _, err := fmt.Fprintf(w, "live allocations: %d, needed %s, real %s, waste %.1f%%\n",
		s.Live, humanize.IBytes(uint64(s.NeededBytes)), humanize.IBytes(uint64(s.RealBytes)), s.WastePercent); err != nil {
		return err
	}
	for _, g := range groups {
		if _, err := fmt.Fprintf(w, "  %6d x %10s  %s\n", g.count, humanize.IBytes(uint64(g.bytes)), g.site); err != nil {
			return err
		}
	}
	return nil
}

//---- local functions (callers hold c.mu)

func (c *Checked) track(ptr Ptr, n int, site Site) {
	usable := c.p.UsableSize(ptr)
	c.seq++
	c.live[ptr] = Live{Ptr: ptr, Requested: n, Usable: usable, Site: site, Seq: c.seq}
	c.needed += int64(n)
	c.real += int64(usable)
	c.peakNeeded = max(c.peakNeeded, c.needed)
}

func (c *Checked) untrack(ptr Ptr) {
	l := c.live[ptr]
	delete(c.live, ptr)
	c.needed -= int64(l.Requested)
	c.real -= int64(l.Usable)
}

// refresh re-reads the usable size of a live block, which a failed realloc
// may have grown by absorbing its free successor.
func (c *Checked) refresh(ptr Ptr) {
	l := c.live[ptr]
	usable := c.p.UsableSize(ptr)
	c.real += int64(usable - l.Usable)
	l.Usable = usable
	c.live[ptr] = l
}

// mustOwn panics unless ptr is live, then validates its boundary tag.
func (c *Checked) mustOwn(ptr Ptr, op string) Live {
	l, ok := c.live[ptr]
	if !ok {
		if c.p.Contains(ptr) {
			misuse(op, ptr, ErrDoubleFree)
		}
		misuse(op, ptr, ErrBadPtr)
	}
	c.p.validate(ptr, op)
	return l
}

func (c *Checked) verifyNow() {
	if !c.verify {
		return
	}
	if err := c.p.Check(); err != nil {
		panic(err)
	}
}
