package pool

import (
	"fmt"
	"math/bits"

	"github.com/joshuapare/fixedpool/internal/format"
)

// Check validates the pool's metadata: the header tag, the bitmap against
// every class's free count, and the non-regular header chain against its
// in-band boundary tags. It returns the first inconsistency found, wrapped
// in ErrCorrupt. Check only reads; it never repairs.
func (p *Pool) Check() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return ErrNotActive
	}
	return p.check()
}

func (p *Pool) check() error {
	if err := p.checkHeader(); err != nil {
		return err
	}
	used, err := p.checkBitmap()
	if err != nil {
		return err
	}
	nrUsed, err := p.checkChain()
	if err != nil {
		return err
	}
	if got := int64(used + nrUsed); got != p.stats.UsedBytes {
		return corruptf("used bytes: counted %d, accounted %d", got, p.stats.UsedBytes)
	}
	return nil
}

func (p *Pool) checkHeader() error {
	h, err := format.DecodePoolHeader(p.buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if h.Tag != p.tag {
		return corruptf("pool tag %#x, expected %#x", h.Tag, p.tag)
	}
	if h.Size != uint64(len(p.buf)) {
		return corruptf("pool size %d, expected %d", h.Size, len(p.buf))
	}
	return nil
}

// checkBitmap counts set bits per class and returns the regular bytes in use.
func (p *Pool) checkBitmap() (int, error) {
	used := 0
	total := 0
	for i := range p.classes {
		c := &p.classes[i]
		set := 0
		for g := c.first; g < c.first+c.blocks; g++ {
			if p.testBit(g) {
				set++
			}
		}
		if c.blocks-set != c.free {
			return 0, corruptf("class %d (%dB): %d clear bits, free count %d", i, c.size, c.blocks-set, c.free)
		}
		if c.highWater < set {
			return 0, corruptf("class %d (%dB): high-water %d below %d in use", i, c.size, c.highWater, set)
		}
		used += set * c.size
		total += c.blocks
	}
	// Padding bits past the last block must stay clear.
	for g := total; g < p.bitmapLen*8; g++ {
		if p.testBit(g) {
			return 0, corruptf("bitmap padding bit %d set", g)
		}
	}
	return used, nil
}

// checkChain walks the non-regular headers from the chunk start and returns
// the payload bytes in use.
func (p *Pool) checkChain() (int, error) {
	used := 0
	visited := 0
	off := p.nr.start
	for off < p.nr.end {
		h, ok := p.nr.hdrs[off]
		if !ok {
			return 0, corruptf("no header at %#x", off)
		}
		if h.size < 0 || !format.IsAligned8(h.size) {
			return 0, corruptf("header %#x: bad size %d", off, h.size)
		}
		tag := format.ReadTag(p.buf, off)
		if !tag.Valid() {
			return 0, corruptf("header %#x: boundary tag magic %#x", off, tag.Magic)
		}
		if tag.Size != uint64(h.size) || tag.Free() != h.free {
			return 0, corruptf("header %#x: tag {size %d free %v} disagrees with record {size %d free %v}",
				off, tag.Size, tag.Free(), h.size, h.free)
		}
		next := off + HeaderSize + h.size
		if back, ok := p.nr.ends[next]; !ok || back != off {
			return 0, corruptf("header %#x: end index for %#x missing", off, next)
		}
		if !h.free {
			used += h.size
		}
		visited++
		off = next
	}
	if off != p.nr.end {
		return 0, corruptf("header chain ends at %#x, chunk ends at %#x", off, p.nr.end)
	}
	if visited != len(p.nr.hdrs) || visited != len(p.nr.ends) {
		return 0, corruptf("chain visits %d headers, %d records, %d end entries",
			visited, len(p.nr.hdrs), len(p.nr.ends))
	}
	if c := p.nr.cursor; c != noCursor {
		if _, ok := p.nr.hdrs[c]; !ok {
			return 0, corruptf("cursor %#x names no header", c)
		}
	}
	return used, nil
}

// checkTag validates the boundary tag in front of a non-regular payload.
func (p *Pool) checkTag(h int) error {
	rec := p.nr.hdrs[h]
	tag := format.ReadTag(p.buf, h)
	if !tag.Valid() || tag.Size != uint64(rec.size) || tag.Free() != rec.free {
		return corruptf("header %#x: boundary tag clobbered (magic %#x size %d)", h, tag.Magic, tag.Size)
	}
	return nil
}

func corruptf(fmsg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(fmsg, args...))
}

// onesCount is used by Dump for the bitmap occupancy line.
func onesCount(b []byte) int {
	n := 0
	for _, x := range b {
		n += bits.OnesCount8(x)
	}
	return n
}

// validate panics with a *UsageError when the boundary tag in front of a
// non-regular payload no longer matches its record.
func (p *Pool) validate(ptr Ptr, op string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}
	at, regular := p.locate(ptr, op)
	if regular {
		return
	}
	if err := p.checkTag(at); err != nil {
		misuse(op, ptr, err)
	}
}
