package pool

import (
	"fmt"

	"github.com/joshuapare/fixedpool/internal/format"
)

// nrHeader is the authoritative record for one non-regular block. Records live
// outside the buffer so a caller overrunning its payload cannot corrupt them;
// the tag slot in front of each payload only mirrors the record.
type nrHeader struct {
	size int // payload bytes, excluding the HeaderSize slot
	free bool
}

// nonRegular manages the residual chunk as an implicit chain of blocks:
// the block after the header at off starts at off+HeaderSize+size.
type nonRegular struct {
	start int
	end   int

	// hdrs: header offset -> record
	// ends: end offset (offset of the following header) -> header offset,
	// for O(1) backward coalescing
	hdrs map[int]nrHeader
	ends map[int]int

	cursor int // header offset of a likely-free block, or noCursor
}

func (p *Pool) initNonRegular(start, end int) {
	p.nr = nonRegular{
		start:  start,
		end:    end,
		hdrs:   make(map[int]nrHeader, 64),
		ends:   make(map[int]int, 64),
		cursor: noCursor,
	}
	p.putHeader(start, end-start-HeaderSize, true)
	p.nr.ends[end] = start
	p.setCursor(start)
}

func (p *Pool) putHeader(off, size int, free bool) {
	p.nr.hdrs[off] = nrHeader{size: size, free: free}
	format.PutTag(p.buf, off, size, free)
}

func (p *Pool) isFree(off int) bool {
	h, ok := p.nr.hdrs[off]
	return ok && h.free
}

// allocNonRegular carves n bytes first-fit out of the non-regular chunk and
// returns the payload offset. The scan starts at the cursor when it is usable
// and wraps around to the chunk start, so failure means the whole chunk was
// examined.
func (p *Pool) allocNonRegular(n int) (int, bool) {
	need := format.Align8(n)
	start := p.cursorStart()
	if off, ok := p.firstFit(start, p.nr.end, need); ok {
		return off + HeaderSize, true
	}
	if start != p.nr.start {
		if off, ok := p.firstFit(p.nr.start, start, need); ok {
			return off + HeaderSize, true
		}
	}
	p.log.Debug("non-regular chunk exhausted", "need", need, "headers", len(p.nr.hdrs))
	return 0, false
}

// firstFit walks headers in [from, limit). A free block that is too small
// absorbs a free successor and is examined again in place, so fragmentation
// is compacted lazily as the search passes over it.
func (p *Pool) firstFit(from, limit, need int) (int, bool) {
	for off := from; off < limit; {
		h, ok := p.nr.hdrs[off]
		if !ok {
			panic(fmt.Errorf("%w: header chain broken at %#x", ErrCorrupt, off))
		}
		if h.free {
			if h.size >= need {
				p.carve(off, need)
				return off, true
			}
			if next := off + HeaderSize + h.size; p.isFree(next) {
				p.merge(off, next)
				p.stats.LazyMerges++
				continue
			}
		}
		off += HeaderSize + h.size
	}
	return 0, false
}

// carve marks the free block at off used and splits off the remainder.
func (p *Pool) carve(off, need int) {
	h := p.nr.hdrs[off]
	p.putHeader(off, h.size, false)
	p.addUsed(h.size)
	p.shrink(off, need)
}

// shrink trims the used block at off to need bytes when the remainder can
// hold a header of its own; the remainder becomes a free block and the
// cursor moves to it. Smaller remainders stay with the block.
func (p *Pool) shrink(off, need int) {
	h := p.nr.hdrs[off]
	rem := h.size - need
	if rem <= HeaderSize {
		return
	}
	end := off + HeaderSize + h.size
	tail := off + HeaderSize + need
	p.putHeader(off, need, false)
	p.putHeader(tail, rem-HeaderSize, true)
	p.nr.ends[tail] = off
	p.nr.ends[end] = tail
	p.subUsed(rem)
	p.setCursor(tail)
	p.stats.Splits++
}

// merge absorbs the header at b into the header at a; b must directly follow
// a. The result keeps a's free/used state and its size grows by one header
// plus b's payload.
func (p *Pool) merge(a, b int) {
	ha, hb := p.nr.hdrs[a], p.nr.hdrs[b]
	end := b + HeaderSize + hb.size
	delete(p.nr.hdrs, b)
	delete(p.nr.ends, b)
	p.putHeader(a, ha.size+HeaderSize+hb.size, ha.free)
	p.nr.ends[end] = a
	format.ClearTag(p.buf, b)
	p.dropCursor(b)
}

// freeNonRegular releases the block whose header is at h and merges it with
// free neighbours on both sides.
func (p *Pool) freeNonRegular(h int, op string) {
	hd := p.nr.hdrs[h]
	if hd.free {
		misuse(op, Ptr(h+HeaderSize), ErrDoubleFree)
	}
	p.subUsed(hd.size)
	p.putHeader(h, hd.size, true)

	if next := h + HeaderSize + hd.size; p.isFree(next) {
		p.merge(h, next)
		p.stats.EagerMerges++
	}
	if prev, ok := p.nr.ends[h]; ok && p.isFree(prev) {
		p.merge(prev, h)
		p.stats.EagerMerges++
		h = prev
	}
	p.setCursor(h)
}

// release marks the block at h free without touching its neighbours; the
// next search that passes over it coalesces it lazily.
func (p *Pool) release(h int) {
	hd := p.nr.hdrs[h]
	p.subUsed(hd.size)
	p.putHeader(h, hd.size, true)
	p.setCursor(h)
}

// reallocNonRegular grows in place when the block already fits or a free
// successor makes it fit; otherwise it moves the payload to a fresh block.
func (p *Pool) reallocNonRegular(h, n int) (int, error) {
	hd := p.nr.hdrs[h]
	need := format.Align8(n)
	if need <= hd.size {
		p.stats.ReallocsInPlace++
		return h + HeaderSize, nil
	}

	oldSize := hd.size
	if next := h + HeaderSize + hd.size; p.isFree(next) {
		p.merge(h, next)
		p.stats.EagerMerges++
		hd = p.nr.hdrs[h]
		p.addUsed(hd.size - oldSize)
	}
	if hd.size >= need {
		p.shrink(h, need)
		p.stats.ReallocsInPlace++
		return h + HeaderSize, nil
	}

	dst, err := p.alloc(n)
	if err != nil {
		return 0, err
	}
	src := h + HeaderSize
	copy(p.buf[dst:dst+oldSize], p.buf[src:src+oldSize])
	p.release(h)
	p.stats.ReallocsMoved++
	return dst, nil
}
