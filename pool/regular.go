package pool

import "fmt"

// class is one regular chunk: blocks of a single size, tracked by a range of
// bits in the shared bitmap.
type class struct {
	size      int // block size
	blocks    int // number of blocks
	free      int // number of clear bits in this class's range
	first     int // global bitmap index of block 0
	base      int // buffer offset of block 0
	highWater int // most blocks ever in use at once
	stack     predictStack
}

func (c *class) end() int {
	return c.base + c.blocks*c.size
}

func (c *class) used() int {
	return c.blocks - c.free
}

// allocRegular serves n from the smallest class that fits and still has a
// free block. It never splits a block across classes; when every fitting
// class is full the caller falls through to the non-regular chunk.
func (p *Pool) allocRegular(n int) (int, bool) {
	for ci := classFor(n); ci < NumClasses; ci++ {
		c := &p.classes[ci]
		if c.free == 0 {
			continue
		}
		idx := p.takeBlock(c)
		if idx < 0 {
			panic(fmt.Errorf("%w: class %d reports %d free blocks but bitmap is full",
				ErrCorrupt, ci, c.free))
		}
		p.setBit(c.first + idx)
		c.free--
		c.highWater = max(c.highWater, c.used())
		p.addUsed(c.size)
		return c.base + idx*c.size, true
	}
	return 0, false
}

// takeBlock picks a free block index in c: a prediction candidate when one is
// available, otherwise the first clear bit of the class range.
func (p *Pool) takeBlock(c *class) int {
	if p.opts.predict {
		for {
			idx, ok := c.stack.pop()
			if !ok {
				break
			}
			if idx >= c.blocks || p.testBit(c.first+idx) {
				continue
			}
			p.stats.PredictHits++
			// Sequential frees are common; keep the stack warm with the neighbour.
			if c.stack.len() == 0 {
				if next := idx + 1; next < c.blocks && !p.testBit(c.first+next) {
					c.stack.push(next)
				}
			}
			return idx
		}
		p.stats.PredictMisses++
	}
	return p.scanBlocks(c)
}

// scanBlocks returns the first clear bit in c's range, or -1.
func (p *Pool) scanBlocks(c *class) int {
	end := c.first + c.blocks
	for g := c.first; g < end; {
		if g&7 == 0 && g+8 <= end && p.buf[p.bitmapOff+g>>3] == 0xff {
			g += 8
			continue
		}
		if !p.testBit(g) {
			return g - c.first
		}
		g++
	}
	return -1
}

func (p *Pool) freeRegular(ci, off int, op string) {
	c := &p.classes[ci]
	rel := off - c.base
	if rel%c.size != 0 {
		misuse(op, Ptr(off), ErrMisaligned)
	}
	idx := rel / c.size
	g := c.first + idx
	if !p.testBit(g) {
		misuse(op, Ptr(off), ErrDoubleFree)
	}
	p.clearBit(g)
	c.free++
	p.subUsed(c.size)
	if p.opts.predict {
		c.stack.push(idx)
	}
}

// reallocRegular keeps the block when n still fits its class. The class is
// never renegotiated downward.
func (p *Pool) reallocRegular(ci, off, n int) (int, error) {
	c := &p.classes[ci]
	if n <= c.size {
		p.stats.ReallocsInPlace++
		return off, nil
	}
	dst, err := p.alloc(n)
	if err != nil {
		return 0, err
	}
	copy(p.buf[dst:dst+c.size], p.buf[off:off+c.size])
	p.freeRegular(ci, off, "realloc")
	p.stats.ReallocsMoved++
	return dst, nil
}

//---- bitmap

func (p *Pool) testBit(g int) bool {
	return p.buf[p.bitmapOff+g>>3]&(1<<(g&7)) != 0
}

func (p *Pool) setBit(g int) {
	p.buf[p.bitmapOff+g>>3] |= 1 << (g & 7)
}

func (p *Pool) clearBit(g int) {
	p.buf[p.bitmapOff+g>>3] &^= 1 << (g & 7)
}
