package pool

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/fixedpool/internal/format"
	"github.com/joshuapare/fixedpool/internal/logger"
)

// poolMagic seeds the corruption-check tag written at offset 0.
const poolMagic uint64 = 0x4c4f4f5044584946 // "FIXDPOOL"

// Span is a byte range [Off, Off+Len) of the aligned buffer.
type Span struct {
	Off int
	Len int
}

// End returns the first offset past the span.
func (s Span) End() int {
	return s.Off + s.Len
}

// ClassLayout describes one regular chunk.
type ClassLayout struct {
	Size   int // block size in bytes
	Blocks int // number of blocks
	Base   int // offset of block 0
	First  int // global bitmap index of block 0
}

// Layout is the partition Init computed for a buffer.
type Layout struct {
	Pad         int // bytes skipped at the front of the caller's buffer for alignment
	Size        int // size of the aligned buffer
	Header      Span
	Classes     [NumClasses]ClassLayout
	NonRegular  Span
	Bitmap      Span
	TotalBlocks int
}

// Plan computes the layout Init would use for a buffer of size bytes, without
// touching any memory. It fails with ErrTooSmall when the non-regular chunk
// would be smaller than MinNonRegular.
func Plan(size int) (Layout, error) {
	var l Layout
	l.Size = size
	l.Header = Span{Off: 0, Len: format.PoolHeaderSize}

	counts := blockCounts(size)
	off := format.PoolHeaderSize
	for i := range NumClasses {
		cs := ClassSize(i)
		l.Classes[i] = ClassLayout{Size: cs, Blocks: counts[i], Base: off, First: l.TotalBlocks}
		off += counts[i] * cs
		l.TotalBlocks += counts[i]
	}

	bitmapOff := format.AlignDown8(size - format.CeilDiv(l.TotalBlocks, 8))
	if bitmapOff-off < MinNonRegular {
		return l, fmt.Errorf("%w: %d bytes leaves %d for non-regular blocks, need %d",
			ErrTooSmall, size, max(bitmapOff-off, 0), MinNonRegular)
	}
	l.NonRegular = Span{Off: off, Len: bitmapOff - off}
	l.Bitmap = Span{Off: bitmapOff, Len: size - bitmapOff}
	return l, nil
}

// verify re-derives the byte and block accounting of l. A mismatch is a
// packing bug, never a runtime condition, so it panics.
func (l *Layout) verify() {
	sum := l.Header.End()
	blocks := 0
	for i, c := range l.Classes {
		if c.Base != sum || c.First != blocks || !format.IsAligned8(c.Base) {
			panic(fmt.Errorf("%w: class %d base=%d first=%d, expected base=%d first=%d",
				ErrLayout, i, c.Base, c.First, sum, blocks))
		}
		sum += c.Blocks * c.Size
		blocks += c.Blocks
	}
	switch {
	case blocks != l.TotalBlocks:
		panic(fmt.Errorf("%w: %d blocks laid out, %d accounted", ErrLayout, blocks, l.TotalBlocks))
	case l.NonRegular.Off != sum || !format.IsAligned8(l.NonRegular.Len):
		panic(fmt.Errorf("%w: non-regular chunk at %d+%d, regular chunks end at %d",
			ErrLayout, l.NonRegular.Off, l.NonRegular.Len, sum))
	case l.Bitmap.Off != l.NonRegular.End() || l.Bitmap.End() != l.Size:
		panic(fmt.Errorf("%w: bitmap %d+%d does not close buffer of %d",
			ErrLayout, l.Bitmap.Off, l.Bitmap.Len, l.Size))
	case l.Bitmap.Len*8 < l.TotalBlocks:
		panic(fmt.Errorf("%w: bitmap of %d bytes cannot track %d blocks",
			ErrLayout, l.Bitmap.Len, l.TotalBlocks))
	}
}

// New initialises a pool over buf. See Init.
func New(buf []byte, opts ...Option) (*Pool, error) {
	p := &Pool{}
	if err := p.Init(buf, opts...); err != nil {
		return nil, err
	}
	return p, nil
}

// Init partitions buf into the pool header, the regular chunks, the
// non-regular chunk and the tracking bitmap. The pool owns buf until Exit.
func (p *Pool) Init(buf []byte, opts ...Option) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return ErrActive
	}
	if len(buf) == 0 {
		return ErrNilBuffer
	}

	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	pad := alignPad(buf)
	if pad >= len(buf) {
		return fmt.Errorf("%w: %d bytes", ErrTooSmall, len(buf))
	}
	work := buf[pad:]
	l, err := Plan(len(work))
	if err != nil {
		return err
	}
	l.Pad = pad
	l.verify()

	p.raw, p.buf = buf, work
	p.layout = l
	p.opts = o
	p.log = o.logger
	if p.log == nil {
		p.log = logger.FromEnv()
	}
	p.stats = Stats{}

	p.tag = poolMagic ^ uint64(len(work))
	format.PutPoolHeader(work, format.PoolHeader{
		Tag:     p.tag,
		Size:    uint64(len(work)),
		Classes: NumClasses,
		Version: format.PoolVersion,
	})

	p.bitmapOff, p.bitmapLen = l.Bitmap.Off, l.Bitmap.Len
	clear(work[p.bitmapOff:])

	for i, cl := range l.Classes {
		p.classes[i] = class{
			size:   cl.Size,
			blocks: cl.Blocks,
			free:   cl.Blocks,
			first:  cl.First,
			base:   cl.Base,
			stack:  newPredictStack(o.predictDepth),
		}
		if o.predict {
			p.classes[i].stack.seed(cl.Blocks)
		}
	}
	p.regEnd = l.NonRegular.Off
	p.initNonRegular(l.NonRegular.Off, l.NonRegular.End())
	p.active = true

	p.log.Debug("pool initialised",
		"size", l.Size,
		"pad", l.Pad,
		"regular_blocks", l.TotalBlocks,
		"regular_bytes", l.NonRegular.Off-l.Header.End(),
		"non_regular_bytes", l.NonRegular.Len,
		"bitmap_bytes", l.Bitmap.Len,
	)
	return nil
}

// Exit zeroes the whole buffer and returns the pool to the uninitialised
// state. The caller regains ownership of the buffer.
func (p *Pool) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}
	clear(p.raw)
	p.raw, p.buf = nil, nil
	p.tag = 0
	p.layout = Layout{}
	p.classes = [NumClasses]class{}
	p.regEnd = 0
	p.nr = nonRegular{cursor: noCursor}
	p.bitmapOff, p.bitmapLen = 0, 0
	p.stats = Stats{}
	p.active = false
	p.log.Debug("pool exited")
}

// Layout returns the partition computed at Init.
func (p *Pool) Layout() Layout {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layout
}

// alignPad returns how many leading bytes of buf must be skipped so that
// offset 0 of the working slice is pointer aligned.
func alignPad(buf []byte) int {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	return int((Alignment - addr%Alignment) % Alignment)
}
