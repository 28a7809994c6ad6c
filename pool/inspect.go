package pool

import (
	"fmt"

	"github.com/joshuapare/fixedpool/internal/format"
)

// Image summarises a pool buffer read back from storage. It is decoded from
// the in-band pool header, the bitmap and the boundary tags alone, so it
// works on a buffer no live Pool owns, such as a file written with a
// file-backed region.
type Image struct {
	Layout  Layout
	Version uint32

	ClassUsed [NumClasses]int // set bits per class

	UsedHeaders int
	FreeHeaders int
	UsedBytes   int // non-regular payload bytes in use
	FreeBytes   int // non-regular payload bytes free
	LargestFree int
}

// RegularUsedBytes returns the block bytes in use across all classes.
func (im Image) RegularUsedBytes() int {
	n := 0
	for i, used := range im.ClassUsed {
		n += used * im.Layout.Classes[i].Size
	}
	return n
}

// Inspect decodes the pool laid out at the start of b. The buffer must begin
// at the pool's aligned start.
func Inspect(b []byte) (Image, error) {
	var im Image

	h, err := format.DecodePoolHeader(b)
	if err != nil {
		return im, err
	}
	if h.Size > uint64(len(b)) {
		return im, fmt.Errorf("%w: header claims %d bytes, have %d", format.ErrTruncated, h.Size, len(b))
	}
	if h.Tag != poolMagic^h.Size {
		return im, fmt.Errorf("%w: %w: tag %#x", ErrCorrupt, format.ErrSignatureMismatch, h.Tag)
	}
	if h.Classes != NumClasses || h.Version != format.PoolVersion {
		return im, fmt.Errorf("%w: %d classes, version %d", format.ErrUnsupported, h.Classes, h.Version)
	}

	l, err := Plan(int(h.Size))
	if err != nil {
		return im, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	im.Layout = l
	im.Version = h.Version
	buf := b[:h.Size]

	for i, c := range l.Classes {
		for g := c.First; g < c.First+c.Blocks; g++ {
			if buf[l.Bitmap.Off+g>>3]&(1<<(g&7)) != 0 {
				im.ClassUsed[i]++
			}
		}
	}

	off, end := l.NonRegular.Off, l.NonRegular.End()
	for off < end {
		if !format.Has(buf[:end], off, HeaderSize) {
			return im, corruptf("boundary tag at %#x runs past the chunk end %#x", off, end)
		}
		tag := format.ReadTag(buf, off)
		if !tag.Valid() {
			return im, corruptf("boundary tag at %#x: magic %#x", off, tag.Magic)
		}
		if tag.Size > uint64(end-off-HeaderSize) {
			return im, corruptf("block at %#x runs past the chunk end %#x", off, end)
		}
		size := int(tag.Size)
		if !format.IsAligned8(size) {
			return im, corruptf("block at %#x: unaligned size %d", off, size)
		}
		if tag.Free() {
			im.FreeHeaders++
			im.FreeBytes += size
			im.LargestFree = max(im.LargestFree, size)
		} else {
			im.UsedHeaders++
			im.UsedBytes += size
		}
		off += HeaderSize + size
	}
	return im, nil
}
