// Package format holds the byte-level encodings used inside a pool buffer:
// the pool header at offset 0 and the boundary tag stored in the slot that
// precedes every non-regular payload. The allocator keeps its authoritative
// bookkeeping out of line; these in-band copies exist so that a checker can
// detect a caller writing past the end of its block.
package format

const (
	// PoolHeaderSize is the size of the pool header at offset 0.
	//
	// Layout (little-endian):
	//   0x00  u64  corruption-check tag
	//   0x08  u64  total size of the aligned buffer
	//   0x10  u32  number of regular size classes
	//   0x14  u32  header version
	//   0x18  u64  reserved
	PoolHeaderSize = 32

	// PoolTagOffset is the offset of the corruption-check tag.
	PoolTagOffset = 0x00

	// PoolSizeOffset is the offset of the total buffer size.
	PoolSizeOffset = 0x08

	// PoolClassesOffset is the offset of the size class count.
	PoolClassesOffset = 0x10

	// PoolVersionOffset is the offset of the header version.
	PoolVersionOffset = 0x14

	// PoolVersion is written into every freshly initialised pool header.
	PoolVersion = 1

	poolReservedOffset = 0x18
)

const (
	// TagSize is the size of a boundary tag slot.
	//
	// Layout (little-endian):
	//   0x00  u32  TagMagic
	//   0x04  u32  flags (TagFree)
	//   0x08  u64  payload size
	TagSize = 16

	// TagMagic marks a live boundary tag ("nrhd").
	TagMagic uint32 = 0x6472686e

	// TagFree is set in the flags word when the block is free.
	TagFree uint32 = 1 << 0

	tagMagicOffset = 0x00
	tagFlagsOffset = 0x04
	tagSizeOffset  = 0x08
)

// Tag is the decoded form of a boundary tag slot.
type Tag struct {
	Magic uint32
	Flags uint32
	Size  uint64
}

// Free reports whether the tag marks a free block.
func (t Tag) Free() bool {
	return t.Flags&TagFree != 0
}

// Valid reports whether the tag carries the expected magic.
func (t Tag) Valid() bool {
	return t.Magic == TagMagic
}

// PutTag writes a boundary tag for a block of the given payload size at b[off:].
func PutTag(b []byte, off int, size int, free bool) {
	var flags uint32
	if free {
		flags |= TagFree
	}
	PutU32(b, off+tagMagicOffset, TagMagic)
	PutU32(b, off+tagFlagsOffset, flags)
	PutU64(b, off+tagSizeOffset, uint64(size))
}

// ReadTag decodes the boundary tag at b[off:].
func ReadTag(b []byte, off int) Tag {
	return Tag{
		Magic: ReadU32(b, off+tagMagicOffset),
		Flags: ReadU32(b, off+tagFlagsOffset),
		Size:  ReadU64(b, off+tagSizeOffset),
	}
}

// ClearTag zeroes the tag slot at b[off:], used when a header is absorbed by
// a merge and its slot becomes payload of the surviving block.
func ClearTag(b []byte, off int) {
	clear(b[off : off+TagSize])
}
