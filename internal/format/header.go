package format

import "fmt"

// PoolHeader is the decoded form of the pool header at offset 0.
type PoolHeader struct {
	Tag     uint64
	Size    uint64
	Classes uint32
	Version uint32
}

// PutPoolHeader encodes h into b[0:PoolHeaderSize]. The reserved word is zeroed.
func PutPoolHeader(b []byte, h PoolHeader) {
	PutU64(b, PoolTagOffset, h.Tag)
	PutU64(b, PoolSizeOffset, h.Size)
	PutU32(b, PoolClassesOffset, h.Classes)
	PutU32(b, PoolVersionOffset, h.Version)
	PutU64(b, poolReservedOffset, 0)
}

// DecodePoolHeader reads the pool header from the start of b.
func DecodePoolHeader(b []byte) (PoolHeader, error) {
	if len(b) < PoolHeaderSize {
		return PoolHeader{}, fmt.Errorf("%w: pool header needs %d bytes, have %d", ErrTruncated, PoolHeaderSize, len(b))
	}
	return PoolHeader{
		Tag:     ReadU64(b, PoolTagOffset),
		Size:    ReadU64(b, PoolSizeOffset),
		Classes: ReadU32(b, PoolClassesOffset),
		Version: ReadU32(b, PoolVersionOffset),
	}, nil
}
