package format

import "encoding/binary"

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// PutU32 writes v at b[off:off+4] in little-endian order.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutU64 writes v at b[off:off+8] in little-endian order.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU32 reads a little-endian uint32 at b[off:off+4].
func ReadU32(b []byte, off int) uint32 {
	return U32LE(b[off:])
}

// ReadU64 reads a little-endian uint64 at b[off:off+8].
func ReadU64(b []byte, off int) uint64 {
	return U64LE(b[off:])
}
