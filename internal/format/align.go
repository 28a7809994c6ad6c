package format

// Alignment utilities for the pool layout.
// Every chunk base, header slot and payload offset handed out by the pool is
// aligned to WordSize so that callers can overlay pointer-sized fields.

const (
	// WordSize is the natural pointer alignment on the supported 64-bit targets.
	WordSize = 8

	// WordMask is WordSize-1, used for round-up and round-down arithmetic.
	WordMask = WordSize - 1
)

// Align8 returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
//	Align8(16) = 16
func Align8(n int) int {
	return (n + WordMask) &^ WordMask
}

// AlignDown8 returns n aligned down to the previous 8-byte boundary.
//
// Example:
//
//	AlignDown8(7)  = 0
//	AlignDown8(8)  = 8
//	AlignDown8(15) = 8
func AlignDown8(n int) int {
	return n &^ WordMask
}

// IsAligned8 reports whether n sits on an 8-byte boundary.
func IsAligned8(n int) bool {
	return n&WordMask == 0
}

// CeilDiv returns ceil(n / d) for positive d.
func CeilDiv(n, d int) int {
	return (n + d - 1) / d
}
