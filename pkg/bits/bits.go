// Package bits packs and unpacks the fields of ISO 7816 header bytes
// (CLA, INS, P1-P2) and the big-endian length prefixes of EFs.
//
// Bits are numbered the way ISO 7816-4 numbers them: b8 is the most
// significant bit, b1 the least. Out-of-range positions yield zero.
package bits

// Bit returns the mask of bit n.
func Bit(n uint) byte {
	if n == 0 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether bit n of b is set.
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with bit n set.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// GetRange returns bits high..low of b, shifted down to b1.
// GetRange(0b0000_1100, 4, 3) is 3.
func GetRange(b byte, high, low uint) byte {
	if low == 0 || high > 8 || high < low {
		return 0
	}
	return b >> (low - 1) & byte(1<<(high-low+1)-1)
}

// Split returns the big-endian bytes of v, as READ BINARY carries an offset in P1-P2.
func Split(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// Join is the inverse of Split.
func Join(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
