package utils

// FieldBE reads a big-endian unsigned field of n bytes starting at data[start].
// ok is false when the slice does not cover the whole field.
func FieldBE(data []byte, start, n int) (u uint64, ok bool) {
	if start < 0 || n <= 0 || n > 8 || start+n > len(data) {
		return 0, false
	}
	for i := 0; i < n; i++ {
		u = u<<8 | uint64(data[start+i])
	}
	return u, true
}

// PutFieldBE writes the low n bytes of u big-endian into data[start:].
// Bytes that would fall outside data are silently not written.
func PutFieldBE(data []byte, start, n int, u uint64) {
	for i := n - 1; i >= 0; i-- {
		if idx := start + i; idx >= 0 && idx < len(data) {
			data[idx] = byte(u & 0xFF)
		}
		u >>= 8
	}
}

// SignedRaw reinterprets the low bitLen bits of u as a two's-complement value.
func SignedRaw(u uint64, bitLen int) int64 {
	if bitLen <= 0 || bitLen > 64 {
		return int64(u)
	}
	signBit := uint64(1) << (bitLen - 1)
	if (u & signBit) == 0 {
		return int64(u)
	}
	fullMask := uint64((1 << bitLen) - 1)
	twos := (^u + 1) & fullMask
	return -int64(twos)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
