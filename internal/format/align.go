package format

// Alignment utilities for chunk addresses and OS region sizes. Every
// boundary handled here is a power of two.

// AlignUp returns n rounded up to the next multiple of a.
//
// Example:
//
//	AlignUp(1, 8)    = 8
//	AlignUp(8, 8)    = 8
//	AlignUp(4097, 4096) = 8192
func AlignUp(n, a uintptr) uintptr {
	return (n + a - 1) &^ (a - 1)
}

// AlignOffset returns the number of bytes needed to move addr up to the
// next Alignment boundary.
func AlignOffset(addr uintptr) uintptr {
	if addr&AlignMask == 0 {
		return 0
	}
	return (Alignment - addr&AlignMask) & AlignMask
}

// IsAligned reports whether addr sits on an Alignment boundary.
func IsAligned(addr uintptr) bool {
	return addr&AlignMask == 0
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n, starting the
// search at floor. floor must itself be a power of two. It returns 0 when
// n is above the largest power of two a uintptr holds.
func NextPowerOfTwo(n, floor uintptr) uintptr {
	a := floor
	for a != 0 && a < n {
		a <<= 1
	}
	return a
}
