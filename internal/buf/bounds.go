package buf

import "math/bits"

// Add returns a+b, reporting ok = false when the sum wraps around.
func Add(a, b uintptr) (uintptr, bool) {
	sum := a + b
	return sum, sum >= a
}

// Mul multiplies a and b, reporting ok = false when the product does not fit
// in a uintptr. Used for count * elementSize calculations in calloc-style
// requests.
func Mul(a, b uintptr) (uintptr, bool) {
	hi, lo := bits.Mul(uint(a), uint(b))
	return uintptr(lo), hi == 0
}

// Sum adds every element of sizes, reporting ok = false on wraparound.
func Sum(sizes []uintptr) (uintptr, bool) {
	var total uintptr
	for _, s := range sizes {
		next, ok := Add(total, s)
		if !ok {
			return 0, false
		}
		total = next
	}
	return total, true
}

// Span reports whether [off, off+n) fits inside a region of length size.
func Span(size, off, n uintptr) bool {
	end, ok := Add(off, n)
	return ok && off <= size && end <= size
}
