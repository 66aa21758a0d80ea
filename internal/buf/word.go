// Package buf contains raw memory helpers for off-heap regions: word
// loads and stores at absolute addresses, block copies, and overflow-safe
// size arithmetic.
//
// Every address handed to these helpers must point into memory that is not
// managed by the Go garbage collector (a mapped region, or a Go buffer kept
// alive by its owner). Address-to-pointer conversions are confined to this
// file and exempt from -d=checkptr, which the race detector enables: a
// bare uintptr into a Go buffer has no originating pointer to check against.
package buf

import "unsafe"

// WordSize is the size of a machine word in bytes.
const WordSize = unsafe.Sizeof(uintptr(0))

// Pointer converts an absolute address back into a pointer.
//
//go:nocheckptr
func Pointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // off-heap address
}

// Load reads the word stored at addr.
//
//go:nocheckptr
func Load(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr)) //nolint:govet // off-heap address
}

// Store writes v to the word at addr.
//
//go:nocheckptr
func Store(addr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v //nolint:govet // off-heap address
}

// Bytes returns an n-byte slice aliasing the memory at addr.
//
//go:nocheckptr
func Bytes(addr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n) //nolint:govet // off-heap address
}

// Zero clears n bytes starting at addr.
func Zero(addr, n uintptr) {
	if n == 0 {
		return
	}
	clear(Bytes(addr, n))
}

// Copy moves n bytes from src to dst. Overlapping ranges are handled.
func Copy(dst, src, n uintptr) {
	if n == 0 || dst == src {
		return
	}
	copy(Bytes(dst, n), Bytes(src, n))
}
