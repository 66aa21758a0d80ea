package heap

import (
	"unsafe"

	"github.com/joshuapare/heapkit/heap/mspace"
)

// mallopt parameter numbers.
const (
	MTrimThreshold = int(mspace.TrimThreshold)
	MGranularity   = int(mspace.Granularity)
	MMmapThreshold = int(mspace.MmapThreshold)
)

// ConfigureDefault sets the configuration of the default space. It fails
// once the default space has been used.
func ConfigureDefault(cfg mspace.Config) error {
	return mspace.ConfigureDefault(cfg)
}

// Default returns the space behind the package-level functions.
func Default() *mspace.Space { return mspace.Default() }

// owner picks the space that should handle p.
func owner(p unsafe.Pointer) *mspace.Space {
	if s := mspace.SpaceOf(p); s != nil {
		return s
	}
	return mspace.Default()
}

// Malloc returns at least n bytes, or nil when memory is exhausted.
func Malloc(n uintptr) unsafe.Pointer { return mspace.Default().Malloc(n) }

// Free releases p. Free(nil) does nothing.
func Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	owner(p).Free(p)
}

// Calloc returns zeroed memory for n elements of size bytes.
func Calloc(n, size uintptr) unsafe.Pointer { return mspace.Default().Calloc(n, size) }

// Realloc resizes p to n bytes. Realloc(nil, n) is Malloc(n).
func Realloc(p unsafe.Pointer, n uintptr) unsafe.Pointer {
	if p == nil {
		return Malloc(n)
	}
	return owner(p).Realloc(p, n)
}

// Memalign returns n bytes aligned to alignment, rounded up to a power of
// two.
func Memalign(alignment, n uintptr) unsafe.Pointer {
	return mspace.Default().Memalign(alignment, n)
}

// PosixMemalign returns n bytes aligned to alignment, which must be a power
// of two multiple of the pointer size.
func PosixMemalign(alignment, n uintptr) (unsafe.Pointer, error) {
	return mspace.Default().PosixMemalign(alignment, n)
}

// Valloc returns page-aligned memory.
func Valloc(n uintptr) unsafe.Pointer { return mspace.Default().Valloc(n) }

// Pvalloc returns page-aligned memory rounded up to whole pages.
func Pvalloc(n uintptr) unsafe.Pointer { return mspace.Default().Pvalloc(n) }

// IndependentCalloc allocates n zeroed, adjacent, separately freeable
// elements. See mspace.Space.IndependentCalloc.
func IndependentCalloc(n int, elemSize uintptr, out []unsafe.Pointer) []unsafe.Pointer {
	return mspace.Default().IndependentCalloc(n, elemSize, out)
}

// IndependentComalloc allocates one adjacent, separately freeable chunk per
// entry of sizes.
func IndependentComalloc(sizes []uintptr, out []unsafe.Pointer) []unsafe.Pointer {
	return mspace.Default().IndependentComalloc(sizes, out)
}

// UsableSize returns the bytes usable at p.
func UsableSize(p unsafe.Pointer) uintptr {
	if p == nil {
		return 0
	}
	return owner(p).UsableSize(p)
}

// Bytes returns an n-byte view of the allocation at p.
func Bytes(p unsafe.Pointer, n uintptr) []byte { return mspace.Bytes(p, n) }

// Trim releases free memory at the top of the default space beyond pad
// bytes and reports whether anything was returned to the system.
func Trim(pad uintptr) bool { return mspace.Default().Trim(pad) }

// Footprint returns the bytes the default space holds from the system.
func Footprint() uintptr { return mspace.Default().Footprint() }

// MaxFootprint returns the peak footprint of the default space.
func MaxFootprint() uintptr { return mspace.Default().MaxFootprint() }

// MaxAllowedFootprint returns the growth cap of the default space.
func MaxAllowedFootprint() uintptr { return mspace.Default().MaxAllowedFootprint() }

// SetMaxAllowedFootprint caps the growth of the default space.
func SetMaxAllowedFootprint(n uintptr) { mspace.Default().SetMaxAllowedFootprint(n) }

// Mallinfo returns summary statistics for the default space.
func Mallinfo() mspace.Mallinfo { return mspace.Default().Mallinfo() }

// Mallopt sets a tuning parameter by its mallopt number. It returns 1 on
// success and 0 when the parameter or value is rejected.
func Mallopt(param, value int) int {
	if value < 0 {
		return 0
	}
	if err := mspace.SetParam(mspace.Param(param), uintptr(value)); err != nil {
		return 0
	}
	return 1
}

// WalkHeap reports every chunk of the default space.
func WalkHeap(fn func(mspace.ChunkInfo)) { mspace.Default().WalkHeap(fn) }

// WalkFreePages reports the free page ranges of the default space.
func WalkFreePages(fn func(start, end uintptr)) { mspace.Default().WalkFreePages(fn) }
