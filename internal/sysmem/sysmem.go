// Package sysmem obtains and releases backing memory from the operating
// system. It offers two mechanisms:
//
//   - Region mapping: Map, Unmap, and Remap hand out independent
//     anonymous regions, each a multiple of the page size.
//   - A break: a single large address range reserved up front and
//     committed from the low end, giving callers memory that extends
//     contiguously the way sbrk does.
//
// On Linux both are backed by mmap/mremap/mprotect. Elsewhere regions are
// carved from pinned Go buffers, Remap and partial Unmap are unsupported,
// and no break is available.
package sysmem

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrUnsupported reports an operation the platform cannot perform.
	ErrUnsupported = errors.New("sysmem: operation not supported on this platform")

	// ErrExhausted reports that a break has no reserved space left.
	ErrExhausted = errors.New("sysmem: break reservation exhausted")

	// ErrBadRange reports a size or address that does not describe a region.
	ErrBadRange = errors.New("sysmem: bad address range")
)

var (
	mappedBytes atomic.Int64
	mapCalls    atomic.Int64
	unmapCalls  atomic.Int64
)

// PageSize returns the operating system page size.
func PageSize() uintptr {
	return pageSize()
}

// Map returns the address of a fresh zero-filled read/write region of size
// bytes. size must be a non-zero multiple of PageSize.
func Map(size uintptr) (uintptr, error) {
	if size == 0 || size%PageSize() != 0 {
		return 0, fmt.Errorf("map %d bytes: %w", size, ErrBadRange)
	}
	addr, err := mapRegion(size)
	if err != nil {
		return 0, fmt.Errorf("sysmem: map %d bytes: %w", size, err)
	}
	mapCalls.Add(1)
	mappedBytes.Add(int64(size))
	return addr, nil
}

// Unmap releases [addr, addr+size). Callers may release the tail of a region
// obtained from Map where the platform supports it.
func Unmap(addr, size uintptr) error {
	if addr == 0 || size == 0 {
		return fmt.Errorf("unmap %#x+%d: %w", addr, size, ErrBadRange)
	}
	if err := unmapRegion(addr, size); err != nil {
		return fmt.Errorf("sysmem: unmap %#x+%d: %w", addr, size, err)
	}
	unmapCalls.Add(1)
	mappedBytes.Add(-int64(size))
	return nil
}

// Remap resizes the region at addr from oldSize to newSize bytes. When
// mayMove is false the region must stay at addr; otherwise the kernel may
// relocate it and the new address is returned.
func Remap(addr, oldSize, newSize uintptr, mayMove bool) (uintptr, error) {
	if addr == 0 || oldSize == 0 || newSize == 0 {
		return 0, fmt.Errorf("remap %#x: %w", addr, ErrBadRange)
	}
	naddr, err := remapRegion(addr, oldSize, newSize, mayMove)
	if err != nil {
		return 0, fmt.Errorf("sysmem: remap %#x %d->%d: %w", addr, oldSize, newSize, err)
	}
	mappedBytes.Add(int64(newSize) - int64(oldSize))
	return naddr, nil
}

// Counters is a snapshot of region-mapping activity since process start.
type Counters struct {
	MappedBytes int64 // bytes currently held through Map/Remap
	MapCalls    int64
	UnmapCalls  int64
}

// Stats returns the current mapping counters.
func Stats() Counters {
	return Counters{
		MappedBytes: mappedBytes.Load(),
		MapCalls:    mapCalls.Load(),
		UnmapCalls:  unmapCalls.Load(),
	}
}
