/*
Package heap is the process-wide allocator: malloc, free and friends served
from a single lazily created default space.

# Quick Start

	p := heap.Malloc(128)
	defer heap.Free(p)
	copy(heap.Bytes(p, 128), data)

Memory returned by this package lives outside the Go heap. The garbage
collector neither scans it nor frees it: pointers to Go objects must not be
stored in it, and every allocation must be released with Free.

# Arenas

Independent arenas are created with mspace.New. When an arena is created
with mspace.Config{Footers: true}, Free, Realloc and UsableSize in this
package route a pointer back to the arena that allocated it; otherwise
arena memory must be released through the arena itself.

# Tuning

Mallopt and the mspace.Param values adjust the process-wide trim
threshold, segment granularity and direct-map threshold:

	heap.Mallopt(heap.MTrimThreshold, 8<<20)

The defaults can also be overridden at startup with HEAPKIT_TRIM_THRESHOLD,
HEAPKIT_GRANULARITY and HEAPKIT_MMAP_THRESHOLD.

# Errors

Out-of-memory conditions return nil. Freeing an invalid pointer panics
with an *mspace.Error unless the default space was configured with the
Continue policy through ConfigureDefault before first use.
*/
package heap
