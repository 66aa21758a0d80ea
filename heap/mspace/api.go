package mspace

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// Malloc returns at least n bytes of 8-byte aligned memory, or nil when the
// space cannot grow. Malloc(0) returns a minimum-sized chunk.
func (s *Space) Malloc(n uintptr) (p unsafe.Pointer) {
	if !s.enter("malloc") {
		return nil
	}
	defer s.exit("malloc")
	s.stats.MallocCalls++
	mem := s.malloc(n)
	if mem == 0 {
		s.outOfMemory("malloc", n)
	}
	return ptrOf(mem)
}

// Free releases p. Freeing nil is a no-op. Freeing a pointer the space did
// not hand out, or freeing twice, is a usage error.
func (s *Space) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	if !s.enter("free") {
		return
	}
	defer s.exit("free")
	s.stats.FreeCalls++
	mem := memOf(p)
	if err := s.checkInuse(chunkOf(mem)); err != nil {
		s.usageErrorLocked("free", mem, err)
		return
	}
	s.free(mem)
}

// Calloc returns zeroed memory for n elements of size bytes each, or nil on
// overflow or exhaustion.
func (s *Space) Calloc(n, size uintptr) unsafe.Pointer {
	if !s.enter("calloc") {
		return nil
	}
	defer s.exit("calloc")
	s.stats.MallocCalls++
	req, ok := buf.Mul(n, size)
	if !ok {
		s.outOfMemory("calloc", ^uintptr(0))
		return nil
	}
	mem := s.malloc(req)
	if mem == 0 {
		s.outOfMemory("calloc", req)
		return nil
	}
	// Fresh mappings are already zero.
	if !chunkOf(mem).isMapped() {
		buf.Zero(mem, req)
	}
	return ptrOf(mem)
}

// Realloc resizes the allocation at p to n bytes, preserving the first
// min(old, n) bytes. A nil p behaves as Malloc. On failure nil is returned
// and p is left untouched.
func (s *Space) Realloc(p unsafe.Pointer, n uintptr) unsafe.Pointer {
	if p == nil {
		return s.Malloc(n)
	}
	if !s.enter("realloc") {
		return nil
	}
	defer s.exit("realloc")
	s.stats.ReallocCalls++
	if n >= format.MaxRequest {
		s.outOfMemory("realloc", n)
		return nil
	}
	mem := memOf(p)
	if err := s.checkInuse(chunkOf(mem)); err != nil {
		s.usageErrorLocked("realloc", mem, err)
		return nil
	}
	out := s.realloc(mem, n)
	if out == 0 {
		s.outOfMemory("realloc", n)
	}
	return ptrOf(out)
}

// Memalign returns n bytes aligned to alignment. Alignments that are not a
// power of two are rounded up to the next one.
func (s *Space) Memalign(alignment, n uintptr) unsafe.Pointer {
	if !s.enter("memalign") {
		return nil
	}
	defer s.exit("memalign")
	s.stats.MemalignCalls++
	mem := s.memalign(alignment, n)
	if mem == 0 {
		s.outOfMemory("memalign", n)
	}
	return ptrOf(mem)
}

// PosixMemalign is Memalign with strict argument checking: alignment must
// be a power of two multiple of the pointer size.
func (s *Space) PosixMemalign(alignment, n uintptr) (unsafe.Pointer, error) {
	if alignment%ptrSize != 0 || !format.IsPowerOfTwo(alignment/ptrSize) {
		return nil, fmt.Errorf("posix_memalign alignment %d: %w", alignment, ErrInvalidParam)
	}
	p := s.Memalign(alignment, n)
	if p == nil {
		return nil, &Error{Op: "posix_memalign", Err: ErrOutOfMemory}
	}
	return p, nil
}

// Valloc returns n bytes aligned to the page size.
func (s *Space) Valloc(n uintptr) unsafe.Pointer {
	return s.Memalign(PageSize(), n)
}

// Pvalloc returns page-aligned memory rounded up to whole pages.
func (s *Space) Pvalloc(n uintptr) unsafe.Pointer {
	ps := PageSize()
	if n > ^uintptr(0)-ps {
		return nil
	}
	return s.Memalign(ps, format.AlignUp(n, ps))
}

// IndependentCalloc allocates n zeroed elements of elemSize bytes each,
// placed next to each other but freeable one by one. If out is non-nil it
// receives the pointers and must hold at least n entries; otherwise the
// returned slice itself lives in the space and may be released with
// Free(unsafe.Pointer(&ptrs[0])). It returns nil on failure.
func (s *Space) IndependentCalloc(n int, elemSize uintptr, out []unsafe.Pointer) []unsafe.Pointer {
	if !s.enter("independent_calloc") {
		return nil
	}
	defer s.exit("independent_calloc")
	if n < 0 || (out != nil && len(out) < n) {
		s.usageErrorLocked("independent_calloc", 0, ErrInvalidParam)
		return nil
	}
	s.stats.MallocCalls++
	sizes := []uintptr{elemSize}
	ptrs := s.ialloc(uintptr(n), sizes, true, true, out)
	if ptrs == nil {
		s.outOfMemory("independent_calloc", elemSize)
	}
	return ptrs
}

// IndependentComalloc allocates one chunk per entry of sizes, placed next
// to each other but freeable one by one. The contents are not cleared. out
// behaves as in IndependentCalloc.
func (s *Space) IndependentComalloc(sizes []uintptr, out []unsafe.Pointer) []unsafe.Pointer {
	if !s.enter("independent_comalloc") {
		return nil
	}
	defer s.exit("independent_comalloc")
	if out != nil && len(out) < len(sizes) {
		s.usageErrorLocked("independent_comalloc", 0, ErrInvalidParam)
		return nil
	}
	s.stats.MallocCalls++
	ptrs := s.ialloc(uintptr(len(sizes)), sizes, false, false, out)
	if ptrs == nil {
		s.outOfMemory("independent_comalloc", 0)
	}
	return ptrs
}

// MergeObjects combines two allocations where b immediately follows a in
// memory into one allocation at a. It returns nil, leaving both untouched,
// if b does not directly follow a.
func (s *Space) MergeObjects(a, b unsafe.Pointer) unsafe.Pointer {
	if a == nil || b == nil {
		return nil
	}
	if !s.enter("merge") {
		return nil
	}
	defer s.exit("merge")
	pa, pb := chunkOf(memOf(a)), chunkOf(memOf(b))
	if err := s.checkInuse(pa); err != nil {
		s.usageErrorLocked("merge", memOf(a), err)
		return nil
	}
	if err := s.checkInuse(pb); err != nil {
		s.usageErrorLocked("merge", memOf(b), err)
		return nil
	}
	return ptrOf(s.mergeObjects(pa, pb))
}

// UsableSize returns the bytes usable at p, which belongs to s.
func (s *Space) UsableSize(p unsafe.Pointer) uintptr {
	if p == nil {
		return 0
	}
	if !s.enter("usable_size") {
		return 0
	}
	defer s.exit("usable_size")
	c := chunkOf(memOf(p))
	if !c.cinuse() {
		return 0
	}
	return c.size() - s.m.overheadFor(c)
}

// Trim returns free memory above pad bytes at the top of the space to the
// system, along with any segment that is entirely free. It reports whether
// any memory was released.
func (s *Space) Trim(pad uintptr) bool {
	if !s.enter("trim") {
		return false
	}
	defer s.exit("trim")
	return s.sysTrim(pad)
}

// Footprint returns the bytes currently obtained from the system.
func (s *Space) Footprint() uintptr {
	if !s.enter("footprint") {
		return 0
	}
	defer s.exit("footprint")
	return s.m.footprint
}

// MaxFootprint returns the largest footprint the space has reached.
func (s *Space) MaxFootprint() uintptr {
	if !s.enter("max_footprint") {
		return 0
	}
	defer s.exit("max_footprint")
	return s.m.maxFootprint
}

// MaxAllowedFootprint returns the cap on the footprint.
func (s *Space) MaxAllowedFootprint() uintptr {
	if !s.enter("max_allowed_footprint") {
		return 0
	}
	defer s.exit("max_allowed_footprint")
	return s.m.maxAllowed
}

// SetMaxAllowedFootprint caps future growth. A cap above the current
// footprint is rounded up to the granularity; a lower one is raised to the
// current footprint, as memory already held is never given up for it.
func (s *Space) SetMaxAllowedFootprint(n uintptr) {
	if !s.enter("set_max_allowed_footprint") {
		return
	}
	defer s.exit("set_max_allowed_footprint")
	m := s.m
	if n > m.footprint {
		n = m.footprint + granularityAlign(n-m.footprint)
		if n < m.footprint {
			n = ^uintptr(0)
		}
	} else {
		n = m.footprint
	}
	m.maxAllowed = n
}

// Locked reports whether the space serializes its operations.
func (s *Space) Locked() bool { return s.cfg.Locked }

// Stats returns a snapshot of the operation counters.
func (s *Space) Stats() Stats {
	s.lock()
	defer s.unlock()
	return s.stats
}
