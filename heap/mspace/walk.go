package mspace

import (
	"slices"
	"unsafe"

	"github.com/joshuapare/heapkit/internal/format"
)

// ChunkInfo describes one chunk reported by WalkHeap.
type ChunkInfo struct {
	Addr     uintptr        // chunk header address
	Size     uintptr        // chunk size including overhead
	User     unsafe.Pointer // payload of an in-use chunk; nil when free
	UserSize uintptr        // usable bytes at User
	Mapped   bool           // direct-mapped chunk
}

// InUse reports whether the chunk is allocated.
func (c ChunkInfo) InUse() bool { return c.User != nil }

// forEachSegmentChunk visits the chunks of sp up to, but excluding, top
// and the trailing fenceposts. It reports whether the walk stopped at top.
func (m *state) forEachSegmentChunk(sp *segment, fn func(p chunk)) bool {
	p := alignAsChunk(sp.base)
	for sp.holds(uintptr(p)) && p != m.top && p.head() != fencepostHead {
		fn(p)
		p = p.next()
	}
	return p == m.top
}

// WalkHeap calls fn for every chunk in the space's segments, in address
// order within each segment, newest segment first. The top chunk is
// reported as a free chunk. Direct-mapped chunks follow, in address order.
// fn must not call back into the space.
func (s *Space) WalkHeap(fn func(ChunkInfo)) {
	if !s.enter("walk_heap") {
		return
	}
	defer s.exit("walk_heap")
	m := s.m
	if !m.isInitialized() {
		return
	}
	for sp := &m.seg; sp != nil; sp = sp.nextSeg() {
		reachedTop := m.forEachSegmentChunk(sp, func(p chunk) {
			info := ChunkInfo{Addr: uintptr(p), Size: p.size()}
			if p.cinuse() {
				info.User = ptrOf(p.mem())
				info.UserSize = info.Size - m.overhead
			}
			fn(info)
		})
		if reachedTop {
			fn(ChunkInfo{Addr: uintptr(m.top), Size: m.topsize})
		}
	}
	for _, p := range s.mappedChunks() {
		fn(ChunkInfo{
			Addr:     uintptr(p),
			Size:     p.size(),
			User:     ptrOf(p.mem()),
			UserSize: p.size() - m.overheadFor(p),
			Mapped:   true,
		})
	}
}

// WalkFreePages calls fn with the [start, end) range of every free chunk,
// top included, that lies past the chunk's own bookkeeping. The pages
// inside such a range hold no live data and may be handed back to the
// system by the caller (for example with madvise). fn must not call back
// into the space.
func (s *Space) WalkFreePages(fn func(start, end uintptr)) {
	if !s.enter("walk_free_pages") {
		return
	}
	defer s.exit("walk_free_pages")
	m := s.m
	if !m.isInitialized() {
		return
	}
	for sp := &m.seg; sp != nil; sp = sp.nextSeg() {
		reachedTop := m.forEachSegmentChunk(sp, func(p chunk) {
			if p.cinuse() {
				return
			}
			start := uintptr(p) + smallLinkSize
			if !format.IsSmall(p.size()) {
				start = uintptr(p) + treeNodeSize
			}
			fn(start, uintptr(p.next()))
		})
		if reachedTop {
			fn(uintptr(m.top)+smallLinkSize, uintptr(m.top)+m.topsize)
		}
	}
}

func (s *Space) mappedChunks() []chunk {
	out := make([]chunk, 0, len(s.mapped))
	for p := range s.mapped {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
