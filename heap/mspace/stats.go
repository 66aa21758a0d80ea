package mspace

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Mallinfo summarizes the memory held by a space. Field names follow the
// traditional mallinfo structure.
type Mallinfo struct {
	Arena    uintptr `json:"arena"`    // bytes in segment chunks, top and its foot included
	Ordblks  uintptr `json:"ordblks"`  // free chunks, top included
	Hblkhd   uintptr `json:"hblkhd"`   // footprint outside segment chunks (direct maps, records)
	Usmblks  uintptr `json:"usmblks"`  // highest footprint reached
	Uordblks uintptr `json:"uordblks"` // bytes in use
	Fordblks uintptr `json:"fordblks"` // bytes free
	Keepcost uintptr `json:"keepcost"` // top chunk size, the most Trim could release
}

func (mi Mallinfo) String() string {
	return fmt.Sprintf("arena=%s free-chunks=%d mapped=%s peak=%s in-use=%s free=%s releasable=%s",
		humanize.IBytes(uint64(mi.Arena)),
		mi.Ordblks,
		humanize.IBytes(uint64(mi.Hblkhd)),
		humanize.IBytes(uint64(mi.Usmblks)),
		humanize.IBytes(uint64(mi.Uordblks)),
		humanize.IBytes(uint64(mi.Fordblks)),
		humanize.IBytes(uint64(mi.Keepcost)))
}

// Mallinfo computes summary statistics by walking the space. A space that
// has never obtained memory reports all zeros.
func (s *Space) Mallinfo() Mallinfo {
	var mi Mallinfo
	if !s.enter("mallinfo") {
		return mi
	}
	defer s.exit("mallinfo")
	m := s.m
	if !m.isInitialized() {
		return mi
	}
	nfree := uintptr(1)
	mfree := m.topsize + m.topFoot
	sum := mfree
	for sp := &m.seg; sp != nil; sp = sp.nextSeg() {
		m.forEachSegmentChunk(sp, func(p chunk) {
			sz := p.size()
			sum += sz
			if !p.cinuse() {
				mfree += sz
				nfree++
			}
		})
	}
	mi.Arena = sum
	mi.Ordblks = nfree
	mi.Hblkhd = m.footprint - sum
	mi.Usmblks = m.maxFootprint
	mi.Uordblks = m.footprint - mfree
	mi.Fordblks = mfree
	mi.Keepcost = m.topsize
	return mi
}

// Stats counts operations and internal events of a space since creation.
type Stats struct {
	MallocCalls   uint64 `json:"malloc_calls"`
	FreeCalls     uint64 `json:"free_calls"`
	ReallocCalls  uint64 `json:"realloc_calls"`
	MemalignCalls uint64 `json:"memalign_calls"`

	// Where allocations were served from.
	SmallBinHits uint64 `json:"small_bin_hits"`
	TreeHits     uint64 `json:"tree_hits"`
	DVHits       uint64 `json:"dv_hits"`
	TopHits      uint64 `json:"top_hits"`
	SysAllocs    uint64 `json:"sys_allocs"`

	ReallocInPlace   uint64 `json:"realloc_in_place"`
	CoalesceBackward uint64 `json:"coalesce_backward"`
	CoalesceForward  uint64 `json:"coalesce_forward"`

	Segments         uint64 `json:"segments"`
	ReleasedSegments uint64 `json:"released_segments"`
	DirectMaps       uint64 `json:"direct_maps"`
	DirectUnmaps     uint64 `json:"direct_unmaps"`
	DirectResizes    uint64 `json:"direct_resizes"`
	Trims            uint64 `json:"trims"`
	TrimmedBytes     uint64 `json:"trimmed_bytes"`

	OutOfMemory uint64 `json:"out_of_memory"`
	UsageErrors uint64 `json:"usage_errors"`
	Corruptions uint64 `json:"corruptions"`
	Resets      uint64 `json:"resets"`
}
