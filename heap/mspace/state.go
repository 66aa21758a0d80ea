package mspace

import (
	"math/bits"
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// Arena flags kept in state.mflags.
const (
	flagUseMmap       = 1 << iota // direct-map large requests
	flagNoncontiguous             // do not extend through the break
	flagFooters                   // in-use chunks carry an arena tag
)

// Segment flags.
const (
	segMapped = uintptr(1) // obtained through Map; may be unmapped
	segExtern = uintptr(2) // caller supplied; never released
)

// segment describes one contiguous region owned by an arena. The head
// record lives in the state; every other record lives inside the region it
// describes, in the pseudo chunk written by addSegment.
type segment struct {
	base  uintptr
	size  uintptr
	next  uintptr // *segment
	flags uintptr
}

const segmentSize = unsafe.Sizeof(segment{})

func (sp *segment) nextSeg() *segment {
	if sp.next == 0 {
		return nil
	}
	return (*segment)(buf.Pointer(sp.next))
}

func (sp *segment) holds(a uintptr) bool {
	return a >= sp.base && a < sp.base+sp.size
}

func (sp *segment) end() uintptr { return sp.base + sp.size }

func (sp *segment) isMapped() bool { return sp.flags&segMapped != 0 }
func (sp *segment) isExtern() bool { return sp.flags&segExtern != 0 }

// state is the bookkeeping of one arena. It holds no Go pointers so it can
// live inside the memory it manages: user spaces keep it in the first chunk
// of their first segment.
type state struct {
	smallmap uint32
	treemap  uint32
	mflags   uint32
	_        uint32

	dvsize    uintptr
	topsize   uintptr
	leastAddr uintptr
	dv        chunk
	top       chunk
	trimCheck uintptr
	magic     uintptr

	footprint    uintptr
	maxFootprint uintptr
	maxAllowed   uintptr

	// Derived from the flags at creation.
	overhead    uintptr
	topFoot     uintptr
	maxSmallReq uintptr

	// smallbins holds the fd/bk pairs of the small bin headers. Bin i is
	// addressed as a chunk starting two words before its pair, so its
	// prev_foot and head overlap the neighbouring bin and are never read.
	smallbins [(format.NumSmallBins + 1) * 2]chunk
	treebins  [format.NumTreeBins]chunk

	seg segment
}

const stateSize = unsafe.Sizeof(state{})

func (m *state) addr() uintptr { return uintptr(unsafe.Pointer(m)) }

func (m *state) footers() bool { return m.mflags&flagFooters != 0 }

// request2size pads a user request for this arena's per-chunk overhead.
func (m *state) request2size(req uintptr) uintptr {
	return format.RequestToSize(req, m.overhead)
}

// overheadFor is the per-chunk overhead applying to p.
func (m *state) overheadFor(p chunk) uintptr {
	if p.isMapped() {
		return format.MappedOverhead
	}
	return m.overhead
}

func (m *state) smallbinAt(i uint32) chunk {
	return chunk(uintptr(unsafe.Pointer(&m.smallbins[i*2])))
}

func (m *state) treebinAt(i uint32) uintptr {
	return uintptr(unsafe.Pointer(&m.treebins[i]))
}

// Bitmap helpers.

func idx2bit(i uint32) uint32 { return 1 << i }

func leastBit(x uint32) uint32 { return x & -x }

// leftBits masks every bit strictly above the lowest set bit of x.
func leftBits(x uint32) uint32 { return (x << 1) | -(x << 1) }

func bit2idx(x uint32) uint32 { return uint32(bits.TrailingZeros32(x)) }

func (m *state) markSmallmap(i uint32)          { m.smallmap |= idx2bit(i) }
func (m *state) clearSmallmap(i uint32)         { m.smallmap &^= idx2bit(i) }
func (m *state) smallmapIsMarked(i uint32) bool { return m.smallmap&idx2bit(i) != 0 }
func (m *state) markTreemap(i uint32)           { m.treemap |= idx2bit(i) }
func (m *state) clearTreemap(i uint32)          { m.treemap &^= idx2bit(i) }
func (m *state) treemapIsMarked(i uint32) bool  { return m.treemap&idx2bit(i) != 0 }

// topFootSize is the space kept free at the end of every segment for the
// record addSegment writes when the next segment is linked in.
func topFootSize(overhead uintptr) uintptr {
	return format.AlignOffset(format.ChunkHeaderSize) +
		format.PadRequest(segmentSize, overhead) + minChunkSize
}

// configure derives per-chunk constants from the footer flag.
func (m *state) configure(footers bool) {
	m.overhead = format.Overhead
	if footers {
		m.mflags |= flagFooters
		m.overhead = format.FooterOverhead
	}
	m.topFoot = topFootSize(m.overhead)
	m.maxSmallReq = format.MaxSmallRequest(m.overhead)
}

// segmentHolding returns the segment containing a, or nil.
func (m *state) segmentHolding(a uintptr) *segment {
	for sp := &m.seg; sp != nil; sp = sp.nextSeg() {
		if sp.holds(a) {
			return sp
		}
	}
	return nil
}

// hasSegmentLink reports whether some segment record is stored inside ss.
func (m *state) hasSegmentLink(ss *segment) bool {
	for sp := &m.seg; sp != nil; sp = sp.nextSeg() {
		if ss.holds(uintptr(unsafe.Pointer(sp))) {
			return true
		}
	}
	return false
}

func (m *state) isInitialized() bool { return m.top != 0 }

// okAddress is the cheap lower-bound check applied before following a link.
func (m *state) okAddress(a uintptr) bool { return a >= m.leastAddr }
