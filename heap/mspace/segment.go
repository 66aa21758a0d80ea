package mspace

import (
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// initTop makes p, of psize bytes, the top chunk. The word after it holds a
// fake head of topFoot bytes so the end of the segment is never coalesced.
func (s *Space) initTop(p chunk, psize uintptr) {
	m := s.m
	offset := format.AlignOffset(p.mem())
	p = p.plus(offset)
	psize -= offset
	m.top = p
	m.topsize = psize
	p.setHead(psize | pinuseBit)
	p.plus(psize).setHead(m.topFoot)
	m.trimCheck = mparams.trimThreshold.Load()
}

func (s *Space) initBins() {
	m := s.m
	for i := uint32(0); i < format.NumSmallBins; i++ {
		b := m.smallbinAt(i)
		b.setFd(b)
		b.setBk(b)
	}
}

// resetOnError forgets every segment and free chunk. Outstanding
// allocations and the old segments are abandoned; the space starts over
// with its next system allocation.
func (s *Space) resetOnError() {
	m := s.m
	s.stats.Resets++
	s.logger().Warn("space reset after corruption", "footprint", m.footprint)
	m.smallmap, m.treemap = 0, 0
	m.dvsize, m.topsize = 0, 0
	m.dv, m.top = 0, 0
	m.seg = segment{}
	clear(m.treebins[:])
	s.initBins()
	clear(s.mapped)
}

// prependAlloc serves nb bytes from a new region ending where the segment
// at oldbase starts, folding the remainder into that segment's first chunk.
func (s *Space) prependAlloc(newbase, oldbase, nb uintptr) uintptr {
	m := s.m
	p := alignAsChunk(newbase)
	oldfirst := alignAsChunk(oldbase)
	psize := uintptr(oldfirst) - uintptr(p)
	q := p.plus(nb)
	qsize := psize - nb
	s.setSizeAndPinuseOfInuse(p, nb)

	if oldfirst <= q || !oldfirst.pinuse() || qsize < minChunkSize {
		s.corrupt(uintptr(oldfirst), "segment prepended out of order")
	}

	switch {
	case oldfirst == m.top:
		m.topsize += qsize
		m.top = q
		q.setHead(m.topsize | pinuseBit)
	case oldfirst == m.dv:
		m.dvsize += qsize
		m.dv = q
		q.setSizeAndPinuseOfFree(m.dvsize)
	default:
		if !oldfirst.cinuse() {
			nsize := oldfirst.size()
			s.unlinkChunk(oldfirst, nsize)
			oldfirst = oldfirst.plus(nsize)
			qsize += nsize
		}
		q.setFreeWithPinuse(qsize, oldfirst)
		s.insertChunk(q, qsize)
	}
	return p.mem()
}

// addSegment links a non-adjacent region in as the newest segment. Its
// record goes at the end of the old top, followed by fenceposts; whatever
// is left of the old top is freed.
func (s *Space) addSegment(tbase, tsize, flags uintptr) {
	m := s.m
	oldTop := uintptr(m.top)
	oldsp := m.segmentHolding(oldTop)
	if oldsp == nil {
		s.corrupt(oldTop, "top outside every segment")
	}
	oldEnd := oldsp.end()
	ssize := format.PadRequest(segmentSize, m.overhead)
	rawsp := oldEnd - (ssize + 4*wordSize + format.AlignMask)
	asp := rawsp + format.AlignOffset(rawsp+format.ChunkHeaderSize)
	csp := asp
	if asp < oldTop+minChunkSize {
		csp = oldTop
	}
	sp := chunk(csp)
	ss := (*segment)(buf.Pointer(sp.mem()))
	p := sp.plus(ssize)

	s.initTop(chunk(tbase), tsize-m.topFoot)

	s.setSizeAndPinuseOfInuse(sp, ssize)
	*ss = m.seg
	m.seg = segment{base: tbase, size: tsize, flags: flags, next: uintptr(unsafe.Pointer(ss))}

	nfences := 0
	for {
		nextp := p.plus(wordSize)
		p.setHead(fencepostHead)
		nfences++
		if uintptr(nextp)+wordSize >= oldEnd {
			break
		}
		p = nextp
	}
	if nfences < 2 {
		s.corrupt(csp, "segment record leaves no room for fenceposts")
	}

	if csp != oldTop {
		q := chunk(oldTop)
		psize := csp - oldTop
		q.setFreeWithPinuse(psize, q.plus(psize))
		s.insertChunk(q, psize)
	}
	s.stats.Segments++
	if logAlloc {
		s.logger().Debug("segment added", "base", hexAddr(tbase), "size", tsize, "mapped", flags&segMapped != 0)
	}
}

// releaseUnusedSegments unmaps every mapped segment, other than the newest,
// that consists of a single free chunk. It returns the bytes released.
func (s *Space) releaseUnusedSegments() uintptr {
	m := s.m
	var released uintptr
	pred := &m.seg
	sp := pred.nextSeg()
	for sp != nil {
		base, size, link, next := sp.base, sp.size, sp.next, sp.nextSeg()
		if sp.isMapped() && !sp.isExtern() {
			p := alignAsChunk(base)
			psize := p.size()
			if !p.cinuse() && uintptr(p)+psize >= base+size-m.topFoot {
				if p == m.dv {
					m.dv = 0
					m.dvsize = 0
				} else {
					s.unlinkLarge(p)
				}
				if err := sysmem.Unmap(base, size); err == nil {
					released += size
					m.footprint -= size
					s.stats.ReleasedSegments++
					pred.next = link
					sp = pred
					if logAlloc {
						s.logger().Debug("segment released", "base", hexAddr(base), "size", size)
					}
				} else {
					s.insertLarge(p, psize)
				}
			}
		}
		pred = sp
		sp = next
	}
	return released
}
