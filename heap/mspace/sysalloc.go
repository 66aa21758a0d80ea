package mspace

import (
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// sysAlloc obtains memory from the system for a request of nb bytes that
// nothing in the bins or top could serve. It tries, in order: a direct
// mapping for large requests, extending the break contiguously, a fresh
// mapping, and a non-contiguous break extension. The new memory is merged
// with an adjacent segment when possible.
func (s *Space) sysAlloc(nb uintptr) uintptr {
	m := s.m
	s.stats.SysAllocs++
	if s.onSysAlloc != nil {
		s.onSysAlloc(nb)
	}

	if m.mflags&flagUseMmap != 0 && nb >= mparams.mmapThreshold.Load() {
		if mem := s.mmapAlloc(nb); mem != 0 {
			return mem
		}
	}

	req, ok := buf.Add(nb, m.topFoot+1)
	if !ok || req >= format.HalfMaxSize {
		return 0
	}
	if fp := m.footprint + granularityAlign(req); fp <= m.footprint || fp > m.maxAllowed {
		return 0
	}

	var tbase, tsize, mmapFlag uintptr
	if m.mflags&flagNoncontiguous == 0 {
		tbase, tsize = s.growContiguous(nb)
	}
	if tbase == 0 {
		if rsize := granularityAlign(req); rsize > nb {
			if mp, err := sysmem.Map(rsize); err == nil {
				tbase, tsize, mmapFlag = mp, rsize, segMapped
			}
		}
	}
	if tbase == 0 && m.mflags&flagNoncontiguous != 0 && s.global {
		tbase, tsize = s.growNoncontiguous(nb)
	}
	if tbase == 0 {
		return 0
	}

	m.footprint += tsize
	if m.footprint > m.maxFootprint {
		m.maxFootprint = m.footprint
	}

	if !m.isInitialized() {
		if m.leastAddr == 0 || tbase < m.leastAddr {
			m.leastAddr = tbase
		}
		m.seg = segment{base: tbase, size: tsize, flags: mmapFlag}
		m.magic = mparams.magic
		s.initBins()
		s.initTop(chunk(tbase), tsize-m.topFoot)
		s.stats.Segments++
	} else {
		sp := &m.seg
		for sp != nil && tbase != sp.end() {
			sp = sp.nextSeg()
		}
		if sp != nil && !sp.isExtern() && sp.flags&segMapped == mmapFlag && sp.holds(uintptr(m.top)) {
			sp.size += tsize
			s.initTop(m.top, m.topsize+tsize)
		} else {
			if tbase < m.leastAddr {
				m.leastAddr = tbase
			}
			sp = &m.seg
			for sp != nil && sp.base != tbase+tsize {
				sp = sp.nextSeg()
			}
			if sp != nil && !sp.isExtern() && sp.flags&segMapped == mmapFlag {
				oldbase := sp.base
				sp.base = tbase
				sp.size += tsize
				return s.prependAlloc(tbase, oldbase, nb)
			}
			s.addSegment(tbase, tsize, mmapFlag)
		}
	}

	if nb < m.topsize {
		m.topsize -= nb
		rsize := m.topsize
		p := m.top
		r := p.plus(nb)
		m.top = r
		r.setHead(rsize | pinuseBit)
		s.setSizeAndPinuseOfInuse(p, nb)
		return p.mem()
	}
	return 0
}

// growContiguous extends the process break so that it continues the
// segment holding top. Only the default space uses the break in this
// mode. If the break cannot continue the segment the space is marked
// non-contiguous and whatever the break did return is used as a fresh
// segment.
func (s *Space) growContiguous(nb uintptr) (uintptr, uintptr) {
	m := s.m
	if !s.global {
		m.mflags |= flagNoncontiguous
		return 0, 0
	}
	brk, err := sysmem.DefaultBreak()
	if err != nil {
		m.mflags |= flagNoncontiguous
		return 0, 0
	}
	sbrk := func(incr int) (uintptr, bool) {
		a, err := brk.Sbrk(incr)
		return a, err == nil
	}

	morecoreMu.Lock()
	defer morecoreMu.Unlock()

	var ss *segment
	if m.isInitialized() {
		ss = m.segmentHolding(uintptr(m.top))
	}

	var tbase, tsize, asize, br uintptr
	brOK := false
	if ss == nil {
		base, ok := sbrk(0)
		if ok {
			asize = granularityAlign(nb + m.topFoot + 1)
			if base&(mparams.pageSize-1) != 0 {
				asize += pageAlign(base) - base
			}
			if fp := m.footprint + asize; fp <= m.footprint || fp > m.maxAllowed {
				asize = format.HalfMaxSize
			}
			if asize < format.HalfMaxSize {
				if br, brOK = sbrk(int(asize)); brOK && br == base {
					tbase, tsize = base, asize
				}
			}
		}
	} else {
		asize = granularityAlign(nb - m.topsize + m.topFoot + 1)
		if asize < format.HalfMaxSize {
			if br, brOK = sbrk(int(asize)); brOK && br == ss.end() {
				tbase, tsize = br, asize
			}
		}
	}
	if tbase != 0 {
		return tbase, tsize
	}

	if brOK {
		need := nb + m.topFoot + 1
		if asize < format.HalfMaxSize && asize < need {
			esize := granularityAlign(need - asize)
			if esize < format.HalfMaxSize {
				if _, ok := sbrk(int(esize)); ok {
					asize += esize
				} else {
					sbrk(-int(asize))
					brOK = false
				}
			}
		}
	}
	if brOK {
		return br, asize
	}
	m.mflags |= flagNoncontiguous
	return 0, 0
}

// growNoncontiguous takes whatever the break can give as an independent
// segment.
func (s *Space) growNoncontiguous(nb uintptr) (uintptr, uintptr) {
	m := s.m
	asize := granularityAlign(nb + m.topFoot + 1)
	if asize >= format.HalfMaxSize {
		return 0, 0
	}
	brk, err := sysmem.DefaultBreak()
	if err != nil {
		return 0, 0
	}
	morecoreMu.Lock()
	br, err1 := brk.Sbrk(int(asize))
	end, err2 := brk.Sbrk(0)
	morecoreMu.Unlock()
	if err1 == nil && err2 == nil && br < end {
		if ssize := end - br; ssize > nb+m.topFoot {
			return br, ssize
		}
	}
	return 0, 0
}

// sysTrim gives memory above pad bytes of top back to the system, then
// releases wholly free segments. It reports whether anything was released.
func (s *Space) sysTrim(pad uintptr) bool {
	m := s.m
	var released uintptr
	if pad >= format.MaxRequest || !m.isInitialized() {
		return false
	}
	s.stats.Trims++

	pad += m.topFoot
	if m.topsize > pad {
		unit := mparams.granularity.Load()
		extra := ((m.topsize-pad+(unit-1))/unit - 1) * unit
		sp := m.segmentHolding(uintptr(m.top))
		if sp == nil {
			s.corrupt(uintptr(m.top), "top outside every segment")
		}
		if extra != 0 && !sp.isExtern() {
			if sp.isMapped() {
				if sp.size >= extra && !m.hasSegmentLink(sp) {
					newsize := sp.size - extra
					if _, err := sysmem.Remap(sp.base, sp.size, newsize, false); err == nil {
						released = extra
					} else if err := sysmem.Unmap(sp.base+newsize, extra); err == nil {
						released = extra
					}
				}
			} else if s.global {
				released = s.trimBreak(sp, extra, unit)
			}
		}
		if released != 0 {
			sp.size -= released
			m.footprint -= released
			s.initTop(m.top, m.topsize-released)
			if logAlloc {
				s.logger().Debug("top trimmed", "released", released, "top", m.topsize)
			}
		}
	}

	released += s.releaseUnusedSegments()
	s.stats.TrimmedBytes += uint64(released)

	if released == 0 {
		m.trimCheck = ^uintptr(0)
	}
	return released != 0
}

// trimBreak lowers the process break by up to extra bytes, provided sp
// still ends at the break.
func (s *Space) trimBreak(sp *segment, extra, unit uintptr) uintptr {
	brk, err := sysmem.DefaultBreak()
	if err != nil {
		return 0
	}
	if extra >= format.HalfMaxSize {
		extra = format.HalfMaxSize - unit
	}
	morecoreMu.Lock()
	defer morecoreMu.Unlock()
	oldBr, err := brk.Sbrk(0)
	if err != nil || oldBr != sp.end() {
		return 0
	}
	_, relErr := brk.Sbrk(-int(extra))
	newBr, err := brk.Sbrk(0)
	if relErr != nil || err != nil || newBr >= oldBr {
		return 0
	}
	return oldBr - newBr
}
