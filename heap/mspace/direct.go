package mspace

import (
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// Direct-mapped chunks own a whole mapping. prev_foot holds the offset of
// the chunk from the mapping start with the mapped bit set; the chunk is
// followed by a fencepost head and a zero head so nothing ever coalesces
// across its end.
//
//	mapping -> [offset bytes][prev_foot|head|payload ...][fence][0]

func mappedSize(nb uintptr) uintptr {
	return granularityAlign(nb + 6*wordSize + format.AlignMask)
}

func (s *Space) mmapAlloc(nb uintptr) uintptr {
	m := s.m
	mmsize := mappedSize(nb)
	if mmsize <= nb {
		return 0
	}
	if fp := m.footprint + mmsize; fp <= m.footprint || fp > m.maxAllowed {
		return 0
	}
	mm, err := sysmem.Map(mmsize)
	if err != nil {
		if logAlloc {
			s.logger().Debug("direct map failed", "size", mmsize, "error", err)
		}
		return 0
	}
	offset := format.AlignOffset(mm + format.ChunkHeaderSize)
	psize := mmsize - offset - format.MappedFootPad
	p := chunk(mm + offset)
	p.setPrevFoot(offset | mappedBit)
	p.setHead(psize | cinuseBit)
	s.markInuseFoot(p, psize)
	p.plus(psize).setHead(fencepostHead)
	p.plus(psize + wordSize).setHead(0)

	if m.leastAddr == 0 || mm < m.leastAddr {
		m.leastAddr = mm
	}
	m.footprint += mmsize
	if m.footprint > m.maxFootprint {
		m.maxFootprint = m.footprint
	}
	s.mapped[p] = mmsize
	s.stats.DirectMaps++
	if logAlloc {
		s.logger().Debug("direct map", "chunk", hexAddr(uintptr(p)), "size", mmsize)
	}
	return p.mem()
}

// mmapResize resizes a direct-mapped chunk for a request of nb bytes. It
// returns 0 when the chunk should instead be copied into the heap.
func (s *Space) mmapResize(oldp chunk, nb uintptr) chunk {
	m := s.m
	if format.IsSmall(nb) {
		return 0
	}
	oldsize := oldp.size()
	if oldsize >= nb+wordSize && oldsize-nb <= mparams.granularity.Load()<<1 {
		return oldp
	}
	offset := oldp.prevFoot() &^ mappedBit
	oldmmsize := oldsize + offset + format.MappedFootPad
	newmmsize := mappedSize(nb)
	if newmmsize <= nb {
		return 0
	}
	if newmmsize > oldmmsize {
		if fp := m.footprint + (newmmsize - oldmmsize); fp <= m.footprint || fp > m.maxAllowed {
			return 0
		}
	}
	cp, err := sysmem.Remap(uintptr(oldp)-offset, oldmmsize, newmmsize, true)
	if err != nil {
		return 0
	}
	newp := chunk(cp + offset)
	psize := newmmsize - offset - format.MappedFootPad
	newp.setHead(psize | cinuseBit)
	s.markInuseFoot(newp, psize)
	newp.plus(psize).setHead(fencepostHead)
	newp.plus(psize + wordSize).setHead(0)

	if cp < m.leastAddr {
		m.leastAddr = cp
	}
	m.footprint = m.footprint - oldmmsize + newmmsize
	if m.footprint > m.maxFootprint {
		m.maxFootprint = m.footprint
	}
	delete(s.mapped, oldp)
	s.mapped[newp] = newmmsize
	s.stats.DirectResizes++
	return newp
}

// unmapChunk releases direct-mapped chunk p.
func (s *Space) unmapChunk(p chunk) {
	m := s.m
	prevsize := p.prevFoot() &^ mappedBit
	total := p.size() + prevsize + format.MappedFootPad
	delete(s.mapped, p)
	if err := sysmem.Unmap(uintptr(p)-prevsize, total); err == nil {
		m.footprint -= total
		s.stats.DirectUnmaps++
	}
}

// moveMapped re-keys a direct-mapped chunk whose header moved within its
// mapping.
func (s *Space) moveMapped(from, to chunk) {
	if size, ok := s.mapped[from]; ok {
		delete(s.mapped, from)
		s.mapped[to] = size
	}
}
