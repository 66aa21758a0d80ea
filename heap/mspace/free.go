package mspace

// free releases the chunk at mem, coalescing it with free neighbours. The
// caller has validated it with checkInuse.
func (s *Space) free(mem uintptr) {
	m := s.m
	p := chunkOf(mem)
	psize := p.size()
	next := p.plus(psize)

	if !p.pinuse() {
		prevsize := p.prevFoot()
		if prevsize&mappedBit != 0 {
			s.unmapChunk(p)
			return
		}
		prev := p.minus(prevsize)
		if !m.okAddress(uintptr(prev)) {
			s.corrupt(uintptr(p), "previous chunk below heap")
		}
		psize += prevsize
		p = prev
		s.stats.CoalesceBackward++
		if p != m.dv {
			s.unlinkChunk(p, prevsize)
		} else if next.head()&inuseBits == inuseBits {
			m.dvsize = psize
			p.setFreeWithPinuse(psize, next)
			return
		}
	}

	if next <= p || !next.pinuse() {
		s.corrupt(uintptr(next), "successor does not record chunk in use")
	}

	if !next.cinuse() {
		switch next {
		case m.top:
			m.topsize += psize
			tsize := m.topsize
			m.top = p
			p.setHead(tsize | pinuseBit)
			if p == m.dv {
				m.dv = 0
				m.dvsize = 0
			}
			if tsize > m.trimCheck {
				s.sysTrim(0)
			}
			return
		case m.dv:
			m.dvsize += psize
			m.dv = p
			p.setSizeAndPinuseOfFree(m.dvsize)
			return
		}
		nsize := next.size()
		psize += nsize
		s.stats.CoalesceForward++
		s.unlinkChunk(next, nsize)
		p.setSizeAndPinuseOfFree(psize)
		if p == m.dv {
			m.dvsize = psize
			return
		}
	} else {
		p.setFreeWithPinuse(psize, next)
	}
	s.insertChunk(p, psize)
}
