package mspace

import "github.com/joshuapare/heapkit/internal/format"

// malloc is the core allocation path. It returns the payload address or 0.
//
//  1. Small request: an exactly fitting small bin, or the next one up
//     (the remainder is too small to split).
//  2. Small request larger than dv: the smallest non-empty larger small
//     bin, splitting off a new dv, else the smallest tree chunk.
//  3. Large request: the best fitting tree chunk, if it beats dv.
//  4. dv, splitting when the remainder can stand alone.
//  5. top.
//  6. The system.
func (s *Space) malloc(bytes uintptr) uintptr {
	m := s.m
	var nb uintptr
	switch {
	case bytes <= m.maxSmallReq:
		nb = m.request2size(bytes)
		idx := format.SmallIndex(nb)
		smallbits := m.smallmap >> idx

		if smallbits&0x3 != 0 {
			idx += ^smallbits & 1
			b := m.smallbinAt(idx)
			p := b.fd()
			if p.size() != format.SmallIndexToSize(idx) {
				s.corrupt(uintptr(p), "small bin entry has the wrong size")
			}
			s.unlinkFirstSmall(b, p, idx)
			s.setInuseAndPinuse(p, format.SmallIndexToSize(idx))
			s.stats.SmallBinHits++
			return p.mem()
		}

		if nb > m.dvsize {
			if smallbits != 0 {
				lb := (smallbits << idx) & leftBits(idx2bit(idx))
				i := bit2idx(leastBit(lb))
				b := m.smallbinAt(i)
				p := b.fd()
				if p.size() != format.SmallIndexToSize(i) {
					s.corrupt(uintptr(p), "small bin entry has the wrong size")
				}
				s.unlinkFirstSmall(b, p, i)
				rsize := format.SmallIndexToSize(i) - nb
				if rsize < minChunkSize {
					s.setInuseAndPinuse(p, format.SmallIndexToSize(i))
				} else {
					s.setSizeAndPinuseOfInuse(p, nb)
					r := p.plus(nb)
					r.setSizeAndPinuseOfFree(rsize)
					s.replaceDV(r, rsize)
				}
				s.stats.SmallBinHits++
				return p.mem()
			}
			if m.treemap != 0 {
				if mem := s.tmallocSmall(nb); mem != 0 {
					s.stats.TreeHits++
					return mem
				}
			}
		}

	case bytes >= format.MaxRequest:
		nb = ^uintptr(0) // cannot be satisfied; sysAlloc rejects it

	default:
		nb = format.PadRequest(bytes, m.overhead)
		if m.treemap != 0 {
			if mem := s.tmallocLarge(nb); mem != 0 {
				s.stats.TreeHits++
				return mem
			}
		}
	}

	if nb <= m.dvsize {
		rsize := m.dvsize - nb
		p := m.dv
		if rsize >= minChunkSize {
			r := p.plus(nb)
			m.dv = r
			m.dvsize = rsize
			r.setSizeAndPinuseOfFree(rsize)
			s.setSizeAndPinuseOfInuse(p, nb)
		} else {
			dvs := m.dvsize
			m.dvsize = 0
			m.dv = 0
			s.setInuseAndPinuse(p, dvs)
		}
		s.stats.DVHits++
		return p.mem()
	}

	if nb < m.topsize {
		m.topsize -= nb
		rsize := m.topsize
		p := m.top
		r := p.plus(nb)
		m.top = r
		r.setHead(rsize | pinuseBit)
		s.setSizeAndPinuseOfInuse(p, nb)
		s.stats.TopHits++
		return p.mem()
	}

	return s.sysAlloc(nb)
}

// tmallocLarge finds the smallest tree chunk of at least nb bytes, taking
// it only if it leaves less waste than dv would.
func (s *Space) tmallocLarge(nb uintptr) uintptr {
	m := s.m
	var v chunk
	rsize := -nb // unsigned: larger than any real remainder
	idx := format.TreeIndex(nb)

	if t := m.treebins[idx]; t != 0 {
		// Walk the path for nb, remembering the deepest right subtree
		// not taken.
		sizebits := nb << format.TreeShift(idx)
		var rst chunk
		for {
			if trem := t.size() - nb; trem < rsize {
				v = t
				if rsize = trem; rsize == 0 {
					break
				}
			}
			rt := t.child(1)
			t = t.child((sizebits >> (wordBits - 1)) & 1)
			if rt != 0 && rt != t {
				rst = rt
			}
			if t == 0 {
				t = rst
				break
			}
			sizebits <<= 1
		}
		return s.finishLarge(v, t, rsize, nb, idx)
	}
	return s.finishLarge(v, 0, rsize, nb, idx)
}

func (s *Space) finishLarge(v, t chunk, rsize, nb uintptr, idx uint32) uintptr {
	m := s.m
	if t == 0 && v == 0 {
		if lb := leftBits(idx2bit(idx)) & m.treemap; lb != 0 {
			t = m.treebins[bit2idx(leastBit(lb))]
		}
	}
	for t != 0 {
		if trem := t.size() - nb; trem < rsize {
			rsize = trem
			v = t
		}
		t = t.leftmostChild()
	}

	if v == 0 || rsize >= m.dvsize-nb {
		return 0
	}
	if !m.okAddress(uintptr(v)) {
		s.corrupt(uintptr(v), "tree chunk below heap")
	}
	r := v.plus(nb)
	if v.size() != rsize+nb || r <= v {
		s.corrupt(uintptr(v), "tree chunk size")
	}
	s.unlinkLarge(v)
	if rsize < minChunkSize {
		s.setInuseAndPinuse(v, rsize+nb)
	} else {
		s.setSizeAndPinuseOfInuse(v, nb)
		r.setSizeAndPinuseOfFree(rsize)
		s.insertChunk(r, rsize)
	}
	return v.mem()
}

// tmallocSmall serves a small request from the smallest tree chunk.
func (s *Space) tmallocSmall(nb uintptr) uintptr {
	m := s.m
	i := bit2idx(leastBit(m.treemap))
	v := m.treebins[i]
	rsize := v.size() - nb
	for t := v.leftmostChild(); t != 0; t = t.leftmostChild() {
		if trem := t.size() - nb; trem < rsize {
			rsize = trem
			v = t
		}
	}
	if !m.okAddress(uintptr(v)) {
		s.corrupt(uintptr(v), "tree chunk below heap")
	}
	r := v.plus(nb)
	if v.size() != rsize+nb || r <= v {
		s.corrupt(uintptr(v), "tree chunk size")
	}
	s.unlinkLarge(v)
	if rsize < minChunkSize {
		s.setInuseAndPinuse(v, rsize+nb)
	} else {
		s.setSizeAndPinuseOfInuse(v, nb)
		r.setSizeAndPinuseOfFree(rsize)
		s.replaceDV(r, rsize)
	}
	return v.mem()
}
