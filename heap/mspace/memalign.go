package mspace

import "github.com/joshuapare/heapkit/internal/format"

// memalign over-allocates by alignment plus a minimum chunk, then frees the
// misaligned leader and any splittable trailer. Direct-mapped chunks just
// move their header forward within the mapping.
func (s *Space) memalign(alignment, bytes uintptr) uintptr {
	m := s.m
	if alignment <= format.Alignment {
		return s.malloc(bytes)
	}
	if alignment < minChunkSize {
		alignment = minChunkSize
	}
	if alignment > format.HalfMaxSize {
		return 0
	}
	if !format.IsPowerOfTwo(alignment) {
		alignment = format.NextPowerOfTwo(alignment, format.Alignment<<1)
	}
	if bytes >= format.MaxRequest-alignment {
		return 0
	}

	nb := m.request2size(bytes)
	req := nb + alignment + minChunkSize - m.overhead
	mem := s.malloc(req)
	if mem == 0 {
		return 0
	}

	var leader, trailer uintptr
	p := chunkOf(mem)
	if mem%alignment != 0 {
		// Find an aligned spot far enough in to leave a free leader of at
		// least the minimum chunk size.
		br := chunkOf((mem + alignment - 1) &^ (alignment - 1))
		pos := br
		if uintptr(br)-uintptr(p) < minChunkSize {
			pos = br.plus(alignment)
		}
		newp := pos
		leadsize := uintptr(pos) - uintptr(p)
		newsize := p.size() - leadsize

		if p.isMapped() {
			newp.setPrevFoot(p.prevFoot() + leadsize)
			newp.setHead(newsize | cinuseBit)
			s.moveMapped(p, newp)
		} else {
			s.setInuse(newp, newsize)
			s.setInuse(p, leadsize)
			leader = p.mem()
		}
		p = newp
	}

	if !p.isMapped() {
		if size := p.size(); size > nb+minChunkSize {
			remSize := size - nb
			rem := p.plus(nb)
			s.setInuse(p, nb)
			s.setInuse(rem, remSize)
			trailer = rem.mem()
		}
	}

	if p.size() < nb || p.mem()%alignment != 0 {
		s.corrupt(uintptr(p), "aligned chunk misplaced")
	}
	if leader != 0 {
		s.free(leader)
	}
	if trailer != 0 {
		s.free(trailer)
	}
	return p.mem()
}
