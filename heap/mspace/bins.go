package mspace

import "github.com/joshuapare/heapkit/internal/format"

// Small bins are circular doubly linked lists headed by a pseudo chunk in
// the state. A bin is empty exactly when its smallmap bit is clear; the
// header links of an empty bin are stale and never followed.

// okLink reports whether a chunk reached through a list link looks sane.
func (s *Space) okLink(p chunk) bool {
	return s.m.okAddress(uintptr(p)) &&
		(format.IsAligned(p.mem()) || p.head() == fencepostHead)
}

func (s *Space) insertSmall(p chunk, size uintptr) {
	m := s.m
	i := format.SmallIndex(size)
	b := m.smallbinAt(i)
	f := b
	if size < minChunkSize {
		s.corrupt(uintptr(p), "small chunk below minimum size")
	}
	if !m.smallmapIsMarked(i) {
		m.markSmallmap(i)
	} else if fd := b.fd(); m.okAddress(uintptr(fd)) {
		f = fd
	} else {
		s.corrupt(uintptr(fd), "small bin head link")
	}
	b.setFd(p)
	f.setBk(p)
	p.setFd(f)
	p.setBk(b)
}

func (s *Space) unlinkSmall(p chunk, size uintptr) {
	m := s.m
	f, b := p.fd(), p.bk()
	i := format.SmallIndex(size)
	bin := m.smallbinAt(i)
	if f != bin && !s.okLink(f) {
		s.corrupt(uintptr(p), "small chunk forward link")
	}
	if b != bin && !s.okLink(b) {
		s.corrupt(uintptr(p), "small chunk back link")
	}
	if f.bk() != p || b.fd() != p {
		s.corrupt(uintptr(p), "small chunk neighbours do not link back")
	}
	if p.size() != format.SmallIndexToSize(i) {
		s.corrupt(uintptr(p), "small chunk size does not match its bin")
	}
	if f == b {
		m.clearSmallmap(i)
		return
	}
	f.setBk(b)
	b.setFd(f)
}

// unlinkFirstSmall removes p, the first chunk of bin b (index i).
func (s *Space) unlinkFirstSmall(b, p chunk, i uint32) {
	m := s.m
	f := p.fd()
	if p == b || p == f {
		s.corrupt(uintptr(p), "small bin head points at itself")
	}
	if b == f {
		m.clearSmallmap(i)
		return
	}
	if !s.okLink(f) {
		s.corrupt(uintptr(p), "small chunk forward link")
	}
	b.setFd(f)
	f.setBk(b)
}

// replaceDV makes p the designated victim, binning the old one. The old
// victim is always small here.
func (s *Space) replaceDV(p chunk, size uintptr) {
	m := s.m
	if dvs := m.dvsize; dvs != 0 {
		if !format.IsSmall(dvs) {
			s.corrupt(uintptr(m.dv), "designated victim is not small")
		}
		s.insertSmall(m.dv, dvs)
	}
	m.dvsize = size
	m.dv = p
}

func (s *Space) insertChunk(p chunk, size uintptr) {
	if format.IsSmall(size) {
		s.insertSmall(p, size)
		return
	}
	s.insertLarge(p, size)
}

func (s *Space) unlinkChunk(p chunk, size uintptr) {
	if format.IsSmall(size) {
		s.unlinkSmall(p, size)
		return
	}
	s.unlinkLarge(p)
}
