package mspace

import "github.com/joshuapare/heapkit/internal/buf"

// realloc resizes the validated allocation at oldmem in place when it can:
// shrinking splits off and frees the tail, growing absorbs the top chunk,
// and direct-mapped chunks are remapped. Otherwise it allocates, copies and
// frees.
func (s *Space) realloc(oldmem, bytes uintptr) uintptr {
	m := s.m
	oldp := chunkOf(oldmem)
	oldsize := oldp.size()
	next := oldp.plus(oldsize)
	nb := m.request2size(bytes)

	var newp chunk
	var extra uintptr
	switch {
	case oldp.isMapped():
		newp = s.mmapResize(oldp, nb)
	case oldsize >= nb:
		newp = oldp
		if rsize := oldsize - nb; rsize >= minChunkSize {
			rem := newp.plus(nb)
			s.setInuse(newp, nb)
			s.setInuse(rem, rsize)
			extra = rem.mem()
		}
	case next == m.top && oldsize+m.topsize > nb:
		newsize := oldsize + m.topsize
		newtopsize := newsize - nb
		newtop := oldp.plus(nb)
		s.setInuse(oldp, nb)
		newtop.setHead(newtopsize | pinuseBit)
		m.top = newtop
		m.topsize = newtopsize
		newp = oldp
	}

	if newp != 0 {
		if extra != 0 {
			s.free(extra)
		}
		s.stats.ReallocInPlace++
		return newp.mem()
	}

	newmem := s.malloc(bytes)
	if newmem != 0 {
		oc := oldsize - m.overheadFor(oldp)
		buf.Copy(newmem, oldmem, min(oc, bytes))
		s.free(oldmem)
	}
	return newmem
}
