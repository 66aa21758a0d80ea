package mspace

import (
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// Tree bins hold chunks of 256 bytes and up. Each bin is a bitwise trie
// keyed on the chunk size bits below the bin's range: at depth d the
// (d+1)th distinguishing bit chooses child 0 or 1. Each trie node is the
// only node of its size; further chunks of that size hang off it on a
// circular fd/bk chain with a zero parent. The parent of a root is the
// address of its bin slot.

func (s *Space) insertLarge(x chunk, size uintptr) {
	m := s.m
	i := format.TreeIndex(size)
	h := m.treebinAt(i)
	x.setIndex(i)
	x.setChild(0, 0)
	x.setChild(1, 0)
	if !m.treemapIsMarked(i) {
		m.markTreemap(i)
		buf.Store(h, uintptr(x))
		x.setParent(chunk(h))
		x.setFd(x)
		x.setBk(x)
		return
	}
	t := chunk(buf.Load(h))
	k := size << format.TreeShift(i)
	for {
		if t.size() != size {
			slot := t.childSlot((k >> (wordBits - 1)) & 1)
			k <<= 1
			if c := chunk(buf.Load(slot)); c != 0 {
				t = c
				continue
			}
			if !m.okAddress(slot) {
				s.corrupt(slot, "tree child slot")
			}
			buf.Store(slot, uintptr(x))
			x.setParent(t)
			x.setFd(x)
			x.setBk(x)
			return
		}
		f := t.fd()
		if !m.okAddress(uintptr(t)) || !m.okAddress(uintptr(f)) {
			s.corrupt(uintptr(t), "tree chain link")
		}
		t.setFd(x)
		f.setBk(x)
		x.setFd(f)
		x.setBk(t)
		x.setParent(0)
		return
	}
}

// unlinkLarge removes x from its tree bin. A chained node is replaced by its
// chain neighbour; otherwise by its rightmost descendant leaf.
func (s *Space) unlinkLarge(x chunk) {
	m := s.m
	xp := x.parent()
	var r chunk
	if x.bk() != x {
		f := x.fd()
		r = x.bk()
		if !s.okTreeLink(f) || !s.okTreeLink(r) {
			s.corrupt(uintptr(x), "tree chain link")
		}
		if f.bk() != x || r.fd() != x {
			s.corrupt(uintptr(x), "tree chain neighbours do not link back")
		}
		f.setBk(r)
		r.setFd(f)
	} else {
		rp := x.childSlot(1)
		if r = chunk(buf.Load(rp)); r == 0 {
			rp = x.childSlot(0)
			r = chunk(buf.Load(rp))
		}
		if r != 0 {
			for {
				cp := r.childSlot(1)
				if buf.Load(cp) == 0 {
					cp = r.childSlot(0)
					if buf.Load(cp) == 0 {
						break
					}
				}
				rp = cp
				r = chunk(buf.Load(cp))
			}
			if !m.okAddress(rp) {
				s.corrupt(rp, "tree replacement slot")
			}
			buf.Store(rp, 0)
		}
	}
	if xp == 0 {
		return
	}

	h := m.treebinAt(x.index())
	switch {
	case uintptr(x) == buf.Load(h):
		buf.Store(h, uintptr(r))
		if r == 0 {
			m.clearTreemap(x.index())
		}
	case m.okAddress(uintptr(xp)):
		if xp.child(0) == x {
			xp.setChild(0, r)
		} else {
			xp.setChild(1, r)
		}
	default:
		s.corrupt(uintptr(xp), "tree parent link")
	}
	if r == 0 {
		return
	}
	if !m.okAddress(uintptr(r)) {
		s.corrupt(uintptr(r), "tree replacement node")
	}
	r.setParent(xp)
	for i := uintptr(0); i < 2; i++ {
		c := x.child(i)
		if c == 0 {
			continue
		}
		if !m.okAddress(uintptr(c)) {
			s.corrupt(uintptr(c), "tree child link")
		}
		r.setChild(i, c)
		c.setParent(r)
	}
}

func (s *Space) okTreeLink(p chunk) bool {
	return p != 0 && s.m.okAddress(uintptr(p)) && format.IsAligned(p.mem())
}
