package mspace

import (
	"errors"
	"fmt"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// Verify audits the whole space: every chunk of every segment, the small
// and tree bins against their bitmaps, the designated victim, top, the
// direct mappings, and the footprint accounting. It returns nil when every
// invariant holds, or an error wrapping ErrCorrupted describing the first
// violation found. Verify never changes the space.
func (s *Space) Verify() error {
	s.lock()
	defer s.unlock()
	if s.m == nil {
		return ErrDestroyed
	}
	return s.verify()
}

type checkError struct {
	addr uintptr
	msg  string
}

func (e *checkError) Error() string {
	return fmt.Sprintf("chunk %#x: %s", e.addr, e.msg)
}

func (e *checkError) Unwrap() error { return ErrCorrupted }

func bad(addr uintptr, format string, args ...any) error {
	return &checkError{addr: addr, msg: fmt.Sprintf(format, args...)}
}

func (s *Space) verify() error {
	m := s.m
	if !m.isInitialized() {
		if m.smallmap != 0 || m.treemap != 0 || m.dvsize != 0 {
			return bad(0, "uninitialized space has binned chunks")
		}
		return nil
	}
	if err := s.verifySmallBins(); err != nil {
		return err
	}
	if err := s.verifyTreeBins(); err != nil {
		return err
	}
	if err := s.verifyTop(); err != nil {
		return err
	}
	if m.dvsize != 0 {
		if m.dv.size() != m.dvsize || m.dv.cinuse() || !m.dv.pinuse() {
			return bad(uintptr(m.dv), "designated victim header does not match dvsize %d", m.dvsize)
		}
		if m.dvsize < minChunkSize {
			return bad(uintptr(m.dv), "designated victim below minimum size")
		}
	} else if m.dv != 0 {
		return bad(uintptr(m.dv), "designated victim set with zero size")
	}

	var segTotal uintptr
	for sp := &m.seg; sp != nil; sp = sp.nextSeg() {
		segTotal += sp.size
		if err := s.verifySegment(sp); err != nil {
			return err
		}
	}

	var mapTotal uintptr
	for p, size := range s.mapped {
		if !p.isMapped() || !p.cinuse() {
			return bad(uintptr(p), "indexed direct mapping lost its mapped flags")
		}
		offset := p.prevFoot() &^ mappedBit
		if p.size()+offset+format.MappedFootPad != size {
			return bad(uintptr(p), "direct mapping size %d does not match header", size)
		}
		if p.next().head() != fencepostHead {
			return bad(uintptr(p), "direct mapping missing its fencepost")
		}
		if err := s.verifyTag(p); err != nil {
			return err
		}
		mapTotal += size
	}

	if m.maxFootprint < m.footprint {
		return bad(0, "max footprint %d below footprint %d", m.maxFootprint, m.footprint)
	}
	// Spaces reset after corruption keep counting the abandoned memory.
	if s.stats.Resets == 0 && segTotal+mapTotal != m.footprint {
		return bad(0, "footprint %d != segments %d + direct maps %d", m.footprint, segTotal, mapTotal)
	}
	return nil
}

func (s *Space) verifyTop() error {
	m := s.m
	p := m.top
	if !format.IsAligned(p.mem()) {
		return bad(uintptr(p), "top is misaligned")
	}
	if m.segmentHolding(uintptr(p)) != &m.seg {
		return bad(uintptr(p), "top is not in the newest segment")
	}
	if p.size() != m.topsize || m.topsize == 0 {
		return bad(uintptr(p), "top size %d != topsize %d", p.size(), m.topsize)
	}
	if !p.pinuse() {
		return bad(uintptr(p), "chunk before top is not in use")
	}
	if p.plus(m.topsize).head() != m.topFoot {
		return bad(uintptr(p), "top is not followed by its foot")
	}
	return nil
}

// verifySegment walks sp, checking chunk alignment, flag consistency and
// coalescing, and that every free chunk is findable.
func (s *Space) verifySegment(sp *segment) error {
	m := s.m
	p := alignAsChunk(sp.base)
	if !p.pinuse() {
		return bad(uintptr(p), "first chunk of segment %#x lacks PINUSE", sp.base)
	}
	prevFree := false
	for sp.holds(uintptr(p)) && p != m.top && p.head() != fencepostHead {
		size := p.size()
		switch {
		case !format.IsAligned(p.mem()):
			return bad(uintptr(p), "misaligned chunk")
		case size < minChunkSize || size&format.AlignMask != 0:
			return bad(uintptr(p), "bad chunk size %d", size)
		case uintptr(p)+size > sp.end():
			return bad(uintptr(p), "chunk of %d bytes runs past its segment", size)
		case p.pinuse() == prevFree:
			return bad(uintptr(p), "PINUSE disagrees with previous chunk")
		}
		if p.cinuse() {
			if err := s.verifyTag(p); err != nil {
				return err
			}
			prevFree = false
		} else {
			if prevFree {
				return bad(uintptr(p), "two adjacent free chunks")
			}
			if p.next().prevFoot() != size {
				return bad(uintptr(p), "free chunk footer %d != size %d", p.next().prevFoot(), size)
			}
			if p != m.dv && !s.binFind(p) {
				return bad(uintptr(p), "free chunk of %d bytes is in no bin", size)
			}
			if p == m.dv && s.binFind(p) {
				return bad(uintptr(p), "designated victim is also binned")
			}
			prevFree = true
		}
		p = p.next()
	}
	if p == m.top && prevFree {
		return bad(uintptr(p), "free chunk before top was not coalesced")
	}
	return nil
}

func (s *Space) verifyTag(p chunk) error {
	if !s.m.footers() {
		return nil
	}
	if p.plus(p.size()).prevFoot()^mparams.magic != s.m.addr() {
		return bad(uintptr(p), "in-use chunk carries a foreign tag")
	}
	return nil
}

func (s *Space) verifySmallBins() error {
	m := s.m
	for i := uint32(0); i < format.NumSmallBins; i++ {
		b := m.smallbinAt(i)
		marked := m.smallmapIsMarked(i)
		if !marked {
			continue
		}
		if b.fd() == b {
			return bad(uintptr(b), "small bin %d marked but empty", i)
		}
		want := format.SmallIndexToSize(i)
		n := 0
		for p := b.fd(); p != b; p = p.fd() {
			if n++; n > 1<<26 {
				return bad(uintptr(p), "small bin %d does not cycle", i)
			}
			if p.size() != want {
				return bad(uintptr(p), "small bin %d holds a %d byte chunk", i, p.size())
			}
			if p.cinuse() || p.next().pinuse() {
				return bad(uintptr(p), "binned chunk is marked in use")
			}
			if f, k := p.fd(), p.bk(); (f != b && !s.okLink(f)) || (k != b && !s.okLink(k)) {
				return bad(uintptr(p), "small bin %d links leave the heap", i)
			}
			if p.fd().bk() != p || p.bk().fd() != p {
				return bad(uintptr(p), "small bin %d links are not symmetric", i)
			}
		}
	}
	return nil
}

func (s *Space) verifyTreeBins() error {
	m := s.m
	for i := uint32(0); i < format.NumTreeBins; i++ {
		t := m.treebins[i]
		if m.treemapIsMarked(i) != (t != 0) {
			return bad(uintptr(t), "tree bin %d disagrees with treemap", i)
		}
		if t == 0 {
			continue
		}
		if t.parent() != chunk(m.treebinAt(i)) {
			return bad(uintptr(t), "tree bin %d root does not point at its slot", i)
		}
		if err := s.verifyTree(t, i); err != nil {
			return err
		}
	}
	return nil
}

// verifyTree checks the subtree at t: index fields, bin range, same-size
// chains, and that each child's sizes order under its parent.
func (s *Space) verifyTree(t chunk, idx uint32) error {
	size := t.size()
	lo := format.MinSizeForTreeIndex(idx)
	var hi uintptr
	if idx+1 < format.NumTreeBins {
		hi = format.MinSizeForTreeIndex(idx + 1)
	}
	if t.index() != idx {
		return bad(uintptr(t), "tree node index %d, want %d", t.index(), idx)
	}
	if size < lo || (hi != 0 && size >= hi) {
		return bad(uintptr(t), "tree node size %d outside bin %d", size, idx)
	}

	head := chunk(0)
	u := t
	for {
		if u.cinuse() || u.next().pinuse() {
			return bad(uintptr(u), "tree chunk marked in use")
		}
		if u.size() != size {
			return bad(uintptr(u), "tree chain mixes sizes")
		}
		if u.fd().bk() != u || u.bk().fd() != u {
			return bad(uintptr(u), "tree chain links are not symmetric")
		}
		if u.parent() != 0 {
			if head != 0 {
				return bad(uintptr(u), "tree chain has two nodes")
			}
			head = u
			for c := uintptr(0); c < 2; c++ {
				ch := u.child(c)
				if ch == 0 {
					continue
				}
				if ch.parent() != u {
					return bad(uintptr(ch), "tree child does not point at parent")
				}
				if ch.size() == size {
					return bad(uintptr(ch), "tree child duplicates parent size")
				}
				if err := s.verifyTree(ch, idx); err != nil {
					return err
				}
			}
			if c0, c1 := u.child(0), u.child(1); c0 != 0 && c1 != 0 && c0.size() >= c1.size() {
				return bad(uintptr(u), "tree children out of order")
			}
		}
		if u = u.fd(); u == t {
			break
		}
	}
	if head == 0 {
		return bad(uintptr(t), "tree chain has no node")
	}
	return nil
}

// binFind reports whether free chunk x is linked into the bin for its size.
func (s *Space) binFind(x chunk) bool {
	m := s.m
	size := x.size()
	if format.IsSmall(size) {
		i := format.SmallIndex(size)
		b := m.smallbinAt(i)
		if !m.smallmapIsMarked(i) {
			return false
		}
		for p := b.fd(); p != b; p = p.fd() {
			if p == x {
				return true
			}
		}
		return false
	}
	i := format.TreeIndex(size)
	if !m.treemapIsMarked(i) {
		return false
	}
	t := m.treebins[i]
	sizebits := size << format.TreeShift(i)
	for t != 0 && t.size() != size {
		t = chunk(buf.Load(t.childSlot((sizebits >> (wordBits - 1)) & 1)))
		sizebits <<= 1
	}
	if t == 0 {
		return false
	}
	u := t
	for {
		if u == x {
			return true
		}
		if u = u.fd(); u == t {
			return false
		}
	}
}

// debugVerify runs after each operation in heapdebug builds.
func (s *Space) debugVerify(op string) {
	if err := s.verify(); err != nil {
		var ce *checkError
		addr := uintptr(0)
		if errors.As(err, &ce) {
			addr = ce.addr
		}
		s.handleViolation(op, &violation{addr: addr, what: err.Error()})
	}
}
