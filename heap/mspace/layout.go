package mspace

import (
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

const (
	wordSize      = format.WordSize
	wordBits      = format.WordBits
	minChunkSize  = format.MinChunkSize
	pinuseBit     = format.PInUse
	cinuseBit     = format.CInUse
	inuseBits     = format.InUseBits
	mappedBit     = format.MappedBit
	fencepostHead = format.FencepostHead
)

// Word offsets within a chunk. fd and bk are valid only while the chunk is
// free; the tree fields only while it sits in a tree bin.
const (
	offPrevFoot = 0
	offHead     = wordSize
	offFd       = 2 * wordSize
	offBk       = 3 * wordSize
	offChild    = 4 * wordSize // two words
	offParent   = 6 * wordSize
	offIndex    = 7 * wordSize
)

// Bytes of a free chunk taken by links: fd/bk for small chunks, the whole
// tree node for large ones.
const (
	smallLinkSize = 4 * wordSize
	treeNodeSize  = 8 * wordSize
)

// chunk is the address of a chunk header.
type chunk uintptr

func chunkOf(mem uintptr) chunk { return chunk(mem - format.ChunkHeaderSize) }

func (p chunk) mem() uintptr { return uintptr(p) + format.ChunkHeaderSize }

func (p chunk) plus(n uintptr) chunk  { return p + chunk(n) }
func (p chunk) minus(n uintptr) chunk { return p - chunk(n) }

func (p chunk) prevFoot() uintptr     { return buf.Load(uintptr(p) + offPrevFoot) }
func (p chunk) setPrevFoot(v uintptr) { buf.Store(uintptr(p)+offPrevFoot, v) }
func (p chunk) head() uintptr         { return buf.Load(uintptr(p) + offHead) }
func (p chunk) setHead(v uintptr)     { buf.Store(uintptr(p)+offHead, v) }

func (p chunk) size() uintptr { return p.head() &^ inuseBits }
func (p chunk) cinuse() bool  { return p.head()&cinuseBit != 0 }
func (p chunk) pinuse() bool  { return p.head()&pinuseBit != 0 }
func (p chunk) clearPinuse()  { p.setHead(p.head() &^ pinuseBit) }

func (p chunk) next() chunk { return p.plus(p.size()) }
func (p chunk) prev() chunk { return p.minus(p.prevFoot()) }

// isMapped reports whether p was obtained through the direct-map path. Only
// such chunks combine a clear PINUSE with the mapped bit in prev_foot.
func (p chunk) isMapped() bool {
	return !p.pinuse() && p.prevFoot()&mappedBit != 0
}

// setFoot records s as the size of free chunk p in its successor.
func (p chunk) setFoot(s uintptr) { p.plus(s).setPrevFoot(s) }

func (p chunk) setSizeAndPinuseOfFree(s uintptr) {
	p.setHead(s | pinuseBit)
	p.setFoot(s)
}

func (p chunk) setFreeWithPinuse(s uintptr, n chunk) {
	n.clearPinuse()
	p.setSizeAndPinuseOfFree(s)
}

func (p chunk) fd() chunk      { return chunk(buf.Load(uintptr(p) + offFd)) }
func (p chunk) setFd(q chunk)  { buf.Store(uintptr(p)+offFd, uintptr(q)) }
func (p chunk) bk() chunk      { return chunk(buf.Load(uintptr(p) + offBk)) }
func (p chunk) setBk(q chunk)  { buf.Store(uintptr(p)+offBk, uintptr(q)) }
func (p chunk) parent() chunk  { return chunk(buf.Load(uintptr(p) + offParent)) }
func (p chunk) setParent(q chunk) {
	buf.Store(uintptr(p)+offParent, uintptr(q))
}

// childSlot returns the address of child pointer i (0 or 1).
func (p chunk) childSlot(i uintptr) uintptr { return uintptr(p) + offChild + i*wordSize }

func (p chunk) child(i uintptr) chunk       { return chunk(buf.Load(p.childSlot(i))) }
func (p chunk) setChild(i uintptr, q chunk) { buf.Store(p.childSlot(i), uintptr(q)) }

func (p chunk) index() uint32       { return uint32(buf.Load(uintptr(p) + offIndex)) }
func (p chunk) setIndex(i uint32)   { buf.Store(uintptr(p)+offIndex, uintptr(i)) }

func (p chunk) leftmostChild() chunk {
	if c := p.child(0); c != 0 {
		return c
	}
	return p.child(1)
}

// alignAsChunk returns the first chunk at or above a whose payload is
// aligned.
func alignAsChunk(a uintptr) chunk {
	return chunk(a + format.AlignOffset(a+format.ChunkHeaderSize))
}

func memOf(p unsafe.Pointer) uintptr { return uintptr(p) }

func ptrOf(mem uintptr) unsafe.Pointer {
	if mem == 0 {
		return nil
	}
	return buf.Pointer(mem)
}

// Bytes returns an n-byte view of the allocation at p. The view is valid
// until p is freed.
func Bytes(p unsafe.Pointer, n uintptr) []byte {
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// UsableSize returns the number of bytes usable at p, which may exceed the
// size originally requested. It returns 0 for nil or for a pointer whose
// chunk is not in use.
func UsableSize(p unsafe.Pointer) uintptr {
	if p == nil {
		return 0
	}
	c := chunkOf(memOf(p))
	if !c.cinuse() {
		return 0
	}
	if c.isMapped() {
		return c.size() - format.MappedOverhead
	}
	// With footers the arena tag occupies the successor's prev_foot; the
	// owning space is unknown here, so report the conservative size.
	if tagOwner(c) != nil {
		return c.size() - format.FooterOverhead
	}
	return c.size() - format.Overhead
}
