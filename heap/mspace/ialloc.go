package mspace

import (
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

const ptrSize = unsafe.Sizeof(unsafe.Pointer(nil))

// ialloc carves n independently freeable chunks out of one allocation so
// they sit next to each other in memory. With sameSize every element uses
// sizes[0]. When out is nil the pointer array is carved from the same
// allocation, as a final chunk the caller may free separately.
func (s *Space) ialloc(n uintptr, sizes []uintptr, sameSize, zero bool, out []unsafe.Pointer) []unsafe.Pointer {
	m := s.m
	var arraySize uintptr
	if out == nil {
		if n == 0 {
			return []unsafe.Pointer{}
		}
		bytes, ok := buf.Mul(n, ptrSize)
		if !ok || bytes >= format.MaxRequest {
			return nil
		}
		arraySize = m.request2size(bytes)
	} else if n == 0 {
		return out[:0]
	}

	var elemSize, contents uintptr
	if sameSize {
		if sizes[0] >= format.MaxRequest {
			return nil
		}
		elemSize = m.request2size(sizes[0])
		var ok bool
		if contents, ok = buf.Mul(n, elemSize); !ok {
			return nil
		}
	} else {
		for i := uintptr(0); i < n; i++ {
			if sizes[i] >= format.MaxRequest {
				return nil
			}
			var ok bool
			if contents, ok = buf.Add(contents, m.request2size(sizes[i])); !ok {
				return nil
			}
		}
	}
	size, ok := buf.Add(contents, arraySize)
	if !ok {
		return nil
	}

	// The pieces must come from one heap chunk, never a private mapping.
	mmapOn := m.mflags&flagUseMmap != 0
	m.mflags &^= flagUseMmap
	mem := s.malloc(size - m.overhead)
	if mmapOn {
		m.mflags |= flagUseMmap
	}
	if mem == 0 {
		return nil
	}

	p := chunkOf(mem)
	remainder := p.size()
	if p.isMapped() {
		s.corrupt(uintptr(p), "batch allocation was direct mapped")
	}
	if zero {
		buf.Zero(mem, remainder-wordSize-arraySize)
	}

	marray := out
	if marray == nil {
		arrayChunk := p.plus(contents)
		marray = unsafe.Slice((*unsafe.Pointer)(ptrOf(arrayChunk.mem())), n)
		s.setSizeAndPinuseOfInuse(arrayChunk, remainder-contents)
		remainder = contents
	}

	for i := uintptr(0); ; i++ {
		marray[i] = ptrOf(p.mem())
		if i == n-1 {
			s.setSizeAndPinuseOfInuse(p, remainder)
			break
		}
		sz := elemSize
		if sz == 0 {
			sz = m.request2size(sizes[i])
		}
		remainder -= sz
		s.setSizeAndPinuseOfInuse(p, sz)
		p = p.plus(sz)
	}
	return marray[:n]
}
