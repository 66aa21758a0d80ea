// Package format describes the in-memory layout shared by every heap
// structure: word and alignment sizes, chunk header bits, bin geometry, and
// the default tuning values. Everything here is pure arithmetic so the
// allocator packages can build on it without touching memory.
package format

import "unsafe"

const (
	// WordSize is the size of a machine word, which is also the width of the
	// prev_foot and head fields at the start of every chunk.
	WordSize = unsafe.Sizeof(uintptr(0))

	// WordBits is WordSize in bits.
	WordBits = WordSize * 8

	// Alignment is the alignment of every user pointer and every chunk size.
	Alignment = uintptr(8)

	// AlignMask masks the low bits that must be zero in an aligned value.
	AlignMask = Alignment - 1

	// ChunkHeaderSize is the space from a chunk's start to its user payload
	// (prev_foot plus head).
	ChunkHeaderSize = 2 * WordSize

	// MinChunkSize is the smallest chunk the allocator can represent: room
	// for the header plus the fd/bk links it carries while free.
	MinChunkSize = (4*WordSize + AlignMask) &^ AlignMask

	// MaxRequest is the largest request that can be padded without wrapping.
	MaxRequest = ^uintptr(0) - 4*MinChunkSize + 1

	// HalfMaxSize is the first value that is negative when treated as signed.
	HalfMaxSize = ^uintptr(0)/2 + 1
)

// Chunk overhead, in bytes, added to each request.
const (
	// Overhead is the per-chunk overhead when only the head word is live.
	Overhead = WordSize

	// FooterOverhead is the per-chunk overhead when in-use chunks carry an
	// arena tag in the successor's prev_foot.
	FooterOverhead = 2 * WordSize

	// MappedOverhead is the per-chunk overhead of a directly mapped chunk.
	MappedOverhead = 2 * WordSize

	// MappedFootPad is the trailing space reserved after a directly mapped
	// chunk for its two fencepost words.
	MappedFootPad = 4 * WordSize
)

// Header bits.
const (
	// PInUse marks the physically previous chunk as in use.
	PInUse = uintptr(1)

	// CInUse marks the chunk itself as in use.
	CInUse = uintptr(2)

	// InUseBits covers both in-use flags.
	InUseBits = PInUse | CInUse

	// MappedBit is set in prev_foot of a directly mapped chunk.
	MappedBit = uintptr(1)

	// FencepostHead is the head word of the fake chunks that terminate a
	// segment: both flags set and a size of one word.
	FencepostHead = InUseBits | WordSize
)

// Bin geometry.
const (
	NumSmallBins  = 32
	NumTreeBins   = 32
	SmallBinShift = 3
	TreeBinShift  = 8

	// MinLargeSize is the smallest chunk size kept in a tree bin.
	MinLargeSize = uintptr(1) << TreeBinShift

	// MaxSmallSize is the largest chunk size kept in a small bin.
	MaxSmallSize = MinLargeSize - 1
)

// Defaults for the process-wide tunables.
const (
	DefaultGranularity   = uintptr(64 * 1024)
	DefaultTrimThreshold = uintptr(2 * 1024 * 1024)
	DefaultMmapThreshold = uintptr(256 * 1024)
)
