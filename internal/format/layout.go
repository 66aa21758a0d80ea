package format

import "math/bits"

// PadRequest converts a user request into a chunk size for a chunk with the
// given per-chunk overhead.
func PadRequest(req, overhead uintptr) uintptr {
	return (req + overhead + AlignMask) &^ AlignMask
}

// MinRequest is the largest request that still maps to MinChunkSize.
func MinRequest(overhead uintptr) uintptr {
	return MinChunkSize - overhead - 1
}

// MaxSmallRequest is the largest request served from small bins.
func MaxSmallRequest(overhead uintptr) uintptr {
	return MaxSmallSize - AlignMask - overhead
}

// RequestToSize pads req, never returning less than MinChunkSize.
func RequestToSize(req, overhead uintptr) uintptr {
	if req < MinRequest(overhead) {
		return MinChunkSize
	}
	return PadRequest(req, overhead)
}

// IsSmall reports whether a chunk of size s belongs in a small bin.
func IsSmall(s uintptr) bool {
	return s>>SmallBinShift < NumSmallBins
}

// SmallIndex returns the small bin holding chunks of size s.
func SmallIndex(s uintptr) uint32 {
	return uint32(s >> SmallBinShift)
}

// SmallIndexToSize is the chunk size held by small bin i.
func SmallIndexToSize(i uint32) uintptr {
	return uintptr(i) << SmallBinShift
}

// TreeIndex returns the tree bin for a chunk of size s. Each pair of bins
// splits one power of two in half:
//
//	bin 0: [256, 384)   bin 1: [384, 512)
//	bin 2: [512, 768)   bin 3: [768, 1024) ...
//
// Sizes of 2^24 and above land in the last bin.
func TreeIndex(s uintptr) uint32 {
	x := s >> TreeBinShift
	switch {
	case x == 0:
		return 0
	case x > 0xFFFF:
		return NumTreeBins - 1
	}
	k := uint32(bits.Len(uint(x))) - 1
	return k<<1 + uint32((s>>(uintptr(k)+TreeBinShift-1))&1)
}

// TreeShift is the left shift that moves the first size bit distinguishing
// entries of tree bin i into the word's top bit.
func TreeShift(i uint32) uintptr {
	if i == NumTreeBins-1 {
		return 0
	}
	return (WordBits - 1) - (uintptr(i>>1) + TreeBinShift - 2)
}

// MinSizeForTreeIndex is the smallest chunk size held by tree bin i.
func MinSizeForTreeIndex(i uint32) uintptr {
	shift := uintptr(i>>1) + TreeBinShift
	return uintptr(1)<<shift | uintptr(i&1)<<(shift-1)
}
