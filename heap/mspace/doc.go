// Package mspace implements a boundary-tagged, bin-indexed memory allocator
// over memory obtained directly from the operating system.
//
// # Overview
//
// A Space is an independent heap. Memory handed out by one space is never
// touched by another, and destroying a space releases everything it holds
// in one step. Default returns the process-wide space used by package heap.
//
// Every allocation lives in a chunk. A chunk starts with two words: the
// size of the previous chunk (valid only while that chunk is free) and the
// chunk's own size with two flag bits:
//
//	chunk -> +---------------------------+
//	         | prev_foot                 |
//	         +---------------------------+
//	         | size            |C|P|     |  C: this chunk in use
//	mem   -> +---------------------------+  P: previous chunk in use
//	         | user data ...             |
//
// Free chunks reuse the payload for list links. Chunks under 256 bytes sit
// in 32 exact-size circular lists ("small bins"); larger ones sit in 32
// bitwise tries keyed on size ("tree bins"). Two bitmaps record which bins
// are non-empty, so the best fitting bin is found with a couple of bit
// operations.
//
// # Allocation order
//
// Malloc tries, in order: an exact or next-size small bin, the designated
// victim (the remainder of the last split), the smallest fitting tree
// chunk, the top chunk at the end of the newest segment, and finally the
// system. Requests at or above the mapping threshold get a region of their
// own (the direct-map path) and are unmapped on Free.
//
// # Segments
//
// A space grows in segments. Memory comes either from a contiguous break
// shared by the process (only the default space uses it first) or from
// independent mappings. Adjacent segments are merged; segments that become
// entirely free are unmapped, and excess top space above the trim threshold
// is returned to the system.
//
// # Errors
//
// Allocation failure is reported by a nil pointer. Handing a space a
// pointer it did not allocate, or finding its bookkeeping corrupted, is
// reported through Config.Hook and then handled by Config.Policy: FailFast
// panics with an *Error, Continue leaks the pointer or resets the space.
//
// # Concurrency
//
// A space created with Config.Locked serializes every entry point with its
// own mutex. Unlocked spaces must be confined to a single goroutine.
//
// # Debugging
//
// Verify audits every chunk, bin and bitmap of a space. Building with
// -tags heapdebug runs Verify after every mutating operation.
package mspace
