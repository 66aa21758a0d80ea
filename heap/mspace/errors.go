package mspace

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory indicates the backing store could not supply enough memory
	// or the request exceeded the representable size.
	ErrOutOfMemory = errors.New("mspace: out of memory")

	// ErrInvalidPointer indicates a pointer that is not a live allocation:
	// misaligned, already freed, or outside any plausible chunk.
	ErrInvalidPointer = errors.New("mspace: invalid pointer")

	// ErrForeignPointer indicates a pointer that does not belong to the space
	// it was handed to.
	ErrForeignPointer = errors.New("mspace: pointer not owned by this space")

	// ErrCorrupted indicates a broken heap invariant: bad links, bad sizes, or
	// inconsistent in-use bits.
	ErrCorrupted = errors.New("mspace: heap corrupted")

	// ErrInvalidParam indicates a tuning value or alignment that was rejected.
	ErrInvalidParam = errors.New("mspace: invalid parameter")

	// ErrCapacity indicates a capacity too small or too large for a space.
	ErrCapacity = errors.New("mspace: capacity out of range")

	// ErrDestroyed indicates use of a space after Destroy.
	ErrDestroyed = errors.New("mspace: space destroyed")

	// ErrDefaultSpace indicates an operation that is not allowed on the
	// process default space.
	ErrDefaultSpace = errors.New("mspace: not allowed on the default space")
)

// Error describes a failed or rejected heap operation.
type Error struct {
	Op   string  // operation name, e.g. "free"
	Addr uintptr // offending address, if any
	Err  error   // one of the sentinel errors above
}

func (e *Error) Error() string {
	if e.Addr == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %#x: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// EventKind classifies a diagnostic event.
type EventKind int

const (
	// EventOutOfMemory is reported when an allocation returns nil.
	EventOutOfMemory EventKind = iota + 1
	// EventUsage is reported for invalid pointers handed to free, realloc
	// or merge.
	EventUsage
	// EventCorruption is reported when a heap invariant is found broken.
	EventCorruption
)

func (k EventKind) String() string {
	switch k {
	case EventOutOfMemory:
		return "out-of-memory"
	case EventUsage:
		return "usage"
	case EventCorruption:
		return "corruption"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is passed to Config.Hook before the space applies its Policy.
type Event struct {
	Kind EventKind
	Err  *Error
}

// violation is raised with panic when a structural check fails deep inside
// an operation. Public entry points recover it and apply the space's Policy.
type violation struct {
	addr uintptr
	what string
}
