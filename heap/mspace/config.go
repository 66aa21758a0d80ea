package mspace

import "log/slog"

// Policy selects how a space reacts to usage errors and corruption.
type Policy int

const (
	// FailFast panics with an *Error. This is the default: continuing after
	// a bad free or a broken link risks silent memory corruption.
	FailFast Policy = iota

	// Continue ignores usage errors (the offending pointer is leaked) and
	// answers corruption by resetting the space to an empty state,
	// abandoning every outstanding allocation.
	Continue
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Continue:
		return "continue"
	default:
		return "unknown"
	}
}

// Config holds per-space settings.
type Config struct {
	// Locked guards every entry point with a mutex so the space can be
	// shared between goroutines.
	Locked bool

	// Footers stores a tag derived from the owning space in the word after
	// each in-use chunk. Tagged chunks can be traced back to their space
	// (see SpaceOf) at the cost of one extra word per chunk.
	Footers bool

	// NoMmap disables the direct-map path; large requests are carved from
	// segments like any other.
	NoMmap bool

	// Policy applies to usage errors and detected corruption.
	Policy Policy

	// Hook, if set, observes every diagnostic event before Policy runs.
	// It is called with the space's lock held and must not call back into
	// the space.
	Hook func(Event)

	// MaxFootprint caps the bytes the space may obtain from the system.
	// Zero means unlimited.
	MaxFootprint uintptr

	// Logger receives trace and error records. Nil uses the process logger.
	Logger *slog.Logger
}

// DefaultConfig is a locked, fail-fast space without footers.
var DefaultConfig = Config{Locked: true}
