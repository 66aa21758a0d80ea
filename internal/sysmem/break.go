package sysmem

import (
	"fmt"
	"sync"
	"unsafe"
)

// Break is a contiguous, growable range of memory. A fixed span of address
// space is reserved without access rights; Sbrk commits or decommits pages
// at its upper end.
type Break struct {
	mu        sync.Mutex
	base      uintptr
	brk       uintptr // current break
	committed uintptr // end of the read/write pages, page aligned
	limit     uintptr // end of the reservation
}

// DefaultReserve is the address space reserved for the process break.
var DefaultReserve = defaultReserve()

func defaultReserve() uintptr {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return 64 << 30
	}
	return 512 << 20
}

var (
	defaultBreak     *Break
	defaultBreakErr  error
	defaultBreakOnce sync.Once
)

// DefaultBreak returns the process-wide break, reserving it on first use.
func DefaultBreak() (*Break, error) {
	defaultBreakOnce.Do(func() {
		defaultBreak, defaultBreakErr = NewBreak(DefaultReserve)
	})
	return defaultBreak, defaultBreakErr
}

// NewBreak reserves size bytes of address space for a new break.
func NewBreak(size uintptr) (*Break, error) {
	ps := PageSize()
	size = (size + ps - 1) &^ (ps - 1)
	if size == 0 {
		return nil, fmt.Errorf("sysmem: reserve 0 bytes: %w", ErrBadRange)
	}
	base, err := reserveRegion(size)
	if err != nil {
		return nil, fmt.Errorf("sysmem: reserve %d bytes: %w", size, err)
	}
	return &Break{base: base, brk: base, committed: base, limit: base + size}, nil
}

// Base returns the lowest address of the break.
func (b *Break) Base() uintptr { return b.base }

// Current returns the current break address.
func (b *Break) Current() uintptr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.brk
}

// Sbrk moves the break by incr bytes and returns the previous break. A zero
// increment just reports the current break. Shrinking returns the released
// pages to the operating system.
func (b *Break) Sbrk(incr int) (uintptr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.brk
	switch {
	case incr == 0:
		return old, nil
	case incr > 0:
		n := uintptr(incr)
		if n > b.limit-b.brk {
			return 0, ErrExhausted
		}
		end := b.brk + n
		if end > b.committed {
			ps := PageSize()
			want := (end + ps - 1) &^ (ps - 1)
			if want > b.limit {
				want = b.limit
			}
			if err := commitRegion(b.committed, want-b.committed); err != nil {
				return 0, fmt.Errorf("sysmem: commit: %w", err)
			}
			b.committed = want
		}
		b.brk = end
		return old, nil
	default:
		n := uintptr(-incr)
		if n > b.brk-b.base {
			return 0, ErrBadRange
		}
		end := b.brk - n
		ps := PageSize()
		keep := (end + ps - 1) &^ (ps - 1)
		if keep < b.committed {
			if err := decommitRegion(keep, b.committed-keep); err != nil {
				return 0, fmt.Errorf("sysmem: decommit: %w", err)
			}
			b.committed = keep
		}
		b.brk = end
		return old, nil
	}
}

// Release returns the whole reservation to the operating system. The break
// must not be used afterwards.
func (b *Break) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.base == 0 {
		return nil
	}
	err := releaseReservation(b.base, b.limit-b.base)
	b.base, b.brk, b.committed, b.limit = 0, 0, 0, 0
	return err
}
