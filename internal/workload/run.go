package workload

import (
	"fmt"
	"time"
	"unsafe"
)

type slot struct {
	p    unsafe.Pointer
	n    uintptr
	seed byte
}

// Runner replays scripts against an allocator. Blocks still live after Run
// stay allocated until Release.
type Runner struct {
	a     Allocator
	slots []slot
	live  uintptr
}

// NewRunner returns a runner with room for slots live blocks.
func NewRunner(a Allocator, slots int) *Runner {
	return &Runner{a: a, slots: make([]slot, slots)}
}

// Run executes ops, filling every block with a pattern and checking the
// pattern before each free and after each realloc. It stops at the first
// clobbered block.
func (r *Runner) Run(ops []Op) (res Result, err error) {
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	for i, op := range ops {
		if op.Slot < 0 || op.Slot >= len(r.slots) {
			return res, fmt.Errorf("%w: op %d slot %d out of range", ErrBadConfig, i, op.Slot)
		}
		s := &r.slots[op.Slot]
		switch op.Kind {
		case OpAlloc:
			if s.p != nil {
				r.release(s)
			}
			res.Allocs++
			p := r.a.Malloc(op.Size)
			if p == nil {
				res.Failures++
				continue
			}
			*s = slot{p: p, n: op.Size, seed: byte(i)}
			fill(s)
			r.live += op.Size
		case OpFree:
			if s.p == nil {
				continue
			}
			res.Frees++
			if err := check(s); err != nil {
				return res, fmt.Errorf("op %d: %w", i, err)
			}
			r.release(s)
		case OpRealloc:
			if s.p == nil {
				continue
			}
			res.Reallocs++
			p := r.a.Realloc(s.p, op.Size)
			if p == nil {
				res.Failures++
				continue
			}
			kept := min(s.n, op.Size)
			r.live = r.live - s.n + op.Size
			s.p, s.n = p, kept
			if err := check(s); err != nil {
				return res, fmt.Errorf("op %d: %w", i, err)
			}
			s.n = op.Size
			fill(s)
		}
		res.PeakLive = max(res.PeakLive, r.live)
	}
	res.LiveBytes = r.live
	return res, nil
}

// Verify checks the contents of every live block.
func (r *Runner) Verify() error {
	for i := range r.slots {
		if s := &r.slots[i]; s.p != nil {
			if err := check(s); err != nil {
				return fmt.Errorf("slot %d: %w", i, err)
			}
		}
	}
	return nil
}

// Release frees every live block.
func (r *Runner) Release() {
	for i := range r.slots {
		if s := &r.slots[i]; s.p != nil {
			r.release(s)
		}
	}
}

// Live returns the pointers of the live blocks.
func (r *Runner) Live() []unsafe.Pointer {
	var out []unsafe.Pointer
	for _, s := range r.slots {
		if s.p != nil {
			out = append(out, s.p)
		}
	}
	return out
}

func (r *Runner) release(s *slot) {
	r.a.Free(s.p)
	r.live -= s.n
	*s = slot{}
}

// Run generates the script for cfg, replays it, verifies the survivors and
// releases them.
func Run(a Allocator, cfg Config) (Result, error) {
	ops, err := Generate(cfg)
	if err != nil {
		return Result{}, err
	}
	r := NewRunner(a, cfg.Slots)
	defer r.Release()
	res, err := r.Run(ops)
	if err != nil {
		return res, err
	}
	return res, r.Verify()
}

func view(s *slot) []byte {
	return unsafe.Slice((*byte)(s.p), s.n)
}

func fill(s *slot) {
	b := view(s)
	for i := range b {
		b[i] = s.seed + byte(i*7)
	}
}

func check(s *slot) error {
	for i, c := range view(s) {
		if want := s.seed + byte(i*7); c != want {
			return fmt.Errorf("%w: %p byte %d is %#x, want %#x", ErrClobbered, s.p, i, c, want)
		}
	}
	return nil
}
