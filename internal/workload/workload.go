// Package workload generates deterministic allocation scripts and replays
// them against an allocator, checking that every live block keeps its
// contents.
package workload

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
	"unsafe"
)

// Allocator is the subset of an allocator that scripts exercise.
// *mspace.Space implements it.
type Allocator interface {
	Malloc(n uintptr) unsafe.Pointer
	Free(p unsafe.Pointer)
	Realloc(p unsafe.Pointer, n uintptr) unsafe.Pointer
	UsableSize(p unsafe.Pointer) uintptr
}

// OpKind is the kind of a scripted operation.
type OpKind uint8

const (
	OpAlloc OpKind = iota
	OpFree
	OpRealloc
)

func (k OpKind) String() string {
	switch k {
	case OpAlloc:
		return "alloc"
	case OpFree:
		return "free"
	case OpRealloc:
		return "realloc"
	default:
		return fmt.Sprintf("OpKind(%d)", uint8(k))
	}
}

// Op is one step of a script. Slot names the live block it applies to.
type Op struct {
	Kind OpKind
	Slot int
	Size uintptr
}

// Profile selects the size distribution of generated requests.
type Profile int

const (
	// Uniform draws sizes uniformly between MinSize and MaxSize.
	Uniform Profile = iota
	// Realistic favors small requests: most under 256 bytes, a few
	// kilobytes, and the occasional request near MaxSize.
	Realistic
)

// Config describes a script.
type Config struct {
	Ops          int     // number of operations
	Slots        int     // live blocks tracked at once
	MinSize      uintptr // smallest request
	MaxSize      uintptr // largest request
	FreeRatio    float64 // probability a step frees an occupied slot
	ReallocRatio float64 // probability a step resizes an occupied slot
	Profile      Profile
	Seed         int64
}

// DefaultConfig is a mixed workload of small and medium blocks.
var DefaultConfig = Config{
	Ops:          10000,
	Slots:        512,
	MinSize:      1,
	MaxSize:      64 << 10,
	FreeRatio:    0.4,
	ReallocRatio: 0.1,
	Profile:      Realistic,
	Seed:         42,
}

var (
	// ErrBadConfig is returned for configurations that cannot be generated.
	ErrBadConfig = errors.New("workload: bad config")
	// ErrClobbered is returned when a live block lost its contents.
	ErrClobbered = errors.New("workload: block contents clobbered")
)

// Validate checks cfg.
func (cfg Config) Validate() error {
	switch {
	case cfg.Ops < 0:
		return fmt.Errorf("%w: negative op count %d", ErrBadConfig, cfg.Ops)
	case cfg.Slots <= 0:
		return fmt.Errorf("%w: need at least one slot", ErrBadConfig)
	case cfg.MinSize > cfg.MaxSize:
		return fmt.Errorf("%w: min size %d above max size %d", ErrBadConfig, cfg.MinSize, cfg.MaxSize)
	case cfg.FreeRatio < 0 || cfg.ReallocRatio < 0 || cfg.FreeRatio+cfg.ReallocRatio > 1:
		return fmt.Errorf("%w: ratios must be non-negative and sum to at most 1", ErrBadConfig)
	}
	return nil
}

// Generate builds the script for cfg. The same config always produces the
// same script. Frees and reallocs only target occupied slots; allocs only
// target empty ones.
func Generate(cfg Config) ([]Op, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	var occupied, empty []int
	for i := range cfg.Slots {
		empty = append(empty, i)
	}
	take := func(list *[]int) int {
		j := rng.Intn(len(*list))
		v := (*list)[j]
		(*list)[j] = (*list)[len(*list)-1]
		*list = (*list)[:len(*list)-1]
		return v
	}

	ops := make([]Op, 0, cfg.Ops)
	for len(ops) < cfg.Ops {
		r := rng.Float64()
		switch {
		case len(occupied) > 0 && (len(empty) == 0 || r < cfg.FreeRatio):
			slot := take(&occupied)
			empty = append(empty, slot)
			ops = append(ops, Op{Kind: OpFree, Slot: slot})
		case len(occupied) > 0 && r < cfg.FreeRatio+cfg.ReallocRatio:
			slot := occupied[rng.Intn(len(occupied))]
			ops = append(ops, Op{Kind: OpRealloc, Slot: slot, Size: cfg.size(rng)})
		default:
			slot := take(&empty)
			occupied = append(occupied, slot)
			ops = append(ops, Op{Kind: OpAlloc, Slot: slot, Size: cfg.size(rng)})
		}
	}
	return ops, nil
}

func (cfg Config) size(rng *rand.Rand) uintptr {
	span := cfg.MaxSize - cfg.MinSize + 1
	if cfg.Profile == Realistic {
		switch p := rng.Float64(); {
		case p < 0.90:
			span = min(span, 256)
		case p < 0.99:
			span = min(span, 4096)
		}
	}
	return cfg.MinSize + uintptr(rng.Int63n(int64(span)))
}

// Result summarizes a replay.
type Result struct {
	Allocs    int           `json:"allocs"`
	Frees     int           `json:"frees"`
	Reallocs  int           `json:"reallocs"`
	Failures  int           `json:"failures"`   // allocations that returned nil
	LiveBytes uintptr       `json:"live_bytes"` // requested bytes still live at the end
	PeakLive  uintptr       `json:"peak_live"`
	Elapsed   time.Duration `json:"elapsed"`
}
