package mspace

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// Param names a process-wide tunable. The values match the mallopt
// parameter numbers.
type Param int

const (
	// TrimThreshold is the top-chunk size above which free returns memory
	// to the system.
	TrimThreshold Param = -1
	// Granularity is the unit in which segments are obtained. It must be a
	// power of two no smaller than the page size.
	Granularity Param = -2
	// MmapThreshold is the request size from which the direct-map path is
	// used.
	MmapThreshold Param = -3
)

func (p Param) String() string {
	switch p {
	case TrimThreshold:
		return "trim-threshold"
	case Granularity:
		return "granularity"
	case MmapThreshold:
		return "mmap-threshold"
	default:
		return fmt.Sprintf("Param(%d)", int(p))
	}
}

// Environment variables overriding the defaults at first use.
const (
	EnvMmapThreshold = "HEAPKIT_MMAP_THRESHOLD"
	EnvTrimThreshold = "HEAPKIT_TRIM_THRESHOLD"
	EnvGranularity   = "HEAPKIT_GRANULARITY"
)

type mallocParams struct {
	magic         uintptr
	pageSize      uintptr
	granularity   atomic.Uintptr
	trimThreshold atomic.Uintptr
	mmapThreshold atomic.Uintptr
}

var (
	mparams     mallocParams
	mparamsOnce sync.Once

	// morecoreMu serializes every use of the process break.
	morecoreMu sync.Mutex
)

func ensureParams() *mallocParams {
	mparamsOnce.Do(initParams)
	return &mparams
}

func initParams() {
	p := &mparams
	p.pageSize = sysmem.PageSize()

	gran := format.DefaultGranularity
	if gran < p.pageSize {
		gran = p.pageSize
	}
	p.granularity.Store(gran)
	p.trimThreshold.Store(format.DefaultTrimThreshold)
	p.mmapThreshold.Store(format.DefaultMmapThreshold)

	for _, o := range []struct {
		env   string
		param Param
	}{
		{EnvMmapThreshold, MmapThreshold},
		{EnvTrimThreshold, TrimThreshold},
		{EnvGranularity, Granularity},
	} {
		raw := os.Getenv(o.env)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 0, 64)
		if err == nil {
			err = p.set(o.param, uintptr(v))
		}
		if err != nil {
			logger.Warn("ignoring malloc parameter override", "env", o.env, "value", raw, "error", err)
		}
	}

	p.magic = newMagic()
}

// newMagic returns a random tag with bit 3 set and the low bits clear, so it
// can never be mistaken for a size or flag combination.
func newMagic() uintptr {
	var b [8]byte
	var s uintptr
	if _, err := rand.Read(b[:]); err == nil {
		s = uintptr(binary.LittleEndian.Uint64(b[:]))
	} else {
		s = uintptr(time.Now().UnixNano()) ^ 0x55555555
	}
	s |= 8
	s &^= 7
	return s
}

func (p *mallocParams) set(param Param, v uintptr) error {
	switch param {
	case TrimThreshold:
		p.trimThreshold.Store(v)
	case Granularity:
		if v < p.pageSize || !format.IsPowerOfTwo(v) {
			return fmt.Errorf("granularity %d: %w", v, ErrInvalidParam)
		}
		p.granularity.Store(v)
	case MmapThreshold:
		p.mmapThreshold.Store(v)
	default:
		return fmt.Errorf("%v: %w", param, ErrInvalidParam)
	}
	return nil
}

// SetParam changes a process-wide tunable. It affects every space,
// including ones already created.
func SetParam(param Param, v uintptr) error {
	return ensureParams().set(param, v)
}

// GetParam returns the current value of a process-wide tunable, or 0 for an
// unknown parameter.
func GetParam(param Param) uintptr {
	p := ensureParams()
	switch param {
	case TrimThreshold:
		return p.trimThreshold.Load()
	case Granularity:
		return p.granularity.Load()
	case MmapThreshold:
		return p.mmapThreshold.Load()
	}
	return 0
}

// PageSize returns the system page size used for page-aligned requests.
func PageSize() uintptr { return ensureParams().pageSize }

func granularityAlign(n uintptr) uintptr {
	return format.AlignUp(n, mparams.granularity.Load())
}

func pageAlign(n uintptr) uintptr {
	return format.AlignUp(n, mparams.pageSize)
}
