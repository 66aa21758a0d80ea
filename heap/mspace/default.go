package mspace

import (
	"fmt"
	"sync"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

var (
	defaultSpace *Space
	defaultCfg   = DefaultConfig
	defaultMu    sync.Mutex
	defaultOnce  sync.Once
)

// ConfigureDefault sets the configuration of the default space. It must be
// called before the first call to Default.
func ConfigureDefault(cfg Config) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSpace != nil {
		return fmt.Errorf("mspace: configure default: %w", ErrDefaultSpace)
	}
	defaultCfg = cfg
	return nil
}

// Default returns the process-wide space, creating it on first use. Unlike
// spaces from New it first grows through the contiguous process break and
// cannot be destroyed.
func Default() *Space {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		defaultSpace = newDefaultSpace(defaultCfg)
	})
	return defaultSpace
}

func newDefaultSpace(cfg Config) *Space {
	ensureParams()
	s := newSpace(cfg)
	s.global = true

	// The state gets a page-rounded mapping of its own; segments are
	// obtained lazily by the first allocation.
	size := format.AlignUp(stateSize, PageSize())
	if addr, err := sysmem.Map(size); err == nil {
		s.m = (*state)(buf.Pointer(addr))
	} else {
		s.logger().Warn("default space state falls back to the Go heap", "error", err)
		s.m = new(state)
	}
	m := s.m
	m.configure(cfg.Footers)
	m.mflags |= cfg.flags()
	m.maxAllowed = maxAllowed(cfg)
	m.magic = mparams.magic
	s.initBins()
	s.register()
	return s
}
