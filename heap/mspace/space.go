package mspace

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// Space is an isolated heap. Its bookkeeping lives off the Go heap; the
// Space value itself only carries the lock, the configuration and a few
// Go-side indexes.
type Space struct {
	mu  sync.Mutex
	m   *state // nil once destroyed
	cfg Config

	global bool

	// home is the region holding the state of a space created by New. It
	// is normally the first segment; after a reset it may no longer be.
	homeBase, homeSize uintptr

	// extern keeps a caller buffer reachable for NewFromBuffer spaces.
	extern []byte

	// mapped indexes directly mapped chunks by header address.
	mapped map[chunk]uintptr

	stats Stats

	// Test hook: called at the start of every sysAlloc (nil in production).
	onSysAlloc func(nb uintptr)
}

// registry maps state addresses of footer-tagged spaces to their Space so a
// chunk's tag can be traced back to its owner.
var (
	registry     sync.Map
	footerSpaces atomic.Int32
)

func newSpace(cfg Config) *Space {
	return &Space{cfg: cfg, mapped: make(map[chunk]uintptr)}
}

// logger returns the configured logger, or the process logger as it is
// now so a later logger.Init reaches spaces that already exist.
func (s *Space) logger() *slog.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return logger.L
}

func (s *Space) register() {
	if !s.m.footers() {
		return
	}
	registry.Store(s.m.addr(), s)
	footerSpaces.Add(1)
}

func (s *Space) unregister() {
	if !s.m.footers() {
		return
	}
	registry.Delete(s.m.addr())
	footerSpaces.Add(-1)
}

// tagOwner returns the footer-tagged space owning in-use chunk c, or nil.
func tagOwner(c chunk) *Space {
	if footerSpaces.Load() == 0 {
		return nil
	}
	tag := c.plus(c.size()).prevFoot() ^ ensureParams().magic
	if v, ok := registry.Load(tag); ok {
		return v.(*Space)
	}
	return nil
}

// SpaceOf returns the space that allocated p, provided that space was
// created with Config.Footers. It returns nil otherwise. p must be a live
// allocation.
func SpaceOf(p unsafe.Pointer) *Space {
	if p == nil {
		return nil
	}
	c := chunkOf(memOf(p))
	if !c.cinuse() {
		return nil
	}
	return tagOwner(c)
}

func (cfg Config) flags() uint32 {
	var f uint32
	if !cfg.NoMmap {
		f |= flagUseMmap
	}
	return f
}

func maxAllowed(cfg Config) uintptr {
	if cfg.MaxFootprint == 0 {
		return ^uintptr(0)
	}
	return cfg.MaxFootprint
}

// stateChunkSize is the size of the chunk holding a user space's state.
func stateChunkSize(overhead uintptr) uintptr {
	return format.PadRequest(stateSize, overhead)
}

func overheadFor(cfg Config) uintptr {
	if cfg.Footers {
		return format.FooterOverhead
	}
	return format.Overhead
}

// New creates a space backed by its own mapping of at least capacity bytes.
// A zero capacity starts with one granularity unit. The space grows beyond
// its initial capacity as needed, subject to Config.MaxFootprint.
func New(capacity uintptr, cfg Config) (*Space, error) {
	p := ensureParams()
	ov := overheadFor(cfg)
	msize := stateChunkSize(ov)
	tf := topFootSize(ov)
	if capacity >= -(msize + tf + p.pageSize) {
		return nil, fmt.Errorf("mspace: new %d bytes: %w", capacity, ErrCapacity)
	}
	rs := capacity + tf + msize
	if capacity == 0 {
		rs = p.granularity.Load()
	}
	tsize := granularityAlign(rs)
	if cfg.MaxFootprint != 0 && tsize > cfg.MaxFootprint {
		return nil, fmt.Errorf("mspace: new %d bytes above max footprint %d: %w",
			tsize, cfg.MaxFootprint, ErrCapacity)
	}
	tbase, err := sysmem.Map(tsize)
	if err != nil {
		return nil, fmt.Errorf("mspace: new: %w: %w", ErrOutOfMemory, err)
	}

	s := newSpace(cfg)
	s.initUserState(tbase, tsize)
	s.m.seg.flags = segMapped
	s.homeBase, s.homeSize = tbase, tsize
	s.register()
	s.logger().Debug("space created", "base", hexAddr(tbase), "size", tsize, "footers", cfg.Footers)
	return s, nil
}

// NewFromBuffer creates a space managing mem. Once mem is used up the space
// grows with fresh mappings like any other unless Config.MaxFootprint stops
// it; mem itself is never released. mem must stay reachable and unused by
// anything else until the space is destroyed.
func NewFromBuffer(mem []byte, cfg Config) (*Space, error) {
	p := ensureParams()
	ov := overheadFor(cfg)
	msize := stateChunkSize(ov)
	tf := topFootSize(ov)
	capacity := uintptr(len(mem))
	if capacity <= msize+tf+minChunkSize || capacity >= -(msize+tf+p.pageSize) {
		return nil, fmt.Errorf("mspace: buffer of %d bytes: %w", capacity, ErrCapacity)
	}
	s := newSpace(cfg)
	s.extern = mem
	s.initUserState(uintptr(unsafe.Pointer(&mem[0])), capacity)
	s.m.seg.flags = segExtern
	s.register()
	s.logger().Debug("space created from buffer", "base", hexAddr(s.m.seg.base), "size", capacity)
	return s, nil
}

// initUserState writes the state into the first chunk of [tbase, tbase+tsize)
// and makes the rest of the region the top chunk.
func (s *Space) initUserState(tbase, tsize uintptr) {
	ov := overheadFor(s.cfg)
	msize := stateChunkSize(ov)
	msp := alignAsChunk(tbase)
	buf.Zero(msp.mem(), msize)
	msp.setHead(msize | pinuseBit | cinuseBit)

	m := (*state)(buf.Pointer(msp.mem()))
	m.configure(s.cfg.Footers)
	m.mflags |= s.cfg.flags()
	m.seg.base = tbase
	m.seg.size = tsize
	m.leastAddr = tbase
	m.footprint = tsize
	m.maxFootprint = tsize
	m.maxAllowed = maxAllowed(s.cfg)
	m.magic = ensureParams().magic
	s.m = m
	s.markInuseFoot(msp, msize)

	s.initBins()
	mn := msp.next()
	s.initTop(mn, tbase+tsize-uintptr(mn)-m.topFoot)
}

// Destroy releases every segment and direct mapping of the space and
// returns the number of bytes given back to the system. Buffers passed to
// NewFromBuffer are not released. The space must not be used afterwards.
func (s *Space) Destroy() (freed uintptr) {
	s.lock()
	defer s.unlock()
	if s.m == nil {
		return 0
	}
	if s.global {
		s.usageErrorLocked("destroy", 0, ErrDefaultSpace)
		return 0
	}

	m := s.m
	s.unregister()
	homeReleased := false
	for c, size := range s.mapped {
		base := uintptr(c) - (c.prevFoot() &^ mappedBit)
		if sysmem.Unmap(base, size) == nil {
			freed += size
		}
	}
	clear(s.mapped)

	sp := &m.seg
	for sp != nil {
		base, size, flags := sp.base, sp.size, sp.flags
		sp = sp.nextSeg()
		if flags&segMapped == 0 || flags&segExtern != 0 || size == 0 {
			continue
		}
		if base <= s.homeBase && s.homeBase < base+size {
			homeReleased = true
		}
		if sysmem.Unmap(base, size) == nil {
			freed += size
		}
	}
	if !homeReleased && s.homeSize != 0 && sysmem.Unmap(s.homeBase, s.homeSize) == nil {
		freed += s.homeSize
	}
	s.m = nil
	s.extern = nil
	s.logger().Debug("space destroyed", "freed", freed)
	return freed
}

func (s *Space) lock() {
	if s.cfg.Locked {
		s.mu.Lock()
	}
}

func (s *Space) unlock() {
	if s.cfg.Locked {
		s.mu.Unlock()
	}
}

// enter takes the lock for a public operation. It returns false, with the
// lock released, when the space cannot be used.
func (s *Space) enter(op string) bool {
	s.lock()
	if s.m == nil {
		s.unlock()
		s.usageError(op, 0, ErrDestroyed)
		return false
	}
	if s.m.magic != ensureParams().magic {
		s.unlock()
		s.usageError(op, s.m.addr(), ErrCorrupted)
		return false
	}
	return true
}

// exit is deferred by every operation that entered. It turns integrity
// violations raised below into the configured policy and releases the lock.
func (s *Space) exit(op string) {
	if r := recover(); r != nil {
		v, ok := r.(*violation)
		if !ok {
			s.unlock()
			panic(r)
		}
		s.handleViolation(op, v)
	} else if debugChecks {
		s.debugVerify(op)
	}
	s.unlock()
}

// corrupt aborts the current operation with an integrity violation.
func (s *Space) corrupt(addr uintptr, what string) {
	panic(&violation{addr: addr, what: what})
}

func (s *Space) handleViolation(op string, v *violation) {
	s.stats.Corruptions++
	e := &Error{Op: op, Addr: v.addr, Err: fmt.Errorf("%s: %w", v.what, ErrCorrupted)}
	s.logger().Error("heap corruption detected", "op", op, "addr", hexAddr(v.addr), "what", v.what)
	s.report(EventCorruption, e)
	if s.cfg.Policy == FailFast {
		s.unlock()
		panic(e)
	}
	s.resetOnError()
}

// usageError reports a bad argument from outside the lock.
func (s *Space) usageError(op string, addr uintptr, err error) {
	e := s.newUsage(op, addr, err)
	if s.cfg.Policy == FailFast {
		panic(e)
	}
}

// usageErrorLocked reports a bad argument while the lock is held and an
// exit is deferred; the panic unwinds through exit.
func (s *Space) usageErrorLocked(op string, addr uintptr, err error) {
	e := s.newUsage(op, addr, err)
	if s.cfg.Policy == FailFast {
		panic(e)
	}
}

func (s *Space) newUsage(op string, addr uintptr, err error) *Error {
	s.stats.UsageErrors++
	e := &Error{Op: op, Addr: addr, Err: err}
	s.logger().Warn("heap usage error", "op", op, "addr", hexAddr(addr), "error", err)
	s.report(EventUsage, e)
	return e
}

func (s *Space) outOfMemory(op string, n uintptr) {
	s.stats.OutOfMemory++
	if logAlloc {
		s.logger().Debug("allocation failed", "op", op, "bytes", n)
	}
	s.report(EventOutOfMemory, &Error{Op: op, Err: ErrOutOfMemory})
}

func (s *Space) report(kind EventKind, e *Error) {
	if s.cfg.Hook != nil {
		s.cfg.Hook(Event{Kind: kind, Err: e})
	}
}

// markInuseFoot writes the arena tag after in-use chunk p when footers are
// enabled.
func (s *Space) markInuseFoot(p chunk, size uintptr) {
	if s.m.footers() {
		p.plus(size).setPrevFoot(s.m.addr() ^ mparams.magic)
	}
}

func (s *Space) setInuse(p chunk, size uintptr) {
	p.setHead(p.head()&pinuseBit | size | cinuseBit)
	n := p.plus(size)
	n.setHead(n.head() | pinuseBit)
	s.markInuseFoot(p, size)
}

func (s *Space) setInuseAndPinuse(p chunk, size uintptr) {
	p.setHead(size | pinuseBit | cinuseBit)
	n := p.plus(size)
	n.setHead(n.head() | pinuseBit)
	s.markInuseFoot(p, size)
}

func (s *Space) setSizeAndPinuseOfInuse(p chunk, size uintptr) {
	p.setHead(size | pinuseBit | cinuseBit)
	s.markInuseFoot(p, size)
}

// owns reports whether p is a chunk inside one of the space's segments or
// one of its direct mappings.
func (s *Space) owns(p chunk) bool {
	if _, ok := s.mapped[p]; ok {
		return true
	}
	sp := s.m.segmentHolding(uintptr(p))
	return sp != nil && uintptr(p)+minChunkSize <= sp.end()
}

// checkInuse validates a pointer handed back by the caller.
func (s *Space) checkInuse(p chunk) error {
	m := s.m
	if !format.IsAligned(p.mem()) {
		return ErrInvalidPointer
	}
	if !m.okAddress(uintptr(p)) {
		return ErrForeignPointer
	}
	if m.footers() {
		if !p.cinuse() {
			return ErrInvalidPointer
		}
		if p.plus(p.size()).prevFoot()^mparams.magic != m.addr() {
			return ErrForeignPointer
		}
	} else if !s.owns(p) {
		return ErrForeignPointer
	}
	if !p.cinuse() {
		return ErrInvalidPointer
	}
	if n := p.next(); n <= p || !n.pinuse() {
		return ErrInvalidPointer
	}
	return nil
}
