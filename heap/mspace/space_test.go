package mspace

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsWithOneGranule(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)
	assert.Equal(t, GetParam(Granularity), s.Footprint())
	assert.Equal(t, s.Footprint(), s.MaxFootprint())
	assert.True(t, s.Locked())
	requireVerified(t, s)

	mi := s.Mallinfo()
	assert.Equal(t, uintptr(1), mi.Ordblks, "only top is free")
	assert.Equal(t, s.Footprint(), mi.Arena+mi.Hblkhd)
	assert.Equal(t, s.Footprint(), mi.Uordblks+mi.Fordblks)
}

func TestNewRoundsCapacityToGranularity(t *testing.T) {
	gran := GetParam(Granularity)
	s := newTestSpace(t, 3*gran, DefaultConfig)
	assert.Equal(t, 4*gran, s.Footprint(), "capacity plus bookkeeping spills into a fourth granule")
}

func TestNewRejectsHugeCapacity(t *testing.T) {
	_, err := New(^uintptr(0)-16, DefaultConfig)
	require.ErrorIs(t, err, ErrCapacity)
}

func TestDestroyReleasesEverything(t *testing.T) {
	s, err := New(0, DefaultConfig)
	require.NoError(t, err)

	small := s.Malloc(100)
	big := s.Malloc(1 << 20)
	require.NotNil(t, small)
	require.NotNil(t, big)
	fp := s.Footprint()

	assert.Equal(t, fp, s.Destroy())
	assert.Zero(t, s.Destroy(), "second destroy is a no-op")

	e := expectPanic(t, func() { s.Malloc(1) })
	assert.ErrorIs(t, e, ErrDestroyed)
}

func TestDestroyedSpaceUnderContinue(t *testing.T) {
	var rec recorder
	s, err := New(0, Config{Policy: Continue, Hook: rec.hook})
	require.NoError(t, err)
	s.Destroy()

	assert.Nil(t, s.Malloc(10))
	assert.Equal(t, 1, rec.count(EventUsage))
}

func TestNewFromBufferStaysInBuffer(t *testing.T) {
	mem := make([]byte, 256<<10)
	base := uintptr(unsafe.Pointer(&mem[0]))
	end := base + uintptr(len(mem))

	var rec recorder
	s, err := NewFromBuffer(mem, Config{NoMmap: true, MaxFootprint: uintptr(len(mem)), Hook: rec.hook})
	require.NoError(t, err)

	var ptrs []unsafe.Pointer
	for {
		p := s.Malloc(1000)
		if p == nil {
			break
		}
		a := uintptr(p)
		require.True(t, a >= base && a+1000 <= end, "allocation %#x outside buffer", a)
		ptrs = append(ptrs, p)
	}
	assert.Greater(t, len(ptrs), 200)
	assert.Equal(t, 1, rec.count(EventOutOfMemory))
	requireVerified(t, s)

	for _, p := range ptrs {
		s.Free(p)
	}
	requireVerified(t, s)
	assert.Equal(t, uintptr(1), s.Mallinfo().Ordblks, "everything coalesced into top")
	assert.Zero(t, s.Destroy(), "caller buffers are not released")
}

func TestNewFromBufferSharedAcrossGoroutines(t *testing.T) {
	mem := make([]byte, 1<<20)
	cfg := DefaultConfig
	cfg.NoMmap = true
	cfg.MaxFootprint = uintptr(len(mem))
	s, err := NewFromBuffer(mem, cfg)
	require.NoError(t, err)

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			type live struct {
				p unsafe.Pointer
				n uintptr
			}
			var held []live
			for i := 0; i < 500; i++ {
				if len(held) > 16 || (len(held) > 0 && rng.Intn(3) == 0) {
					j := rng.Intn(len(held))
					b := Bytes(held[j].p, held[j].n)
					for k := range b {
						if b[k] != byte(seed) {
							errs <- fmt.Errorf("worker %d: block %p clobbered at byte %d", seed, held[j].p, k)
							return
						}
					}
					s.Free(held[j].p)
					held = append(held[:j], held[j+1:]...)
					continue
				}
				n := uintptr(1 + rng.Intn(2048))
				p := s.Malloc(n)
				if p == nil {
					errs <- fmt.Errorf("worker %d: malloc(%d) failed", seed, n)
					return
				}
				b := Bytes(p, n)
				for k := range b {
					b[k] = byte(seed)
				}
				held = append(held, live{p, n})
			}
			for _, h := range held {
				s.Free(h.p)
			}
		}(int64(w + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	requireVerified(t, s)
	assert.Equal(t, uintptr(1), s.Mallinfo().Ordblks)
	s.Destroy()
}

func TestNewFromBufferTooSmall(t *testing.T) {
	_, err := NewFromBuffer(make([]byte, 64), DefaultConfig)
	require.ErrorIs(t, err, ErrCapacity)
}

func TestDefaultSpace(t *testing.T) {
	d := Default()
	require.Same(t, d, Default())

	p := d.Malloc(123)
	require.NotNil(t, p)
	fill(p, 123, 7)
	checkFill(t, p, 123, 7)
	d.Free(p)
	requireVerified(t, d)

	e := expectPanic(t, func() { d.Destroy() })
	assert.ErrorIs(t, e, ErrDefaultSpace)
	require.ErrorIs(t, ConfigureDefault(DefaultConfig), ErrDefaultSpace)
}

func TestArenaIsolation(t *testing.T) {
	a := newTestSpace(t, 0, DefaultConfig)
	b := newTestSpace(t, 0, DefaultConfig)

	pa := a.Malloc(200)
	pb := b.Malloc(200)
	fill(pa, 200, 1)
	fill(pb, 200, 2)

	e := expectPanic(t, func() { b.Free(pa) })
	assert.ErrorIs(t, e, ErrForeignPointer)
	e = expectPanic(t, func() { a.Realloc(pb, 10) })
	assert.ErrorIs(t, e, ErrForeignPointer)

	// Destroying one space leaves the other intact.
	a.Destroy()
	checkFill(t, pb, 200, 2)
	b.Free(pb)
	requireVerified(t, b)
}

func TestFootersTraceOwner(t *testing.T) {
	a := newTestSpace(t, 0, Config{Locked: true, Footers: true})
	b := newTestSpace(t, 0, Config{Locked: true, Footers: true})

	p := a.Malloc(64)
	q := b.Malloc(1 << 20) // direct mapped, tagged as well
	require.NotNil(t, p)
	require.NotNil(t, q)

	assert.Same(t, a, SpaceOf(p))
	assert.Same(t, b, SpaceOf(q))
	assert.Nil(t, SpaceOf(nil))

	e := expectPanic(t, func() { b.Free(p) })
	assert.ErrorIs(t, e, ErrForeignPointer)

	assert.Equal(t, uintptr(64), UsableSize(p), "footers cost a second word")
	assert.Equal(t, uintptr(64), a.UsableSize(p))
	a.Free(p)
	b.Free(q)
	requireVerified(t, a)
	requireVerified(t, b)
}

func TestSetMaxAllowedFootprint(t *testing.T) {
	var rec recorder
	s := newTestSpace(t, 0, Config{Hook: rec.hook})
	fp := s.Footprint()

	s.SetMaxAllowedFootprint(0)
	assert.Equal(t, fp, s.MaxAllowedFootprint(), "a cap below the footprint pins it")

	assert.Nil(t, s.Malloc(1<<20))
	assert.Equal(t, 1, rec.count(EventOutOfMemory))
	assert.NotNil(t, s.Malloc(100), "small requests still fit in top")

	s.SetMaxAllowedFootprint(fp + 1)
	assert.Equal(t, fp+GetParam(Granularity), s.MaxAllowedFootprint())
}
