package mspace

import (
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemalign(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)
	var ptrs []unsafe.Pointer
	for _, align := range []uintptr{8, 16, 32, 64, 256, 4096} {
		for _, n := range []uintptr{1, 100, 5000} {
			p := s.Memalign(align, n)
			require.NotNil(t, p, "align %d size %d", align, n)
			assert.Zero(t, uintptr(p)%align, "align %d size %d", align, n)
			assert.GreaterOrEqual(t, s.UsableSize(p), n)
			fill(p, n, byte(n))
			ptrs = append(ptrs, p)
			requireVerified(t, s)
		}
	}
	for _, p := range ptrs {
		s.Free(p)
	}
	requireVerified(t, s)
}

func TestMemalignRoundsAlignmentUp(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)
	for i := 0; i < 8; i++ {
		p := s.Memalign(100, 10)
		require.NotNil(t, p)
		assert.Zero(t, uintptr(p)%128)
	}
	requireVerified(t, s)
}

func TestMemalignHugeAlignmentFails(t *testing.T) {
	var rec recorder
	cfg := DefaultConfig
	cfg.Hook = rec.hook
	s := newTestSpace(t, 0, cfg)

	done := make(chan unsafe.Pointer, 1)
	go func() { done <- s.Memalign(1<<63+1, 16) }()
	select {
	case p := <-done:
		assert.Nil(t, p)
	case <-time.After(5 * time.Second):
		t.Fatal("memalign with an unrepresentable alignment did not return")
	}
	assert.Nil(t, s.Memalign(^uintptr(0), 16))
	assert.Nil(t, s.Memalign(1<<63, 16))
	assert.Equal(t, 3, rec.count(EventOutOfMemory))

	p := s.Memalign(64, 100)
	require.NotNil(t, p)
	s.Free(p)
	requireVerified(t, s)
}

func TestMemalignDirectMapped(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)
	fp := s.Footprint()

	p := s.Memalign(4096, 1<<20)
	require.NotNil(t, p)
	assert.Zero(t, uintptr(p)%4096)
	assert.GreaterOrEqual(t, s.UsableSize(p), uintptr(1<<20))
	assert.Equal(t, uint64(1), s.Stats().DirectMaps)
	requireVerified(t, s)

	s.Free(p)
	assert.Equal(t, fp, s.Footprint())
	requireVerified(t, s)
}

func TestPosixMemalign(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)

	for _, bad := range []uintptr{0, 4, 12, 24, 100} {
		_, err := s.PosixMemalign(bad, 10)
		assert.ErrorIs(t, err, ErrInvalidParam, "alignment %d", bad)
	}

	p, err := s.PosixMemalign(64, 10)
	require.NoError(t, err)
	assert.Zero(t, uintptr(p)%64)

	var rec recorder
	s2 := newTestSpace(t, 0, Config{Hook: rec.hook})
	_, err = s2.PosixMemalign(64, ^uintptr(0)-8)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestVallocAndPvalloc(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)
	ps := PageSize()

	p := s.Valloc(10)
	require.NotNil(t, p)
	assert.Zero(t, uintptr(p)%ps)

	q := s.Pvalloc(10)
	require.NotNil(t, q)
	assert.Zero(t, uintptr(q)%ps)
	assert.GreaterOrEqual(t, s.UsableSize(q), ps)
	requireVerified(t, s)
}
