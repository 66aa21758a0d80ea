//go:build linux

package sysmem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/buf"
)

func TestMapUnmap(t *testing.T) {
	ps := PageSize()
	before := Stats()

	addr, err := Map(4 * ps)
	require.NoError(t, err)
	require.NotZero(t, addr)
	require.Zero(t, addr%ps, "regions are page aligned")

	// Fresh regions are zero filled and writable.
	require.Equal(t, uintptr(0), buf.Load(addr))
	buf.Store(addr+3*ps, 0x5a5a)
	require.Equal(t, uintptr(0x5a5a), buf.Load(addr+3*ps))

	require.Equal(t, before.MappedBytes+int64(4*ps), Stats().MappedBytes)

	// Release the tail, then the rest.
	require.NoError(t, Unmap(addr+2*ps, 2*ps))
	require.NoError(t, Unmap(addr, 2*ps))
	require.Equal(t, before.MappedBytes, Stats().MappedBytes)
}

func TestMapRejectsBadSizes(t *testing.T) {
	_, err := Map(0)
	require.ErrorIs(t, err, ErrBadRange)

	_, err = Map(PageSize() + 1)
	require.ErrorIs(t, err, ErrBadRange)

	require.ErrorIs(t, Unmap(0, PageSize()), ErrBadRange)
}

func TestRemapGrowAndShrink(t *testing.T) {
	ps := PageSize()
	addr, err := Map(2 * ps)
	require.NoError(t, err)
	buf.Store(addr, 42)

	grown, err := Remap(addr, 2*ps, 8*ps, true)
	require.NoError(t, err)
	require.Equal(t, uintptr(42), buf.Load(grown), "contents survive a move")
	buf.Store(grown+7*ps, 7)

	shrunk, err := Remap(grown, 8*ps, 3*ps, false)
	require.NoError(t, err)
	require.Equal(t, grown, shrunk, "shrinking in place keeps the address")
	require.NoError(t, Unmap(shrunk, 3*ps))
}

func TestBreakGrowShrink(t *testing.T) {
	ps := PageSize()
	b, err := NewBreak(64 * ps)
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Release()) }()

	base, err := b.Sbrk(0)
	require.NoError(t, err)
	require.Equal(t, b.Base(), base)

	old, err := b.Sbrk(int(3 * ps))
	require.NoError(t, err)
	require.Equal(t, base, old)
	require.Equal(t, base+3*ps, b.Current())

	// Growth is contiguous with the previous break.
	old, err = b.Sbrk(int(ps / 2))
	require.NoError(t, err)
	require.Equal(t, base+3*ps, old)
	buf.Store(old, 99)

	old, err = b.Sbrk(-int(ps/2 + 2*ps))
	require.NoError(t, err)
	require.Equal(t, base+3*ps+ps/2, old)
	require.Equal(t, base+ps, b.Current())

	// Pages handed back come back zeroed.
	_, err = b.Sbrk(int(3 * ps))
	require.NoError(t, err)
	require.Equal(t, uintptr(0), buf.Load(base+3*ps))
}

func TestBreakExhaustion(t *testing.T) {
	ps := PageSize()
	b, err := NewBreak(4 * ps)
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Release()) }()

	_, err = b.Sbrk(int(4 * ps))
	require.NoError(t, err)
	_, err = b.Sbrk(1)
	require.ErrorIs(t, err, ErrExhausted)

	_, err = b.Sbrk(-int(5 * ps))
	require.ErrorIs(t, err, ErrBadRange)
}

func TestDefaultBreakIsShared(t *testing.T) {
	a, err := DefaultBreak()
	require.NoError(t, err)
	b, err := DefaultBreak()
	require.NoError(t, err)
	require.Same(t, a, b)
}
