package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, uintptr(8), AlignUp(1, 8))
	require.Equal(t, uintptr(8), AlignUp(8, 8))
	require.Equal(t, uintptr(16), AlignUp(9, 8))
	require.Equal(t, uintptr(8192), AlignUp(4097, 4096))
	require.Equal(t, uintptr(0), AlignUp(0, 4096))
}

func TestAlignOffset(t *testing.T) {
	require.Equal(t, uintptr(0), AlignOffset(0x1000))
	require.Equal(t, uintptr(7), AlignOffset(0x1001))
	require.Equal(t, uintptr(1), AlignOffset(0x1007))
	require.True(t, IsAligned(0x1003+AlignOffset(0x1003)))
}

func TestPowerOfTwo(t *testing.T) {
	require.True(t, IsPowerOfTwo(1))
	require.True(t, IsPowerOfTwo(4096))
	require.False(t, IsPowerOfTwo(0))
	require.False(t, IsPowerOfTwo(24))

	require.Equal(t, uintptr(32), NextPowerOfTwo(24, 16))
	require.Equal(t, uintptr(16), NextPowerOfTwo(3, 16))
	require.Equal(t, uintptr(64), NextPowerOfTwo(64, 16))
	require.Equal(t, uintptr(HalfMaxSize), NextPowerOfTwo(HalfMaxSize-1, 16))
	require.Zero(t, NextPowerOfTwo(HalfMaxSize+1, 16))
}
