package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/mspace"
)

func TestSetupSpaceWithBuffer(t *testing.T) {
	s, cleanup := SetupSpaceWithBuffer(t, 256<<10)
	defer cleanup()

	p := s.Malloc(1000)
	require.NotNil(t, p)
	s.Free(p)
	RequireVerified(t, s)

	require.Nil(t, s.Malloc(1<<20), "the buffer cannot grow")
}

func TestNewSpaceWith(t *testing.T) {
	s := NewSpaceWith(t, 1<<20, mspace.DefaultConfig)
	require.GreaterOrEqual(t, s.Footprint(), uintptr(1<<20))
	RequireVerified(t, s)
}
