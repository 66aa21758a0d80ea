package testutil

import (
	"runtime"
	"testing"

	"github.com/joshuapare/heapkit/heap/mspace"
)

// NewSpace creates a locked space with the default configuration that is
// destroyed when the test ends.
//
// Example:
//
//	s := testutil.NewSpace(t)
//	p := s.Malloc(64)
func NewSpace(t testing.TB) *mspace.Space {
	t.Helper()
	return NewSpaceWith(t, 0, mspace.DefaultConfig)
}

// NewSpaceWith is like NewSpace but allows specifying the initial capacity
// and configuration.
func NewSpaceWith(t testing.TB, capacity uintptr, cfg mspace.Config) *mspace.Space {
	t.Helper()
	s, err := mspace.New(capacity, cfg)
	if err != nil {
		t.Fatalf("Failed to create space: %v", err)
	}
	t.Cleanup(func() { s.Destroy() })
	return s
}

// SetupSpaceWithBuffer creates a space over a Go-allocated buffer of size
// bytes that never maps more memory. Returns the space and a cleanup
// function that destroys it and keeps the buffer alive until then.
//
// Example:
//
//	s, cleanup := testutil.SetupSpaceWithBuffer(t, 1<<20)
//	defer cleanup()
func SetupSpaceWithBuffer(t testing.TB, size int) (*mspace.Space, func()) {
	t.Helper()
	mem := make([]byte, size)
	s, err := mspace.NewFromBuffer(mem, mspace.Config{
		Locked:       true,
		NoMmap:       true,
		MaxFootprint: uintptr(size),
	})
	if err != nil {
		t.Fatalf("Failed to create space over buffer: %v", err)
	}
	cleanup := func() {
		s.Destroy()
		runtime.KeepAlive(mem)
	}
	return s, cleanup
}

// RequireVerified fails the test when s does not pass its structural audit.
func RequireVerified(t testing.TB, s *mspace.Space) {
	t.Helper()
	if err := s.Verify(); err != nil {
		t.Fatalf("space failed verification: %v", err)
	}
}
