package mspace

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// newTestSpace creates a space that is destroyed when the test ends.
func newTestSpace(t testing.TB, capacity uintptr, cfg Config) *Space {
	t.Helper()
	s, err := New(capacity, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if s.m != nil {
			s.Destroy()
		}
	})
	return s
}

// expectPanic runs fn and returns the *Error it panicked with.
func expectPanic(t *testing.T, fn func()) (err *Error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		e, ok := r.(*Error)
		require.True(t, ok, "panic value is %T, want *Error", r)
		err = e
	}()
	fn()
	return nil
}

// recorder collects hook events.
type recorder struct {
	events []Event
}

func (r *recorder) hook(e Event) { r.events = append(r.events, e) }

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func fill(p unsafe.Pointer, n uintptr, seed byte) {
	b := Bytes(p, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
}

func checkFill(t testing.TB, p unsafe.Pointer, n uintptr, seed byte) {
	t.Helper()
	b := Bytes(p, n)
	for i := range b {
		if b[i] != seed+byte(i) {
			t.Fatalf("byte %d of %p = %#x, want %#x", i, p, b[i], seed+byte(i))
		}
	}
}

func requireVerified(t testing.TB, s *Space) {
	t.Helper()
	require.NoError(t, s.Verify())
}

func isErr(err, target error) bool { return errors.Is(err, target) }
