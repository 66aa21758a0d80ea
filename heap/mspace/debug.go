//go:build heapdebug

package mspace

// debugChecks enables a full Verify after every operation.
const debugChecks = true
