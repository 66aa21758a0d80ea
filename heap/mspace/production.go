//go:build !heapdebug

package mspace

const debugChecks = false
