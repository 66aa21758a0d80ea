//go:build !linux

package sysmem

import (
	"os"
	"sync"
	"unsafe"
)

// Regions on this platform are pinned Go buffers. The registry keeps each
// buffer reachable until it is unmapped.
var pinned = struct {
	sync.Mutex
	regions map[uintptr]pinnedRegion
}{regions: make(map[uintptr]pinnedRegion)}

type pinnedRegion struct {
	mem  []byte
	size uintptr
}

func pageSize() uintptr {
	return uintptr(os.Getpagesize())
}

func mapRegion(size uintptr) (uintptr, error) {
	ps := pageSize()
	mem := make([]byte, size+ps)
	start := uintptr(unsafe.Pointer(&mem[0]))
	addr := (start + ps - 1) &^ (ps - 1)

	pinned.Lock()
	pinned.regions[addr] = pinnedRegion{mem: mem, size: size}
	pinned.Unlock()
	return addr, nil
}

func unmapRegion(addr, size uintptr) error {
	pinned.Lock()
	defer pinned.Unlock()
	r, ok := pinned.regions[addr]
	if !ok || r.size != size {
		return ErrUnsupported
	}
	delete(pinned.regions, addr)
	return nil
}

func remapRegion(addr, oldSize, newSize uintptr, mayMove bool) (uintptr, error) {
	return 0, ErrUnsupported
}

func reserveRegion(size uintptr) (uintptr, error) {
	return 0, ErrUnsupported
}

func commitRegion(addr, size uintptr) error {
	return ErrUnsupported
}

func decommitRegion(addr, size uintptr) error {
	return ErrUnsupported
}

func releaseReservation(addr, size uintptr) error {
	return ErrUnsupported
}
