//go:build linux

package sysmem

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/heapkit/internal/buf"
)

func pageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

func mapRegion(size uintptr) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, nil, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, err
	}
	return uintptr(p), nil
}

func unmapRegion(addr, size uintptr) error {
	return unix.MunmapPtr(unsafe.Pointer(addr), size)
}

func remapRegion(addr, oldSize, newSize uintptr, mayMove bool) (uintptr, error) {
	flags := 0
	if mayMove {
		flags = unix.MREMAP_MAYMOVE
	}
	p, err := unix.MremapPtr(unsafe.Pointer(addr), oldSize, nil, newSize, flags)
	if err != nil {
		return 0, err
	}
	return uintptr(p), nil
}

func reserveRegion(size uintptr) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, nil, size,
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return 0, err
	}
	return uintptr(p), nil
}

func commitRegion(addr, size uintptr) error {
	if size == 0 {
		return nil
	}
	return unix.Mprotect(buf.Bytes(addr, size), unix.PROT_READ|unix.PROT_WRITE)
}

func decommitRegion(addr, size uintptr) error {
	if size == 0 {
		return nil
	}
	b := buf.Bytes(addr, size)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return err
	}
	return unix.Mprotect(b, unix.PROT_NONE)
}

func releaseReservation(addr, size uintptr) error {
	return unix.MunmapPtr(unsafe.Pointer(addr), size)
}
