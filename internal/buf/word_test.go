package buf

import (
	"testing"
	"unsafe"
)

func TestLoadStore(t *testing.T) {
	words := make([]uintptr, 4)
	base := uintptr(unsafe.Pointer(&words[0]))

	Store(base+WordSize, 0xdeadbeef)
	if got := Load(base + WordSize); got != 0xdeadbeef {
		t.Fatalf("Load = 0x%x, want 0xdeadbeef", got)
	}
	if words[1] != 0xdeadbeef {
		t.Fatalf("Store did not write through: 0x%x", words[1])
	}
}

func TestPointerIntoGoBuffer(t *testing.T) {
	data := make([]byte, 64)
	base := uintptr(unsafe.Pointer(&data[0]))

	p := Pointer(base + 16)
	if p != unsafe.Pointer(&data[16]) {
		t.Fatalf("Pointer(base+16) = %p, want %p", p, &data[16])
	}
	*(*uintptr)(p) = 0x01020304
	if got := Load(base + 16); got != 0x01020304 {
		t.Fatalf("Load after write through Pointer = 0x%x", got)
	}
	if Pointer(0) != nil {
		t.Fatalf("Pointer(0) should be nil")
	}
}

func TestZeroAndCopy(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	base := uintptr(unsafe.Pointer(&data[0]))

	Copy(base+2, base, 4)
	want := []byte{1, 2, 1, 2, 3, 4, 7, 8}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("after overlapping Copy byte %d = %d, want %d", i, data[i], want[i])
		}
	}

	Zero(base+1, 3)
	for i := 1; i < 4; i++ {
		if data[i] != 0 {
			t.Fatalf("byte %d not cleared", i)
		}
	}
	if data[0] != 1 || data[4] != 3 {
		t.Fatalf("Zero touched bytes outside its range: %v", data)
	}

	if Bytes(base, 0) != nil {
		t.Fatalf("Bytes with n=0 should be nil")
	}
}
