//go:build linux

package osmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// remapPlatform uses mremap(2) with MREMAP_MAYMOVE so the kernel grows the
// mapping in place when the following pages are free, and relocates it
// (preserving contents itself) otherwise — the grow-in-place-if-possible,
// else-move behavior spec.md asks of Remap.
func remapPlatform(old []byte, newGross uintptr) ([]byte, error) {
	if len(old) == 0 {
		return nil, fmt.Errorf("osmem: remap of empty mapping")
	}
	oldAddr := uintptr(unsafe.Pointer(&old[0]))
	newAddr, _, errno := unix.Syscall6(unix.SYS_MREMAP, oldAddr, uintptr(len(old)), newGross, unix.MREMAP_MAYMOVE, 0, 0)
	if errno != 0 {
		return nil, errno
	}
	var b []byte
	sh := (*sliceHeader)(unsafe.Pointer(&b))
	sh.Data = newAddr
	sh.Len = int(newGross)
	sh.Cap = int(newGross)
	return b, nil
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
