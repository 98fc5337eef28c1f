// Package osmem is the allocator's OS collaborator surface: page-granular
// map/unmap/remap plus the handful of process facts the rest of the
// allocator treats as given. See malloc.go's sysAlloc/sysFree/sysReserve
// family in the teacher for the split this mirrors; here there is no
// separate reserve-then-commit step because Go programs do not need to
// pre-reserve a 512G arena the way the teacher's GC-aware heap does.
package osmem

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pageSize is detected once at init, like mallocinit's one-time call to
// the platform page size in the teacher.
var pageSize = unix.Getpagesize()

// PageSize returns the page granule in bytes.
func PageSize() int { return pageSize }

// RoundPages rounds n up to the next page-size multiple.
func RoundPages(n uintptr) uintptr {
	ps := uintptr(pageSize)
	return (n + ps - 1) &^ (ps - 1)
}

// Pid returns the current process id, used to disambiguate per-heap
// diagnostic file names.
func Pid() int { return unix.Getpid() }

// Map obtains a fresh, zeroed, page-aligned block of length n from the
// operating system. It returns the block's base address and a byte slice
// aliasing it for the narrow unsafe boundary callers need to poke raw
// bytes into cells.
func Map(n uintptr) (uintptr, []byte, error) {
	n = RoundPages(n)
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, nil, fmt.Errorf("osmem: mmap %d bytes: %w", n, err)
	}
	return uintptr(unsafe.Pointer(&b[0])), b, nil
}

// Unmap releases a previously mapped block back to the operating system.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}

// Remap grows (or shrinks) a mapping in place when the kernel can, and
// otherwise moves it, preserving the first oldNet bytes. On platforms
// without mremap(2) it falls back to map-copy-unmap.
func Remap(old []byte, oldNet uintptr, newGross uintptr) (uintptr, []byte, error) {
	newGross = RoundPages(newGross)
	b, err := remapPlatform(old, newGross)
	if err == nil {
		return uintptr(unsafe.Pointer(&b[0])), b, nil
	}
	base, fresh, ferr := Map(newGross)
	if ferr != nil {
		return 0, nil, ferr
	}
	n := oldNet
	if uintptr(len(old)) < n {
		n = uintptr(len(old))
	}
	copy(fresh, old[:n])
	_ = Unmap(old)
	return base, fresh, nil
}

// Getenv is the one place the allocator reads process environment state,
// kept here rather than scattered through the dispatch path.
func Getenv(name string) (string, bool) { return os.LookupEnv(name) }
