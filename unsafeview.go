package yalloc

import "unsafe"

// bytesAt views the n bytes starting at the raw address ptr as a Go
// byte slice. This is the one place the façade reaches past Go's type
// system to touch allocator-owned memory directly, mirroring how the
// teacher's runtime treats a span's memory as an untyped byte range
// until a caller's type takes over.
func bytesAt(ptr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(n))
}
