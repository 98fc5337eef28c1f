package yalloc

import "unsafe"

// zeroBlockByte backs the shared sentinel every zero-length request
// returns, spec.md §6's "size == 0 returns the shared zero block" and
// "release(ptr): ... the zero block is a recognized no-op". A single
// package-level byte gives every caller the same non-null, distinct
// address without actually allocating anything.
var zeroBlockByte byte

var zeroBlock = uintptr(unsafe.Pointer(&zeroBlockByte))

func isZeroBlock(ptr uintptr) bool { return ptr == 0 || ptr == zeroBlock }
