package yalloc

import (
	"sync"

	"github.com/jorisgeer/yalloc-sub000/internal/heap"
)

// defaultPool stands in for spec.md §4.5's thread-local heap binding.
// The reference model pins one heap descriptor per OS thread for the
// thread's lifetime; Go has no equivalent durable per-goroutine slot,
// but sync.Pool's per-P free lists give the same practical effect a
// goroutine that keeps calling back in tends to get the same warm heap
// returned to it, the way the teacher's per-P mcache works, without the
// allocator needing to know anything about goroutine identity.
var defaultPool = sync.Pool{New: func() any { return heap.Acquire() }}

// Default resolves a heap for the current call the way each spec.md §4.6
// entry point resolves "the current thread's heap descriptor" — bind,
// do the work, release. Pair every Default() with a deferred Put.
func Default() *Heap {
	return defaultPool.Get().(*Heap)
}

// Put returns h to the default pool after a Default()-resolved call.
func Put(h *Heap) {
	defaultPool.Put(h)
}

// AllocateDefault is the package-level convenience form of Allocate
// using the pooled default heap.
func AllocateDefault(n uintptr, tag Tag) (uintptr, bool) {
	h := Default()
	defer Put(h)
	return Allocate(h, n, tag)
}

// ReleaseDefault is the package-level convenience form of Release.
func ReleaseDefault(ptr uintptr) {
	h := Default()
	defer Put(h)
	Release(h, ptr)
}

// ReallocateDefault is the package-level convenience form of
// Reallocate.
func ReallocateDefault(ptr, newSize uintptr, tag Tag) (uintptr, bool) {
	h := Default()
	defer Put(h)
	return Reallocate(h, ptr, newSize, tag)
}

// UsableSizeDefault is the package-level convenience form of
// UsableSize.
func UsableSizeDefault(ptr uintptr) uintptr {
	h := Default()
	defer Put(h)
	return UsableSize(h, ptr)
}
