package yalloc

import (
	"github.com/jorisgeer/yalloc-sub000/internal/diag"
	"github.com/jorisgeer/yalloc-sub000/internal/heap"
	"github.com/jorisgeer/yalloc-sub000/internal/mapped"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/slab"
)

// reallocSlackNumerator/Denominator bound "small relative to current" in
// spec.md §4.6's in-place test: a shrink or the unused slack after a
// grow-candidate check is considered small when it is at most 1/4 of
// the current usable size.
const (
	reallocSlackNumerator   = 1
	reallocSlackDenominator = 4
)

// Reallocate resizes ptr to newSize, per spec.md §6/§4.6: a null ptr
// behaves as allocate; newSize == 0 behaves as release and returns the
// zero block; small deltas are satisfied in place; substantial shrinks
// and all slab grows allocate fresh, copy, and free the old block;
// mapped grows first attempt an in-place remap.
func Reallocate(h *Heap, ptr uintptr, newSize uintptr, tag Tag) (uintptr, bool) {
	diag.Trace("reallocate", uint32(tag), newSize)
	if ptr == 0 {
		return Allocate(h, newSize, tag)
	}
	if newSize == 0 {
		Release(h, ptr)
		return zeroBlock, true
	}
	if isZeroBlock(ptr) {
		return Allocate(h, newSize, tag)
	}

	old := UsableSize(h, ptr)
	if old == 0 {
		// Not a pointer this allocator recognizes; UsableSize already
		// reported the diagnostic. Serve a fresh block so the caller's
		// program can keep running instead of silently losing data.
		return Allocate(h, newSize, tag)
	}

	if newSize <= old && old-newSize <= old/reallocSlackDenominator*reallocSlackNumerator {
		adjustUserLen(h, ptr, newSize)
		return ptr, true
	}

	if newSize > old {
		if r := lookupEither(h, ptr); r != nil && r.Kind == region.KindMapped {
			owner := heap.ByID(r.HeapID)
			if owner != nil && owner.GrowMapped(r, newSize) {
				// A remap may have relocated the block; recompute the
				// user pointer from the region rather than reusing the
				// pre-grow address.
				return mapped.UserPtr(r), true
			}
		}
	}

	fresh, ok := Allocate(h, newSize, tag)
	if !ok {
		return 0, false
	}
	n := old
	if newSize < n {
		n = newSize
	}
	copy(bytesAt(fresh, n), bytesAt(ptr, n))
	Release(h, ptr)
	return fresh, true
}

func lookupEither(h *Heap, ptr uintptr) *region.Region {
	if r := h.Dir.Lookup(ptr); r != nil {
		return r
	}
	return heap.GlobalDirectory().Lookup(ptr)
}

// adjustUserLen updates a slab cell's recorded net length after an
// in-place realloc that didn't change which cell backs ptr.
func adjustUserLen(h *Heap, ptr uintptr, newSize uintptr) {
	r := lookupEither(h, ptr)
	if r == nil || r.Kind != region.KindSlab {
		return
	}
	if idx, ok := slab.CellOf(r, ptr); ok {
		slab.SetUserLen(r, idx, newSize)
	}
}
