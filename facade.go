// Package yalloc is the dispatch façade spec.md §4.6 describes: each
// exposed entry point resolves a heap, performs the work against the
// internal engines, and returns. Generalizing the teacher's
// mallocgc/free split in malloc.go, allocation here additionally
// chooses among four engines (mini arena, bump regions, slabs, mapped
// regions) by request size and the heap's current state, and release
// dispatches by looking the pointer up in a directory rather than
// reading a type header, per spec.md §4.1/§4.6.
package yalloc

import (
	"math/bits"

	"github.com/jorisgeer/yalloc-sub000/internal/bump"
	"github.com/jorisgeer/yalloc-sub000/internal/diag"
	"github.com/jorisgeer/yalloc-sub000/internal/heap"
	"github.com/jorisgeer/yalloc-sub000/internal/mapped"
	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/router"
	"github.com/jorisgeer/yalloc-sub000/internal/sizeclass"
	"github.com/jorisgeer/yalloc-sub000/internal/slab"
)

// Heap is the bindable allocation arena every entry point below acts
// against. Acquire one with AcquireHeap (or use the package-level
// convenience wrappers, which take one from a shared sync.Pool via
// Default).
type Heap = heap.Heap

// Tag is the call-site identifier spec.md §4.6 has each entry point
// push for diagnostics ("pushes a call-site tag"). It carries no
// allocator behavior of its own; it is only ever surfaced in trace
// output (see internal/diag).
type Tag uint32

// NoTag is the zero value callers pass when they have nothing useful to
// attribute a call to.
const NoTag Tag = 0

// bumpEligible bounds how large a request the bump engine will take
// before the façade prefers a slab: spec.md leaves the exact cutover a
// tuning choice, and a slab class already exists for anything past a
// couple of cache lines.
const bumpEligible = 256

// AcquireHeap binds the calling goroutine session to a heap (spec.md
// §4.5's create-on-demand / reuse-under-contention binding).
func AcquireHeap() *Heap { return heap.Acquire() }

// ReleaseHeap unbinds h, flushing any buffered remote frees first, and
// makes it available for AcquireHeap to hand to a different session.
func ReleaseHeap(h *Heap) { heap.Release(h) }

// Allocate returns a pointer whose usable size is >= n, per spec.md
// §6's allocate contract. size == 0 returns the shared zero block.
func Allocate(h *Heap, n uintptr, tag Tag) (uintptr, bool) {
	diag.Trace("allocate", uint32(tag), n)
	if n == 0 {
		return zeroBlock, true
	}
	if ptr, ok := h.MiniAlloc(n); ok {
		return ptr, true
	}
	if n <= bumpEligible {
		if ptr, ok := h.AllocBump(n); ok {
			return ptr, true
		}
	}
	if n < sizeclass.MmapThreshold {
		ptr, _, needZero, ok := h.AllocSmall(n)
		if !ok {
			h.Counters.OOM.Add(1)
			return 0, false
		}
		if needZero {
			zeroAt(ptr, uintptr(h.Classes().ClassSize(h.Classes().ClassOf(n))))
		}
		return ptr, true
	}
	ptr, _, ok := h.AllocMapped(n, 0)
	if !ok {
		h.Counters.OOM.Add(1)
		return 0, false
	}
	return ptr, true
}

// AllocateCleared serves count*size zero-filled bytes, spec.md §6's
// overflow-checked calloc equivalent.
func AllocateCleared(h *Heap, count, size uintptr, tag Tag) (uintptr, bool) {
	diag.Trace("allocate_cleared", uint32(tag), count*size)
	if count == 0 || size == 0 {
		return zeroBlock, true
	}
	if hi, _ := bits.Mul64(uint64(count), uint64(size)); hi != 0 {
		h.Counters.OOM.Add(1)
		return 0, false
	}
	n := count * size
	ptr, ok := Allocate(h, n, tag)
	if !ok {
		return 0, false
	}
	zeroAt(ptr, n)
	return ptr, true
}

// AlignedAllocate serves a request at a caller-chosen power-of-two
// alignment (spec.md §6). Sizes whose natural class cell already
// satisfies align (and align is at most a page) are served from slabs;
// other slab-sized requests first try an aligned carve from the class's
// current slab region. Anything left goes to a mapped region, which can
// always honor an arbitrary alignment via a header offset.
func AlignedAllocate(h *Heap, align, n uintptr, tag Tag) (uintptr, bool) {
	diag.Trace("aligned_allocate", uint32(tag), n)
	if align == 0 || align&(align-1) != 0 {
		diag.Fail(&h.Counters, "aligned_allocate: alignment not a power of two")
	}
	if n == 0 {
		return zeroBlock, true
	}
	if align <= 8 {
		return Allocate(h, n, tag)
	}
	if n < sizeclass.MmapThreshold {
		class := h.Classes().ClassOf(n)
		cellSize := uintptr(h.Classes().ClassSize(class))
		if cellSize%align == 0 && align <= uintptr(osmem.PageSize()) {
			ptr, _, needZero, ok := h.AllocSmall(n)
			if ok {
				if needZero {
					zeroAt(ptr, cellSize)
				}
				return ptr, true
			}
		} else if ptr, _, needZero, ok := h.AllocSmallAligned(n, align); ok {
			if needZero {
				zeroAt(ptr, cellSize)
			}
			return ptr, true
		}
	}
	ptr, _, ok := h.AllocMapped(n, align)
	if !ok {
		h.Counters.OOM.Add(1)
		return 0, false
	}
	return ptr, true
}

// Release frees ptr, per spec.md §4.6's release dispatch: local
// directory, then global directory (routing to the remote-free router
// when the owner is a different heap), then the mini arena, else an
// invalid-free diagnostic.
func Release(h *Heap, ptr uintptr) {
	diag.Trace("release", 0, ptr)
	if isZeroBlock(ptr) {
		return
	}

	if r := h.Dir.Lookup(ptr); r != nil {
		releaseLocal(h, r, ptr)
		return
	}
	if r := heap.GlobalDirectory().Lookup(ptr); r != nil {
		releaseRemote(h, r, ptr)
		return
	}
	if h.MiniOwns(ptr) {
		if ok, got := h.MiniFree(ptr); !ok {
			diag.ReportDoubleFree(&h.Counters, ptr, got, 1)
		}
		return
	}
	// The pointer may have been allocated through a different pooled heap
	// than the one Default()/Put() hands back for this call (session.go),
	// since mini arenas are never installed in a directory. Scan for the
	// owning heap before giving up.
	if owner := heap.FindMiniOwner(ptr); owner != nil {
		if ok, got := owner.MiniFree(ptr); !ok {
			diag.ReportDoubleFree(&h.Counters, ptr, got, 1)
		}
		return
	}
	diag.ReportInvalidFree(&h.Counters, ptr, "not owned by any region or mini arena")
}

func releaseLocal(h *Heap, r *region.Region, ptr uintptr) {
	switch r.Kind {
	case region.KindSlab:
		idx, ok := slab.CellOf(r, ptr)
		if !ok {
			diag.ReportInvalidFree(&h.Counters, ptr, "not a cell boundary")
			return
		}
		ok, got := h.FreeSlab(r, idx)
		if !ok {
			diag.ReportDoubleFree(&h.Counters, ptr, got, slab.StateAllocated)
			return
		}
		h.Router.NoteLocalFree(destLookup)
	case region.KindBump:
		if !h.FreeBump(r, ptr) {
			diag.ReportDoubleFree(&h.Counters, ptr, 0, 0)
		}
	case region.KindMapped:
		h.FreeMapped(r)
	default:
		diag.ReportInvalidFree(&h.Counters, ptr, "region has no memory (already released)")
	}
}

// releaseRemote handles a free whose owning region belongs to a
// different heap than the caller's. Only slab cells go through the
// batching router (spec.md §4.6); mapped and bump regions are rarer
// cross-heap frees and are serviced with a direct try-lock instead,
// falling back to an invalid-free report if the owner is momentarily
// unavailable — spec.md's bounded drop-oldest fallback generalizes to
// "try once, else count and move on" for these non-batched kinds.
func releaseRemote(h *Heap, r *region.Region, ptr uintptr) {
	switch r.Kind {
	case region.KindSlab:
		idx, ok := slab.CellOf(r, ptr)
		if !ok {
			diag.ReportInvalidFree(&h.Counters, ptr, "not a cell boundary")
			return
		}
		ok, got := slab.MarkRemoteFree(r, idx)
		if !ok {
			diag.ReportDoubleFree(&h.Counters, ptr, got, slab.StateAllocated)
			return
		}
		dest := heap.ByID(r.HeapID)
		h.Router.Enqueue(r, idx, dest)
	case region.KindBump, region.KindMapped:
		dest := heap.ByID(r.HeapID)
		if dest == nil || !dest.TryLock() {
			diag.ReportInvalidFree(&h.Counters, ptr, "owning heap unavailable for cross-heap free")
			return
		}
		defer dest.Unlock()
		if r.Kind == region.KindMapped {
			dest.FreeMapped(r)
		} else if !bump.Free(r, ptr) {
			diag.ReportDoubleFree(&h.Counters, ptr, 0, 0)
		}
	default:
		diag.ReportInvalidFree(&h.Counters, ptr, "region has no memory (already released)")
	}
}

func destLookup(r *region.Region) router.DestHeap {
	d := heap.ByID(r.HeapID)
	if d == nil {
		return nil
	}
	return d
}

// ReleaseSized frees ptr, diagnosing (but not refusing) a mismatch
// between size and the block's actual usable size, per spec.md §6.
func ReleaseSized(h *Heap, ptr, size uintptr) {
	if isZeroBlock(ptr) {
		return
	}
	if size != 0 {
		if got := UsableSize(h, ptr); got != size {
			diag.ReportSizedMismatch(&h.Counters, ptr, got, size)
		}
	}
	Release(h, ptr)
}

// UsableSize returns the allocated cell length or mapped net length for
// ptr; 0 for the zero block or an unrecognized pointer (spec.md §6).
func UsableSize(h *Heap, ptr uintptr) uintptr {
	if isZeroBlock(ptr) {
		return 0
	}
	if r := h.Dir.Lookup(ptr); r != nil {
		return usableSizeOf(r, ptr)
	}
	if r := heap.GlobalDirectory().Lookup(ptr); r != nil {
		return usableSizeOf(r, ptr)
	}
	if h.MiniOwns(ptr) {
		return h.MiniNetLen(ptr)
	}
	if owner := heap.FindMiniOwner(ptr); owner != nil {
		return owner.MiniNetLen(ptr)
	}
	diag.ReportInvalidFree(&h.Counters, ptr, "usable_size of unrecognized pointer")
	return 0
}

func usableSizeOf(r *region.Region, ptr uintptr) uintptr {
	switch r.Kind {
	case region.KindSlab:
		return slab.UsableSize(r)
	case region.KindMapped:
		return mapped.UsableSize(r)
	case region.KindBump:
		return bump.NetLen(r, ptr)
	default:
		return 0
	}
}

func zeroAt(ptr, n uintptr) {
	b := bytesAt(ptr, n)
	for i := range b {
		b[i] = 0
	}
}
