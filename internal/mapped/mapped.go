// Package mapped implements the large-block engine spec.md §4.3
// describes: one user block per region, obtained straight from the OS,
// with remap-based growth and a reuse pool the heap indexes by order.
// This generalizes largeAlloc/mHeap_Alloc in the teacher's malloc.go,
// which hands large requests straight to the page heap bypassing
// mcache/mcentral — exactly the bypass spec.md asks mapped regions to
// give requests at or above the mmap threshold.
package mapped

import (
	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
)

// Meta is the mapped-region metadata hung off region.Region.Meta when
// Region.Kind == region.KindMapped.
type Meta struct {
	Net         uintptr // the caller's requested length
	AlignOffset uintptr // header offset when align > page size
}

func meta(r *region.Region) *Meta { return r.Meta.(*Meta) }

// New maps a fresh block able to hold net bytes at the given alignment
// and installs it as r. align must already be a page multiple when it
// exceeds the page size; smaller alignments are satisfied for free since
// mmap returns page-aligned memory.
func New(r *region.Region, heapID, id uint32, net uintptr, align uintptr) error {
	gross := net
	var alignOffset uintptr
	if align > uintptr(osmem.PageSize()) {
		gross += align // room to slide the base forward to the alignment
	}
	base, mem, err := osmem.Map(gross)
	if err != nil {
		return err
	}
	if align > uintptr(osmem.PageSize()) {
		aligned := (base + align - 1) &^ (align - 1)
		alignOffset = aligned - base
	}

	r.HeapID = heapID
	r.ID = id
	r.Kind = region.KindMapped
	r.Base = base
	r.Len = uintptr(len(mem))
	r.Mem = mem
	r.Age.Store(uint32(region.AgeActive))
	r.Meta = &Meta{Net: net, AlignOffset: alignOffset}
	return nil
}

// UserPtr returns the address the caller should receive: the region
// base, slid forward by AlignOffset when an over-page alignment was
// requested.
func UserPtr(r *region.Region) uintptr {
	return r.Base + meta(r).AlignOffset
}

// NetLen returns the caller's originally requested length.
func NetLen(r *region.Region) uintptr { return meta(r).Net }

// UsableSize returns the mapped net length, per spec.md §6.
func UsableSize(r *region.Region) uintptr { return meta(r).Net }

// Grow attempts to satisfy a larger request in place via remap,
// preserving the first Net bytes (spec.md §4.3, "request a page-grain
// remap (grow-in-place-if-possible, else move)"). On success it updates
// r in place and returns true.
func Grow(r *region.Region, newNet uintptr) bool {
	m := meta(r)
	if m.AlignOffset != 0 {
		// A remap may relocate the block; an aligned mapped region's
		// header offset would no longer necessarily satisfy the
		// alignment after a move, so growth for those always goes
		// through Realloc's fresh-allocate path instead.
		return false
	}
	newGross := newNet
	base, mem, err := osmem.Remap(r.Mem, m.Net, newGross)
	if err != nil {
		return false
	}
	r.Base = base
	r.Mem = mem
	r.Len = uintptr(len(mem))
	m.Net = newNet
	return true
}

// Free releases the region's memory back to the OS. Callers that want
// the heap's reuse pool instead should not call Free — they hand the
// still-mapped region back to the per-heap order pool.
func Free(r *region.Region) error {
	err := osmem.Unmap(r.Mem)
	r.Mem = nil
	r.Kind = region.KindNone
	return err
}

// Order reports the reuse-pool bucket spec.md §4.3 indexes freed
// mapped regions by: the number of doublings of threshold needed to
// reach length, i.e. ceil(log2(length/threshold)), and 0 for lengths at
// or below threshold.
func Order(length uintptr, threshold uintptr) int {
	order := 0
	for t := threshold; t < length; t <<= 1 {
		order++
	}
	return order
}
