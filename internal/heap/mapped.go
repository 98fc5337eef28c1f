package heap

import (
	"github.com/jorisgeer/yalloc-sub000/internal/mapped"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/sizeclass"
)

// mappedPoolCap bounds how many freed mapped regions of a given order a
// heap keeps around for reuse before it starts actually unmapping them,
// spec.md §4.3's "reuse pool the heap indexes by order, scanning a
// bounded number of entries before falling back to a fresh map".
const mappedPoolCap = 80

// AllocMapped serves a request at or above the mmap threshold, or one
// whose alignment a slab class cannot satisfy. It first tries the
// per-order reuse pool before asking the OS for fresh memory.
func (h *Heap) AllocMapped(n, align uintptr) (ptr uintptr, usable uintptr, ok bool) {
	order := mapped.Order(n, sizeclass.MmapThreshold)

	h.Lock()
	pool := h.mappedPools[order]
	var reused *region.Region
	for i := len(pool) - 1; i >= 0; i-- {
		r := pool[i]
		h.mappedPools[order] = pool[:i]
		if uptr := mapped.UserPtr(r); (align == 0 || uptr%align == 0) && mapped.UsableSize(r) >= n {
			r.Age.Store(uint32(region.AgeActive))
			reused = r
			break
		}
		// Misaligned or too-small leftover from a different caller's
		// request: unmap it outright rather than holding a slot no one
		// can use.
		mapped.Free(r)
		h.pool.Put(r)
	}
	h.Unlock()
	if reused != nil {
		return mapped.UserPtr(reused), mapped.UsableSize(reused), true
	}

	r := h.pool.Get()
	if err := mapped.New(r, h.id, r.ID, n, align); err != nil {
		return 0, 0, false
	}

	h.Lock()
	h.Dir.Insert(r, r.Base, r.Len)
	globalDir.Insert(r, r.Base, r.Len)
	h.Unlock()

	return mapped.UserPtr(r), mapped.UsableSize(r), true
}

// FreeMapped returns r to the per-order reuse pool instead of unmapping
// it immediately, up to mappedPoolCap entries per order.
func (h *Heap) FreeMapped(r *region.Region) {
	order := mapped.Order(mapped.UsableSize(r), sizeclass.MmapThreshold)

	h.Lock()
	defer h.Unlock()
	if len(h.mappedPools[order]) >= mappedPoolCap {
		h.Dir.Remove(r, r.Base, r.Len)
		globalDir.Remove(r, r.Base, r.Len)
		mapped.Free(r)
		h.pool.Put(r)
		return
	}
	r.Age.Store(uint32(region.AgeEmpty))
	h.mappedPools[order] = append(h.mappedPools[order], r)
}

// GrowMapped attempts to grow r in place via remap; the facade falls
// back to allocate-copy-free when this returns false.
func (h *Heap) GrowMapped(r *region.Region, newNet uintptr) bool {
	h.Lock()
	defer h.Unlock()
	oldBase, oldLen := r.Base, r.Len
	if !mapped.Grow(r, newNet) {
		return false
	}
	if r.Base != oldBase || r.Len != oldLen {
		h.Dir.Remove(r, oldBase, oldLen)
		globalDir.Remove(r, oldBase, oldLen)
		h.Dir.Insert(r, r.Base, r.Len)
		globalDir.Insert(r, r.Base, r.Len)
	}
	return true
}
