package heap

import (
	"github.com/jorisgeer/yalloc-sub000/internal/bump"
	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
)

// bumpRegionBytes is the size of each carved bump region, spec.md §4.4
// leaving the exact span unspecified ("a modest linear arena").
const bumpRegionBytes = 32 * 1024

// bumpClassPromoteThreshold is Clas_threshold from spec.md §4.4: once a
// size class has been served this many bump allocations, it "promotes to
// a slab" — AllocBump refuses the class outright so the caller's slab
// fallback becomes the steady-state path for it, and that class's bin
// cycles (free/reuse) start working the way S1 expects instead of
// leaking one-way into non-reclaiming bump arenas. The exact count is a
// tuning choice the spec leaves open; a small number makes the switch
// happen after only a handful of allocations, which is what a "hot class"
// failure scenario needs to exercise in practice.
const bumpClassPromoteThreshold = 8

// AllocBump serves a small first-touch request from the heap's bounded
// array of bump regions (spec.md §4.4), advancing whichever is current
// and only mapping a new one, up to bumpSlots, when the current one is
// exhausted. ok is false once all bumpSlots regions are full, or once
// n's size class has accrued bumpClassPromoteThreshold bump allocations
// — either way the caller falls back to the slab path, which is the
// steady-state engine for any class that sees repeat traffic.
func (h *Heap) AllocBump(n uintptr) (ptr uintptr, ok bool) {
	h.Lock()
	defer h.Unlock()

	class := h.classes.ClassOf(n)
	if h.bumpHits[class].Load() >= bumpClassPromoteThreshold {
		return 0, false
	}

	if r := h.bump[h.bumpCur]; r != nil {
		if p, got := bump.Alloc(r, n); got {
			h.bumpHits[class].Add(1)
			return p, true
		}
	}

	for i := 0; i < bumpSlots; i++ {
		idx := (h.bumpCur + 1 + i) % bumpSlots
		if h.bump[idx] == nil {
			base, mem, err := osmem.Map(bumpRegionBytes)
			if err != nil {
				return 0, false
			}
			r := h.pool.Get()
			bump.New(r, h.id, r.ID, base, mem)
			h.Dir.Insert(r, base, bumpRegionBytes)
			globalDir.Insert(r, base, bumpRegionBytes)
			h.bump[idx] = r
			h.bumpCur = idx
			if p, got := bump.Alloc(r, n); got {
				h.bumpHits[class].Add(1)
				return p, true
			}
			return 0, false
		}
		if p, got := bump.Alloc(h.bump[idx], n); got {
			h.bumpCur = idx
			h.bumpHits[class].Add(1)
			return p, true
		}
	}
	return 0, false
}

// FreeBump marks a bump-region cell freed for double-free detection; the
// space itself is never reclaimed (Trim skips bump regions).
func (h *Heap) FreeBump(r *region.Region, ptr uintptr) bool {
	h.Lock()
	defer h.Unlock()
	return bump.Free(r, ptr)
}
