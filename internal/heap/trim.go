package heap

import (
	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/slab"
)

// Trim walks every slab region descriptor the heap has ever handed out
// and advances it one step along spec.md §4.5's aging pipeline: Active
// regions that have drained fully become Empty; Empty regions are
// unlisted from their ring and both directories; Unlisted regions have
// their OS memory released and their descriptor returned to the pool
// for reuse. Each call advances at most one stage per region, so memory
// is only ever released on a Trim call strictly after the one that
// first noticed the region was empty — matching the teacher's
// scavenger, which never frees a span the same cycle it first finds
// idle.
//
// Mapped regions have their own aging/reuse cycle in mapped.go's
// per-order pool (capped by mappedPoolCap, evicted there directly) and
// are skipped here: folding them into this generic pipeline would
// unlist a region from the directory while AllocMapped's reuse path
// still expects it to be found there. Bump regions are never trimmed —
// spec.md's bump engine is explicitly a non-reclaiming linear arena;
// its memory is only released when the owning heap itself is retired,
// which this design never does.
func (h *Heap) Trim() {
	h.Lock()
	defer h.Unlock()

	for _, r := range h.pool.All() {
		if r.Kind != region.KindSlab {
			continue
		}
		switch region.Age(r.Age.Load()) {
		case region.AgeActive:
			if slab.IsEmpty(r) {
				r.Age.Store(uint32(region.AgeEmpty))
			}
		case region.AgeEmpty:
			h.unlist(r)
			r.Age.Store(uint32(region.AgeUnlisted))
		case region.AgeUnlisted:
			h.release(r)
		}
	}
}

// unlist removes r from whatever ring or slot references it and from
// both directories, but keeps its OS memory mapped until the next Trim
// call releases it. No allocation is served from it in between, since
// it is no longer in any ring.
func (h *Heap) unlist(r *region.Region) {
	h.Dir.Remove(r, r.Base, r.Len)
	globalDir.Remove(r, r.Base, r.Len)

	if r.Kind == region.KindSlab {
		ring := &h.rings[r.Class]
		for i := 0; i < ring.n; i++ {
			if ring.regions[i] == r {
				ring.regions[i] = ring.regions[ring.n-1]
				ring.regions[ring.n-1] = nil
				ring.n--
				if ring.cur >= ring.n && ring.n > 0 {
					ring.cur = 0
				}
				break
			}
		}
	}
}

// release returns r's OS memory to the operating system and recycles
// its descriptor. Only ever called for slab regions — see Trim's doc
// comment for why mapped and bump regions don't reach this stage.
func (h *Heap) release(r *region.Region) {
	_ = osmem.Unmap(r.Mem)
	r.Mem = nil
	r.Kind = region.KindNone
	h.Router.Forget(r)
	h.pool.Put(r)
}
