package heap

import (
	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/slab"
)

// regionSpanPages is how many pages a freshly carved slab region spans.
// spec.md leaves the exact span a choice; 16 pages keeps small classes
// from mapping on every region request. A class whose cell is larger
// than that span gets a region of exactly one cell instead.
const regionSpanPages = 16

// AllocSmall serves a slab-class request, returning the cell address and
// whether the caller must zero it before handing it back. ok is false
// only when a fresh region could not be mapped (OOM from the OS).
func (h *Heap) AllocSmall(n uintptr) (ptr uintptr, cellLen uintptr, needZero bool, ok bool) {
	class := h.classes.ClassOf(n)
	cellSize := uintptr(h.classes.ClassSize(class))

	h.Lock()
	defer h.Unlock()

	ring := &h.rings[class]
	for tries := 0; tries < ring.n; tries++ {
		r := ring.regions[ring.cur]
		if res, got := slab.AllocLocal(r); got {
			slab.SetUserLen(r, res.Idx, n)
			return res.Ptr, cellSize, res.NeedZero, true
		}
		ring.cur = (ring.cur + 1) % ring.n
	}

	r, err := h.newSlabRegion(class, cellSize)
	if err != nil {
		return 0, 0, false, false
	}
	res, got := slab.AllocLocal(r)
	if !got {
		return 0, 0, false, false
	}
	slab.SetUserLen(r, res.Idx, n)
	return res.Ptr, cellSize, res.NeedZero, true
}

// AllocSmallAligned serves a slab-class request that additionally needs
// an alignment its class's natural cell placement doesn't already give
// it (spec.md §6, aligned_allocate). It only ever carves from the
// ini-frontier of the class ring's current region (see
// slab.AllocAligned) and never creates a fresh region on a miss — the
// caller is expected to fall back to a mapped region, which can always
// satisfy an arbitrary alignment via its header offset.
func (h *Heap) AllocSmallAligned(n, align uintptr) (ptr uintptr, cellLen uintptr, needZero bool, ok bool) {
	class := h.classes.ClassOf(n)
	cellSize := uintptr(h.classes.ClassSize(class))

	h.Lock()
	defer h.Unlock()

	ring := &h.rings[class]
	if ring.n == 0 {
		return 0, 0, false, false
	}
	r := ring.regions[ring.cur]
	res, got := slab.AllocAligned(r, align)
	if !got {
		return 0, 0, false, false
	}
	slab.SetUserLen(r, res.Idx, n)
	return res.Ptr, cellSize, res.NeedZero, true
}

func (h *Heap) newSlabRegion(class int, cellSize uintptr) (*region.Region, error) {
	gross := uintptr(regionSpanPages) * uintptr(osmem.PageSize())
	if gross < cellSize {
		gross = osmem.RoundPages(cellSize)
	}
	base, mem, err := osmem.Map(gross)
	if err != nil {
		return nil, err
	}
	cellCount := uint32(gross / cellSize)

	r := h.pool.Get()
	slab.New(r, h.id, r.ID, class, cellSize, cellCount, base, mem)

	h.Dir.Insert(r, base, gross)
	globalDir.Insert(r, base, gross)

	ring := &h.rings[class]
	if ring.n < len(ring.regions) {
		ring.regions[ring.n] = r
		ring.cur = ring.n
		ring.n++
	} else {
		// Ring is full: evict the current slot's region (it must be out
		// of frontier+bin space or AllocLocal would have served it
		// above) in favor of the fresh one, per spec.md §4.5's bounded
		// ring.
		ring.regions[ring.cur] = r
	}
	return r, nil
}

// FreeSlab returns a cell this heap owns to idx's local bin.
func (h *Heap) FreeSlab(r *region.Region, idx uint32) (ok bool, gotState uint32) {
	h.Lock()
	defer h.Unlock()
	return slab.FreeLocal(r, idx)
}
