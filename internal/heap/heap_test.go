package heap_test

import (
	"testing"

	"github.com/jorisgeer/yalloc-sub000/internal/heap"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/slab"
)

func TestAcquireReleaseRebindsSameHeap(t *testing.T) {
	h1 := heap.Acquire()
	id1 := h1.ID()
	heap.Release(h1)

	h2 := heap.Acquire()
	if h2.ID() != id1 {
		t.Fatalf("Acquire after Release should reuse the freed heap (id %d), got id %d", id1, h2.ID())
	}
	heap.Release(h2)
}

func TestAcquireWhileBoundCreatesNewHeap(t *testing.T) {
	h1 := heap.Acquire()
	h2 := heap.Acquire()
	if h1.ID() == h2.ID() {
		t.Fatal("Acquire while h1 is still bound must not hand out the same heap twice")
	}
	heap.Release(h1)
	heap.Release(h2)
}

func TestByIDResolvesAcquiredHeap(t *testing.T) {
	h := heap.Acquire()
	defer heap.Release(h)
	if got := heap.ByID(h.ID()); got != h {
		t.Fatalf("ByID(%d) = %v, want %v", h.ID(), got, h)
	}
}

func TestAllocSmallServesAndFreesCell(t *testing.T) {
	h := heap.Acquire()
	defer heap.Release(h)

	ptr, cellLen, _, ok := h.AllocSmall(24)
	if !ok {
		t.Fatal("AllocSmall must succeed for a small in-range request")
	}
	if cellLen < 24 {
		t.Fatalf("cellLen %d smaller than requested 24", cellLen)
	}

	r := h.Dir.Lookup(ptr)
	if r == nil {
		t.Fatal("a pointer AllocSmall returns must be found in the heap's local directory")
	}
	if r.Kind != region.KindSlab {
		t.Fatalf("Kind = %v, want KindSlab", r.Kind)
	}

	idx, ok := slab.CellOf(r, ptr)
	if !ok {
		t.Fatal("could not resolve cell index for the allocated pointer")
	}
	if ok, _ := h.FreeSlab(r, idx); !ok {
		t.Fatal("FreeSlab of the cell AllocSmall just served must succeed")
	}
}

func TestAllocBumpServesSmallRequest(t *testing.T) {
	h := heap.Acquire()
	defer heap.Release(h)

	ptr, ok := h.AllocBump(32)
	if !ok {
		t.Fatal("AllocBump must succeed for a small request on a fresh heap")
	}
	r := h.Dir.Lookup(ptr)
	if r == nil || r.Kind != region.KindBump {
		t.Fatalf("expected a bump region at %#x, got %v", ptr, r)
	}
}

func TestMiniAllocOwnsAndFreesGranule(t *testing.T) {
	h := heap.Acquire()
	defer heap.Release(h)

	ptr, ok := h.MiniAlloc(8)
	if !ok {
		t.Fatal("first MiniAlloc on a fresh heap must succeed")
	}
	if !h.MiniOwns(ptr) {
		t.Fatal("MiniOwns must report true for a pointer MiniAlloc just returned")
	}
	if got := h.MiniNetLen(ptr); got != 8 {
		t.Fatalf("MiniNetLen = %d, want 8", got)
	}
	okFree, _ := h.MiniFree(ptr)
	if !okFree {
		t.Fatal("MiniFree of a live granule must succeed")
	}
}

func TestAllocMappedAndReuseAfterFree(t *testing.T) {
	h := heap.Acquire()
	defer heap.Release(h)

	const n = 200 * 1024
	ptr1, usable, ok := h.AllocMapped(n, 0)
	if !ok {
		t.Fatal("AllocMapped must succeed for a large request")
	}
	if usable != n {
		t.Fatalf("usable = %d, want %d", usable, n)
	}
	r := h.Dir.Lookup(ptr1)
	if r == nil || r.Kind != region.KindMapped {
		t.Fatalf("expected a mapped region at %#x", ptr1)
	}

	h.FreeMapped(r)

	ptr2, _, ok := h.AllocMapped(n, 0)
	if !ok {
		t.Fatal("AllocMapped after a matching-order free must succeed")
	}
	if ptr2 != ptr1 {
		t.Fatalf("expected the freed mapped region to be reused at %#x, got %#x", ptr1, ptr2)
	}
}

func TestTrimAdvancesEmptySlabThroughPipeline(t *testing.T) {
	h := heap.Acquire()
	defer heap.Release(h)

	ptr, _, _, ok := h.AllocSmall(24)
	if !ok {
		t.Fatal("AllocSmall must succeed")
	}
	r := h.Dir.Lookup(ptr)

	idx, ok := slab.CellOf(r, ptr)
	if !ok {
		t.Fatal("could not resolve cell index for the allocated pointer")
	}
	if ok, _ := h.FreeSlab(r, idx); !ok {
		t.Fatal("FreeSlab of the only allocated cell must succeed")
	}

	// Active -> Empty
	h.Trim()
	if region.Age(r.Age.Load()) != region.AgeEmpty {
		t.Fatalf("Age after first Trim = %v, want AgeEmpty", region.Age(r.Age.Load()))
	}
	// Empty -> Unlisted
	h.Trim()
	if region.Age(r.Age.Load()) != region.AgeUnlisted {
		t.Fatalf("Age after second Trim = %v, want AgeUnlisted", region.Age(r.Age.Load()))
	}
	if got := h.Dir.Lookup(ptr); got != nil {
		t.Fatal("an unlisted region must no longer be found in the directory")
	}
	// Unlisted -> memory released, descriptor recycled.
	h.Trim()
	if r.Kind != region.KindNone {
		t.Fatalf("Kind after final Trim = %v, want KindNone", r.Kind)
	}
}
