package slab

import (
	"testing"
	"unsafe"

	"github.com/jorisgeer/yalloc-sub000/internal/region"
)

// newTestRegion carves a slab region over a plain heap-allocated slice;
// the cell-state machinery only ever does address arithmetic relative to
// r.Base, so a real OS mapping isn't required to exercise it.
func newTestRegion(t *testing.T, cellSize uintptr, cellCount uint32) *region.Region {
	t.Helper()
	mem := make([]byte, uintptr(cellCount)*cellSize)
	base := uintptr(unsafe.Pointer(&mem[0]))
	r := &region.Region{}
	New(r, 1, 1, 0, cellSize, cellCount, base, mem)
	return r
}

func TestAllocLocalFillsFrontierThenFails(t *testing.T) {
	r := newTestRegion(t, 16, 4)
	seen := map[uint32]bool{}
	for i := 0; i < 4; i++ {
		res, ok := AllocLocal(r)
		if !ok {
			t.Fatalf("AllocLocal call %d: expected success before frontier exhausted", i)
		}
		if seen[res.Idx] {
			t.Fatalf("AllocLocal returned duplicate cell index %d", res.Idx)
		}
		seen[res.Idx] = true
	}
	if _, ok := AllocLocal(r); ok {
		t.Fatal("AllocLocal after frontier exhausted and no frees should fail")
	}
}

func TestFreeThenReallocReusesCell(t *testing.T) {
	r := newTestRegion(t, 16, 2)
	a, ok := AllocLocal(r)
	if !ok {
		t.Fatal("first AllocLocal must succeed")
	}
	if ok, _ := FreeLocal(r, a.Idx); !ok {
		t.Fatal("FreeLocal of a just-allocated cell must succeed")
	}
	b, ok := AllocLocal(r)
	if !ok {
		t.Fatal("AllocLocal after a free must succeed from the local bin")
	}
	if b.Idx != a.Idx {
		t.Fatalf("expected the freed cell %d to be reused, got %d", a.Idx, b.Idx)
	}
	if !b.NeedZero {
		t.Fatal("a cell reused from the local bin must be flagged NeedZero")
	}
}

func TestDoubleFreeDetected(t *testing.T) {
	r := newTestRegion(t, 16, 2)
	a, _ := AllocLocal(r)
	if ok, _ := FreeLocal(r, a.Idx); !ok {
		t.Fatal("first free must succeed")
	}
	ok, got := FreeLocal(r, a.Idx)
	if ok {
		t.Fatal("second free of the same cell must be reported as a double free")
	}
	if got != StateLocalFreed {
		t.Fatalf("double free gotState = %d, want StateLocalFreed", got)
	}
}

func TestCellOfRejectsInteriorPointer(t *testing.T) {
	r := newTestRegion(t, 16, 4)
	if _, ok := CellOf(r, r.Base+1); ok {
		t.Fatal("CellOf on a non-cell-boundary pointer must fail")
	}
	if _, ok := CellOf(r, r.Base+16*4); ok {
		t.Fatal("CellOf past the last cell must fail")
	}
	if idx, ok := CellOf(r, r.Base+16*2); !ok || idx != 2 {
		t.Fatalf("CellOf(base+32) = (%d,%v), want (2,true)", idx, ok)
	}
}

func TestMarkRemoteFreeAndDeliverThenDrain(t *testing.T) {
	r := newTestRegion(t, 16, 3)
	a, _ := AllocLocal(r)
	b, _ := AllocLocal(r)
	_, _ = AllocLocal(r) // fill the frontier

	if ok, _ := MarkRemoteFree(r, a.Idx); !ok {
		t.Fatal("MarkRemoteFree on an allocated cell must succeed")
	}
	if ok, _ := MarkRemoteFree(r, b.Idx); !ok {
		t.Fatal("MarkRemoteFree on a second allocated cell must succeed")
	}
	// Double remote-free must be rejected.
	if ok, got := MarkRemoteFree(r, a.Idx); ok || got != StateRemoteFreed {
		t.Fatalf("second MarkRemoteFree = (%v,%d), want (false, StateRemoteFreed)", ok, got)
	}

	DeliverRemote(r, []uint32{a.Idx, b.Idx})

	// Frontier and local bin are both exhausted; the only way AllocLocal
	// can succeed now is by draining the rembin just delivered.
	res, ok := AllocLocal(r)
	if !ok {
		t.Fatal("AllocLocal should drain the delivered remote-free bin")
	}
	if res.Idx != a.Idx && res.Idx != b.Idx {
		t.Fatalf("AllocLocal after drain returned unexpected idx %d", res.Idx)
	}
}

func TestIsEmptyAndHasSpace(t *testing.T) {
	r := newTestRegion(t, 16, 2)
	if IsEmpty(r) {
		t.Fatal("a region with nothing carved yet is not 'empty' by this contract")
	}
	if !HasSpace(r) {
		t.Fatal("a fresh region must report HasSpace")
	}
	a, _ := AllocLocal(r)
	b, _ := AllocLocal(r)
	if HasSpace(r) {
		t.Fatal("a fully carved region with no frees must not report HasSpace")
	}
	FreeLocal(r, a.Idx)
	FreeLocal(r, b.Idx)
	if !IsEmpty(r) {
		t.Fatal("a region whose every carved cell is freed must report IsEmpty")
	}
}

func TestUserLenTrackingAboveThreshold(t *testing.T) {
	r := newTestRegion(t, 64, 2) // 64 > sizeclass.NoLengthThreshold (32)
	a, _ := AllocLocal(r)
	SetUserLen(r, a.Idx, 40)
	if got := NetLen(r, a.Idx); got != 40 {
		t.Fatalf("NetLen = %d, want 40", got)
	}
}

func TestNoUserLenBelowThreshold(t *testing.T) {
	r := newTestRegion(t, 16, 2) // 16 <= NoLengthThreshold
	a, _ := AllocLocal(r)
	SetUserLen(r, a.Idx, 5) // must be a silent no-op
	if got := NetLen(r, a.Idx); got != 16 {
		t.Fatalf("NetLen on a no-length class = %d, want cell size 16", got)
	}
}
