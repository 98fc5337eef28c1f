package mapped

import (
	"testing"

	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
)

func TestNewAndUsableSize(t *testing.T) {
	r := &region.Region{}
	const n = 200 * 1024 // above any slab class, exercises the mapped path
	if err := New(r, 1, 1, n, 0); err != nil {
		t.Fatalf("New: %v", err)
	}
	defer osmem.Unmap(r.Mem)

	if got := UsableSize(r); got != n {
		t.Fatalf("UsableSize = %d, want %d", got, n)
	}
	if got := NetLen(r); got != n {
		t.Fatalf("NetLen = %d, want %d", got, n)
	}
	if UserPtr(r) != r.Base {
		t.Fatal("an unaligned request's UserPtr should equal the region base")
	}
}

func TestNewOverPageAlignment(t *testing.T) {
	align := uintptr(osmem.PageSize()) * 4
	r := &region.Region{}
	const n = 64 * 1024
	if err := New(r, 1, 1, n, align); err != nil {
		t.Fatalf("New: %v", err)
	}
	defer osmem.Unmap(r.Mem)

	ptr := UserPtr(r)
	if ptr%align != 0 {
		t.Fatalf("UserPtr %#x not aligned to %d", ptr, align)
	}
}

func TestGrowInPlaceWithoutAlignOffset(t *testing.T) {
	r := &region.Region{}
	const n = 200 * 1024
	if err := New(r, 1, 1, n, 0); err != nil {
		t.Fatalf("New: %v", err)
	}
	defer osmem.Unmap(r.Mem)

	copy(r.Mem, []byte("hello"))
	if !Grow(r, n*2) {
		t.Fatal("Grow should succeed for a region with no alignment offset")
	}
	if UsableSize(r) != n*2 {
		t.Fatalf("UsableSize after Grow = %d, want %d", UsableSize(r), n*2)
	}
	if string(r.Mem[:5]) != "hello" {
		t.Fatal("Grow must preserve the original bytes")
	}
}

func TestGrowRefusedWithAlignOffset(t *testing.T) {
	align := uintptr(osmem.PageSize()) * 4
	r := &region.Region{}
	const n = 64 * 1024
	if err := New(r, 1, 1, n, align); err != nil {
		t.Fatalf("New: %v", err)
	}
	defer osmem.Unmap(r.Mem)

	if Grow(r, n*2) {
		t.Fatal("Grow must refuse an aligned mapped region (a remap could relocate it)")
	}
}

func TestOrderIsMonotonicInLength(t *testing.T) {
	threshold := uintptr(128 << 10)
	o1 := Order(threshold+1, threshold)
	o2 := Order(threshold*4, threshold)
	if o2 <= o1 {
		t.Fatalf("Order(%d)=%d should be greater than Order(%d)=%d", threshold*4, o2, threshold+1, o1)
	}
	if Order(threshold, threshold) != 0 {
		t.Fatalf("Order at the threshold itself should be bucket 0")
	}
}

func TestFreeUnmapsAndClearsKind(t *testing.T) {
	r := &region.Region{}
	if err := New(r, 1, 1, 64*1024, 0); err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := Free(r); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if r.Kind != region.KindNone {
		t.Fatalf("Kind after Free = %v, want KindNone", r.Kind)
	}
	if r.Mem != nil {
		t.Fatal("Mem after Free should be nil")
	}
}
