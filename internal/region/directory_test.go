package region

import "testing"

const testPageSize = 4096

func TestDirectoryInsertLookupRemove(t *testing.T) {
	d := NewDirectory(false, testPageSize)
	r := &Region{ID: 1}
	base := uintptr(testPageSize * 5)
	length := uintptr(testPageSize * 3)

	if !d.Insert(r, base, length) {
		t.Fatal("Insert on a fresh local directory must succeed")
	}
	for p := base; p < base+length; p += testPageSize {
		if got := d.Lookup(p); got != r {
			t.Fatalf("Lookup(%#x) = %v, want %v", p, got, r)
		}
	}
	// An address one page before/after the span must miss.
	if got := d.Lookup(base - testPageSize); got != nil {
		t.Fatalf("Lookup before span = %v, want nil", got)
	}
	if got := d.Lookup(base + length); got != nil {
		t.Fatalf("Lookup after span = %v, want nil", got)
	}

	if !d.Remove(r, base, length) {
		t.Fatal("Remove on a local directory must succeed")
	}
	if got := d.Lookup(base); got != nil {
		t.Fatalf("Lookup after Remove = %v, want nil", got)
	}
}

func TestGlobalDirectoryRejectsDoubleInsert(t *testing.T) {
	d := NewDirectory(true, testPageSize)
	r1 := &Region{ID: 1}
	r2 := &Region{ID: 2}
	base := uintptr(testPageSize * 10)

	if !d.Insert(r1, base, testPageSize) {
		t.Fatal("first global Insert must succeed")
	}
	if d.Insert(r2, base, testPageSize) {
		t.Fatal("second global Insert over a live slot must fail (CAS)")
	}
	// The original occupant must still be the one found.
	if got := d.Lookup(base); got != r1 {
		t.Fatalf("Lookup after failed overwrite = %v, want %v", got, r1)
	}
}

func TestGlobalDirectoryRemoveExpectMismatch(t *testing.T) {
	d := NewDirectory(true, testPageSize)
	r1 := &Region{ID: 1}
	r2 := &Region{ID: 2}
	base := uintptr(testPageSize * 20)

	d.Insert(r1, base, testPageSize)
	if d.Remove(r2, base, testPageSize) {
		t.Fatal("Remove with the wrong expected occupant must fail on the global directory")
	}
	if got := d.Lookup(base); got != r1 {
		t.Fatalf("Lookup after failed Remove = %v, want %v (unchanged)", got, r1)
	}
}

func TestDirectorySpansMultipleRadixNodes(t *testing.T) {
	// Force the span across the i3 boundary (dirSize pages) so the
	// three-level radix actually allocates a second leaf node.
	d := NewDirectory(false, testPageSize)
	r := &Region{ID: 1}
	base := uintptr(0)
	length := uintptr(dirSize+2) * testPageSize

	if !d.Insert(r, base, length) {
		t.Fatal("Insert spanning multiple leaves must succeed")
	}
	if got := d.Lookup(base + uintptr(dirSize+1)*testPageSize); got != r {
		t.Fatalf("Lookup in the second leaf node = %v, want %v", got, r)
	}
}

func TestRegionPoolRecycles(t *testing.T) {
	var p Pool
	r1 := p.Get()
	r1.Kind = KindSlab
	p.Put(r1)

	r2 := p.Get()
	if r2 != r1 {
		t.Fatal("Pool.Get after Put should return the recycled descriptor, not a fresh one")
	}
	if r2.Kind != KindNone {
		t.Fatalf("recycled descriptor Kind = %v, want KindNone", r2.Kind)
	}

	r3 := p.Get()
	if r3 == r1 {
		t.Fatal("Pool.Get with an empty free list must allocate a fresh descriptor")
	}
	if len(p.All()) != 2 {
		t.Fatalf("Pool.All() = %d descriptors, want 2", len(p.All()))
	}
}

func TestRegionReuseBumpsGeneration(t *testing.T) {
	r := &Region{}
	r.Reuse(1, KindSlab, 3)
	if r.Generation != 1 {
		t.Fatalf("Generation after first Reuse = %d, want 1", r.Generation)
	}
	r.Reuse(2, KindMapped, 0)
	if r.Generation != 2 {
		t.Fatalf("Generation after second Reuse = %d, want 2", r.Generation)
	}
	if r.Kind != KindMapped || r.HeapID != 2 {
		t.Fatalf("Reuse did not update Kind/HeapID: %+v", r)
	}
}

func TestContainsPage(t *testing.T) {
	r := &Region{Base: 4096, Len: 4096 * 2}
	if !r.ContainsPage(4096) {
		t.Fatal("ContainsPage at Base should be true")
	}
	if !r.ContainsPage(4096 * 2) {
		t.Fatal("ContainsPage just before the end should be true")
	}
	if r.ContainsPage(4096 * 3) {
		t.Fatal("ContainsPage at the end should be false")
	}
}
