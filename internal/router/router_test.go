package router

import (
	"testing"
	"unsafe"

	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/slab"
)

type fakeDest struct {
	id     uint32
	locked bool
	refuse bool
}

func (f *fakeDest) ID() uint32 { return f.id }
func (f *fakeDest) TryLock() bool {
	if f.refuse || f.locked {
		return false
	}
	f.locked = true
	return true
}
func (f *fakeDest) Unlock() { f.locked = false }

func newSlabTestRegion(t *testing.T, cellCount uint32) *region.Region {
	t.Helper()
	const cellSize = 16
	mem := make([]byte, uintptr(cellCount)*cellSize)
	base := uintptr(unsafe.Pointer(&mem[0]))
	r := &region.Region{}
	slab.New(r, 2, 1, 0, cellSize, cellCount, base, mem)
	return r
}

func TestEnqueueFlushesAtThreshold(t *testing.T) {
	rt := New()
	r := newSlabTestRegion(t, flushThreshold)

	// Allocate and remote-mark flushThreshold cells so DeliverRemote has
	// valid state==3 entries to move into the rembin.
	idxs := make([]uint32, 0, flushThreshold)
	for i := 0; i < flushThreshold; i++ {
		res, ok := slab.AllocLocal(r)
		if !ok {
			t.Fatalf("AllocLocal %d failed", i)
		}
		if ok, _ := slab.MarkRemoteFree(r, res.Idx); !ok {
			t.Fatalf("MarkRemoteFree %d failed", i)
		}
		idxs = append(idxs, res.Idx)
	}

	dest := &fakeDest{id: 2}
	for i, idx := range idxs {
		rt.Enqueue(r, idx, dest)
		_ = i
	}

	// The forced flush at flushThreshold should have delivered every
	// pending index into the region's own rembin, ready for AllocLocal to
	// drain on the owning heap.
	if _, ok := slab.AllocLocal(r); !ok {
		t.Fatal("expected AllocLocal to succeed by draining the delivered rembin after a forced flush")
	}
}

func TestNoteLocalFreeFlushesOpportunistically(t *testing.T) {
	rt := New()
	r := newSlabTestRegion(t, 1) // no frontier left once the cell is allocated

	res, _ := slab.AllocLocal(r)
	slab.MarkRemoteFree(r, res.Idx)

	dest := &fakeDest{id: 2}
	rt.Enqueue(r, res.Idx, dest)

	destFor := func(reg *region.Region) DestHeap { return dest }
	for i := 0; i < flushEveryN; i++ {
		rt.NoteLocalFree(destFor)
	}

	if _, ok := slab.AllocLocal(r); !ok {
		t.Fatal("expected the opportunistic flush to have delivered the pending remote free")
	}
}

func TestFlushDropsOldestWhenDestUnavailable(t *testing.T) {
	rt := New()
	r := newSlabTestRegion(t, dropCeiling+10)

	dest := &fakeDest{id: 2, refuse: true}
	for i := 0; i < dropCeiling+5; i++ {
		res, ok := slab.AllocLocal(r)
		if !ok {
			t.Fatalf("AllocLocal %d failed", i)
		}
		slab.MarkRemoteFree(r, res.Idx)
		rt.Enqueue(r, res.Idx, dest)
	}

	b := rt.buffer(r)
	b.mu.Lock()
	n := len(b.pending)
	b.mu.Unlock()
	if n > dropCeiling {
		t.Fatalf("pending buffer length %d exceeds dropCeiling %d", n, dropCeiling)
	}
}

func TestFlushAllDeliversEveryBufferedRegion(t *testing.T) {
	rt := New()
	r1 := newSlabTestRegion(t, 1) // single cells: AllocLocal can only succeed by draining
	r2 := newSlabTestRegion(t, 1)

	res1, _ := slab.AllocLocal(r1)
	slab.MarkRemoteFree(r1, res1.Idx)
	res2, _ := slab.AllocLocal(r2)
	slab.MarkRemoteFree(r2, res2.Idx)

	dest := &fakeDest{id: 2}
	rt.Enqueue(r1, res1.Idx, dest)
	rt.Enqueue(r2, res2.Idx, dest)

	rt.FlushAll(func(r *region.Region) DestHeap { return dest })

	if _, ok := slab.AllocLocal(r1); !ok {
		t.Fatal("FlushAll should have delivered r1's pending remote free")
	}
	if _, ok := slab.AllocLocal(r2); !ok {
		t.Fatal("FlushAll should have delivered r2's pending remote free")
	}
}

func TestForgetDropsBuffer(t *testing.T) {
	rt := New()
	r := newSlabTestRegion(t, 4)
	res, _ := slab.AllocLocal(r)
	slab.MarkRemoteFree(r, res.Idx)
	rt.Enqueue(r, res.Idx, &fakeDest{id: 2, refuse: true})

	rt.Forget(r)

	rt.mu.Lock()
	_, exists := rt.buffers[r]
	rt.mu.Unlock()
	if exists {
		t.Fatal("Forget should remove the region's buffer entirely")
	}
}
