// Package heap implements the per-thread allocation arena spec.md §4.5
// specifies: a coarse-locked owner of a local region directory, one
// region ring per size class, a bounded array of bump regions, a remote
// free router, and a global list letting idle heaps be rebound to a new
// goroutine session instead of growing without bound. This generalizes
// the teacher's per-P mcache (malloc.go, mcache.go) from "one cache per
// scheduler P" to "one heap per bound goroutine session", matching
// spec.md §4.5's explicit binding/reuse policy rather than following the
// scheduler's P count.
package heap

import (
	"sync"
	"sync/atomic"

	"github.com/jorisgeer/yalloc-sub000/internal/bump"
	"github.com/jorisgeer/yalloc-sub000/internal/diag"
	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/router"
	"github.com/jorisgeer/yalloc-sub000/internal/sizeclass"
	"github.com/jorisgeer/yalloc-sub000/internal/spinlock"
)

// bumpSlots is the fixed count of per-heap bump regions spec.md §4.4
// allows ("a small fixed array, e.g. four").
const bumpSlots = 4

// classRing is the per-size-class pool of at-most-Clasregs concurrently
// open regions spec.md §4.5 calls a "region ring": one slot is "current"
// for new allocations; the rest are kept around because they still have
// local-bin space a future free might return to.
type classRing struct {
	regions [sizeclass.Clasregs]*region.Region
	cur     int // index of the slot AllocLocal tries first
	n       int // number of live slots
}

// Heap is one bindable allocation arena. Heap.ID, TryLock and Unlock
// satisfy router.DestHeap so the router can address and briefly lock a
// heap without importing this package.
type Heap struct {
	id    uint32
	bound atomic.Bool

	lock spinlock.L

	Dir  *region.Directory // local directory; plain stores, no CAS needed
	pool region.Pool

	classes *sizeclass.Table
	rings   []classRing

	bump     [bumpSlots]*region.Region
	bumpCur  int
	bumpHits []atomic.Uint32 // per-size-class count of bump allocations served

	mini     *bump.Mini
	miniBase uintptr

	mappedPools map[int][]*region.Region // order -> reusable mapped regions

	Router   *router.Router
	Counters diag.Counters

	next atomic.Pointer[Heap]
}

// ID returns the heap's stable identifier, used as Region.HeapID.
func (h *Heap) ID() uint32 { return h.id }

// TryLock attempts the heap's coarse lock, used both for the router's
// try-and-batch remote-free delivery and for the binding scan below.
func (h *Heap) TryLock() bool { return h.lock.TryLock() }

// Unlock releases the coarse lock TryLock or Lock acquired.
func (h *Heap) Unlock() { h.lock.Unlock() }

// Lock unconditionally acquires the coarse lock (spin-then-yield, see
// internal/spinlock), for the allocate/free fast paths that must make
// progress rather than bail out.
func (h *Heap) Lock() { h.lock.Lock() }

var (
	globalDir    = region.NewDirectory(true, osmem.PageSize())
	heapListHead atomic.Pointer[Heap]
	nextHeapID   atomic.Uint32
	registry     sync.Map // uint32 heap id -> *Heap, for router destination lookup
)

// GlobalDirectory is the process-wide address-to-region map every
// allocation installs into alongside its owning heap's local directory
// (spec.md §4.1's "global directory" half of the split).
func GlobalDirectory() *region.Directory { return globalDir }

// ByID resolves a heap by the id stored in a region descriptor, for the
// router's destination lookups. It returns nil if the heap has since
// been fully retired (never happens in the current design — heaps are
// only ever recycled, not freed — but router code must not assume that).
func ByID(id uint32) *Heap {
	if v, ok := registry.Load(id); ok {
		return v.(*Heap)
	}
	return nil
}

func newHeap() *Heap {
	id := nextHeapID.Add(1)
	h := &Heap{
		id:          id,
		Dir:         region.NewDirectory(false, osmem.PageSize()),
		classes:     sizeclass.Default(),
		mappedPools: make(map[int][]*region.Region),
		Router:      router.New(),
	}
	h.rings = make([]classRing, h.classes.NumClasses())
	h.bumpHits = make([]atomic.Uint32, h.classes.NumClasses())
	registry.Store(id, h)
	return h
}

func pushGlobalList(h *Heap) {
	for {
		old := heapListHead.Load()
		h.next.Store(old)
		if heapListHead.CompareAndSwap(old, h) {
			return
		}
	}
}

// Acquire binds the calling goroutine session to a heap: an unbound
// heap already on the global list if one is free, else a freshly built
// one, matching spec.md §4.5's "reuse-from-free-list, else scan, else
// create" binding order. The sync.Pool wrapper in the
// top-level yalloc package is the idiomatic-Go stand-in for spec.md's
// explicit thread-local binding (see SPEC_FULL.md §4.5).
func Acquire() *Heap {
	for h := heapListHead.Load(); h != nil; h = h.next.Load() {
		if h.bound.CompareAndSwap(false, true) {
			return h
		}
	}
	h := newHeap()
	h.bound.Store(true)
	pushGlobalList(h)
	return h
}

// Release flushes any buffered remote frees and marks the heap free for
// Acquire to hand to a different session. The heap's regions, rings and
// directory all survive untouched — only ownership changes, per
// spec.md's reuse-over-reclaim policy.
func Release(h *Heap) {
	h.Router.FlushAll(func(r *region.Region) router.DestHeap {
		d := ByID(r.HeapID)
		if d == nil {
			return nil
		}
		return d
	})
	h.bound.Store(false)
}

// Classes exposes the process-wide size-class table.
func (h *Heap) Classes() *sizeclass.Table { return h.classes }

// Pool exposes the heap's region descriptor pool, for the trim scan.
func (h *Heap) Pool() *region.Pool { return &h.pool }

// ForEach visits every heap ever created, bound or not, newest first
// (heaps are pushed at the head of the global list). Used by the statistics aggregator and the periodic trim driver
// (spec.md §4.5/§7), neither of which needs exclusive access — regions'
// own locks and atomics make a racing Trim or a racing stats read safe.
func ForEach(fn func(*Heap)) {
	for h := heapListHead.Load(); h != nil; h = h.next.Load() {
		fn(h)
	}
}
