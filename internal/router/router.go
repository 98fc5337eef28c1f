// Package router implements the cross-heap remote-free path spec.md
// §4.6 describes: freeing a pointer from a goroutine that doesn't own
// its region batches the cell instead of touching the owning heap's
// free lists directly. Batches are flushed opportunistically after a
// run of local frees, or forcibly once a buffer grows past a
// threshold, each time trying (never blocking) to acquire the
// destination heap. This mirrors the teacher's mcentral design goal —
// keep a non-owning "please free this span's object" path off the fast
// allocate path — generalized from mcentral's single shared per-class
// lock to the spec's per-destination-heap, try-lock-and-batch model.
package router

import (
	"sync"

	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/slab"
)

// DestHeap is the slice of a Heap the router needs. Defined here instead
// of importing internal/heap directly, since Heap embeds a Router per
// spec.md §4.5 and a direct import would cycle.
type DestHeap interface {
	ID() uint32
	TryLock() bool
	Unlock()
}

// Opportunistic-flush tuning, spec.md §4.6 "Buffer_flush" and the
// local-free-count trigger.
const (
	flushThreshold = 64 // forced flush once a region's buffer reaches this
	dropCeiling    = 4 * flushThreshold
	flushEveryN    = 32 // opportunistic flush cadence, counted in local frees
)

type regionBuffer struct {
	mu      sync.Mutex
	region  *region.Region
	pending []uint32
}

// Router batches remotely-freed cells per destination region for one
// source heap. The zero value is ready to use.
type Router struct {
	mu       sync.Mutex
	buffers  map[*region.Region]*regionBuffer
	localCnt uint32
}

// New returns an empty Router.
func New() *Router {
	return &Router{buffers: make(map[*region.Region]*regionBuffer)}
}

func (rt *Router) buffer(r *region.Region) *regionBuffer {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b, ok := rt.buffers[r]
	if !ok {
		b = &regionBuffer{region: r}
		rt.buffers[r] = b
	}
	return b
}

// Enqueue records a remote free of cell idx in r, belonging to dest.
// The cell must already have made the 1->3 local state transition
// (slab.MarkRemoteFree) before calling Enqueue. It flushes immediately
// once the buffer reaches flushThreshold entries.
func (rt *Router) Enqueue(r *region.Region, idx uint32, dest DestHeap) {
	b := rt.buffer(r)
	b.mu.Lock()
	b.pending = append(b.pending, idx)
	full := len(b.pending) >= flushThreshold
	b.mu.Unlock()

	if full {
		rt.flushOne(b, dest)
	}
}

// NoteLocalFree should be called once per ordinary (non-remote) free on
// the owning heap; every flushEveryN calls it opportunistically flushes
// every pending buffer, per spec.md §4.6's "flush after a run of local
// frees" trigger.
func (rt *Router) NoteLocalFree(destFor func(r *region.Region) DestHeap) {
	rt.mu.Lock()
	rt.localCnt++
	due := rt.localCnt%flushEveryN == 0
	bufs := make([]*regionBuffer, 0, len(rt.buffers))
	if due {
		for _, b := range rt.buffers {
			bufs = append(bufs, b)
		}
	}
	rt.mu.Unlock()

	for _, b := range bufs {
		rt.flushOne(b, destFor(b.region))
	}
}

// flushOne attempts to deliver a region's pending indices to its owning
// region (via slab.DeliverRemote, which takes the region's own lock).
// dest gates the attempt with a try-lock so a busy destination heap
// never stalls the caller; on repeated failure the buffer is capped at
// dropCeiling, dropping the oldest entries (spec.md §4.6's "bounded
// drop-oldest fallback") rather than growing without limit.
func (rt *Router) flushOne(b *regionBuffer, dest DestHeap) {
	if dest == nil || !dest.TryLock() {
		b.mu.Lock()
		if len(b.pending) > dropCeiling {
			drop := len(b.pending) - dropCeiling
			b.pending = b.pending[drop:]
		}
		b.mu.Unlock()
		return
	}
	defer dest.Unlock()

	b.mu.Lock()
	idxs := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(idxs) == 0 {
		return
	}
	slab.DeliverRemote(b.region, idxs)
}

// FlushAll forces delivery of every buffered region regardless of the
// opportunistic cadence, used when a heap is about to be reset or
// released (spec.md §4.5, heap reuse must not leak pending remote
// frees).
func (rt *Router) FlushAll(destFor func(r *region.Region) DestHeap) {
	rt.mu.Lock()
	bufs := make([]*regionBuffer, 0, len(rt.buffers))
	for _, b := range rt.buffers {
		bufs = append(bufs, b)
	}
	rt.mu.Unlock()

	for _, b := range bufs {
		rt.flushOne(b, destFor(b.region))
	}
}

// Forget drops any buffered state for r, used once a region has been
// fully reclaimed and can no longer be a valid flush target.
func (rt *Router) Forget(r *region.Region) {
	rt.mu.Lock()
	delete(rt.buffers, r)
	rt.mu.Unlock()
}
