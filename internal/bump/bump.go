// Package bump implements the linear allocation engines spec.md §4.4
// describes: per-heap Bump regions for small requests whose class isn't
// yet popular enough to warrant a slab, and a small Mini arena that each
// heap maps lazily for its first few granule-sized requests. Both
// only ever grow a cursor; frees are marked for double-free detection
// but never reclaim space, mirroring the teacher's tiny allocator in
// malloc.go (which also never frees its combined sub-allocations
// individually — only the whole backing block, once everything inside
// it is unreachable).
package bump

import (
	"sync/atomic"

	"github.com/jorisgeer/yalloc-sub000/internal/region"
)

// entry state values.
const (
	entryLive uint32 = iota + 1
	entryFreed
)

type entry struct {
	length uint32
	state  atomic.Uint32
}

// Meta is the bump-region metadata hung off region.Region.Meta when
// Region.Kind == region.KindBump.
type Meta struct {
	Pos     uintptr // bump cursor, bytes from Region.Base
	entries map[uintptr]*entry
}

// New installs a fresh bump region over mem.
func New(r *region.Region, heapID, id uint32, base uintptr, mem []byte) {
	r.HeapID = heapID
	r.ID = id
	r.Kind = region.KindBump
	r.Base = base
	r.Len = uintptr(len(mem))
	r.Mem = mem
	r.Age.Store(uint32(region.AgeActive))
	r.Meta = &Meta{entries: make(map[uintptr]*entry)}
}

func meta(r *region.Region) *Meta { return r.Meta.(*Meta) }

// Alloc advances the bump cursor by n (8-byte aligned) and returns the
// carved address, or ok=false if the region has no room left.
func Alloc(r *region.Region, n uintptr) (ptr uintptr, ok bool) {
	m := meta(r)
	aligned := (n + 7) &^ 7
	if m.Pos+aligned > r.Len {
		return 0, false
	}
	off := m.Pos
	m.Pos += aligned
	m.entries[off] = &entry{length: uint32(n), state: atomic.Uint32{}}
	m.entries[off].state.Store(entryLive)
	return r.Base + off, true
}

// Free marks the entry at ptr freed, reporting a double free (ok=false)
// if it was already freed or was never a valid bump allocation.
func Free(r *region.Region, ptr uintptr) (ok bool) {
	m := meta(r)
	off := ptr - r.Base
	e, found := m.entries[off]
	if !found {
		return false
	}
	return e.state.CompareAndSwap(entryLive, entryFreed)
}

// NetLen returns the originally requested length for ptr, or 0 if ptr
// isn't a live entry in this region.
func NetLen(r *region.Region, ptr uintptr) uintptr {
	m := meta(r)
	off := ptr - r.Base
	e, found := m.entries[off]
	if !found || e.state.Load() != entryLive {
		return 0
	}
	return uintptr(e.length)
}

// Remaining reports how many bytes are still free in the region.
func Remaining(r *region.Region) uintptr {
	return r.Len - meta(r).Pos
}
