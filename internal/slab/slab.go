// Package slab implements the fixed-cell-size region engine spec.md §4.2
// specifies: per-cell state, a local LIFO free list, a never-allocated
// frontier, and a remote free list drained under the region lock. The
// state machine and its tie-breaks (carve-from-frontier on aligned
// allocate, LIFO drain order on remote reclaim) are ported from the
// division of labor between mspan's freelist/ref fields in the teacher
// and mcentral.go's "nonempty vs empty" span bookkeeping, generalized
// from span-of-many-spans to the single-region-per-class-slot model
// spec.md uses instead.
package slab

import (
	"sync/atomic"

	"github.com/jorisgeer/yalloc-sub000/internal/region"
	"github.com/jorisgeer/yalloc-sub000/internal/sizeclass"
)

// Cell state values, spec.md §4.2.
const (
	StateNever uint32 = iota
	StateAllocated
	StateLocalFreed
	StateRemoteFreed
)

// Meta is the slab-specific metadata hung off region.Region.Meta when
// Region.Kind == region.KindSlab (spec.md §3, "Slab metadata layout").
type Meta struct {
	CellSize  uintptr
	CellCount uint32

	State []atomic.Uint32 // one per cell
	Bin   []uint32        // LIFO of locally-freed cell indices, cap == CellCount
	BinTop int            // number of valid entries in Bin

	Ini uint32 // ini-frontier: smallest never-allocated cell index

	HasLen  bool
	UserLen []uint32 // net requested length per cell, only when HasLen

	Clr bool // true until a cell is reused from a bin; frontier cells are then still zero from the fresh OS map

	RemBin []uint32 // growable remotely-freed cell indices, guarded by Region.Lock
	RemTop int
}

// New carves a fresh slab region out of mem starting at base, sized for
// cellCount cells of cellSize bytes, and installs the Meta on r.
func New(r *region.Region, heapID, id uint32, class int, cellSize uintptr, cellCount uint32, base uintptr, mem []byte) {
	r.HeapID = heapID
	r.ID = id
	r.Kind = region.KindSlab
	r.Class = class
	r.Base = base
	r.Len = uintptr(len(mem))
	r.Mem = mem
	r.Age.Store(uint32(region.AgeActive))

	m := &Meta{
		CellSize:  cellSize,
		CellCount: cellCount,
		State:     make([]atomic.Uint32, cellCount),
		Bin:       make([]uint32, 0, cellCount),
		HasLen:    cellSize > sizeclass.NoLengthThreshold,
		Clr:       true,
	}
	if m.HasLen {
		m.UserLen = make([]uint32, cellCount)
	}
	r.Meta = m
}

func meta(r *region.Region) *Meta { return r.Meta.(*Meta) }

// cellAddr returns the address of cell idx within r.
func cellAddr(r *region.Region, idx uint32) uintptr {
	return r.Base + uintptr(idx)*meta(r).CellSize
}

// CellOf locates the cell index containing ptr, rejecting pointers that
// are interior to a cell (spec.md §4.2, "reject non-multiples").
func CellOf(r *region.Region, ptr uintptr) (idx uint32, ok bool) {
	m := meta(r)
	off := ptr - r.Base
	if off%m.CellSize != 0 {
		return 0, false
	}
	i := off / m.CellSize
	if i >= uintptr(m.CellCount) {
		return 0, false
	}
	return uint32(i), true
}

// Bytes returns the byte range backing cell idx.
func Bytes(r *region.Region, idx uint32) []byte {
	m := meta(r)
	off := uintptr(idx) * m.CellSize
	return r.Mem[off : off+m.CellSize]
}

// AllocResult carries what the facade needs to finish an allocation:
// the cell's address and index, and whether the caller must zero the
// cell itself.
type AllocResult struct {
	Ptr      uintptr
	Idx      uint32
	NeedZero bool
}

// AllocLocal serves one cell following spec.md §4.2's ordered steps:
// local bin pop, then ini-frontier, then a remote-bin drain. ok is false
// only when all three are exhausted ("no space"), telling the caller to
// grow the region ring. Any successful serve resets r.Age to AgeActive:
// a region Trim has already flagged AgeEmpty (or further aged) must not
// be unlisted or unmapped out from under a cell handed out here
// (spec.md §3 Lifecycle, "reuse at any step resets age to 0").
func AllocLocal(r *region.Region) (res AllocResult, ok bool) {
	m := meta(r)

	if m.BinTop > 0 {
		idx := m.Bin[m.BinTop-1]
		m.Bin = m.Bin[:m.BinTop-1]
		m.BinTop--
		if !m.State[idx].CompareAndSwap(StateLocalFreed, StateAllocated) {
			return res, false
		}
		m.Clr = false // reused cell may carry the previous tenant's bytes
		r.Age.Store(uint32(region.AgeActive))
		return AllocResult{Ptr: cellAddr(r, idx), Idx: idx, NeedZero: true}, true
	}

	if m.Ini < m.CellCount {
		idx := m.Ini
		m.Ini++
		m.State[idx].Store(StateAllocated)
		r.Age.Store(uint32(region.AgeActive))
		return AllocResult{Ptr: cellAddr(r, idx), Idx: idx, NeedZero: !m.Clr}, true
	}

	if idx, drained := drainRemote(r); drained {
		m.Clr = false
		r.Age.Store(uint32(region.AgeActive))
		return AllocResult{Ptr: cellAddr(r, idx), Idx: idx, NeedZero: true}, true
	}

	return res, false
}

// drainRemote moves every remotely-freed cell but the last into the
// local bin (3->2) and returns the last directly to the caller (3->1),
// LIFO, per spec.md §4.2's drain tie-break ("allocate the last-entered
// remote cell to minimize cache churn").
func drainRemote(r *region.Region) (uint32, bool) {
	m := meta(r)
	r.Lock.Lock()
	defer r.Lock.Unlock()

	n := m.RemTop
	if n == 0 {
		return 0, false
	}
	last := m.RemBin[n-1]
	for i := 0; i < n-1; i++ {
		idx := m.RemBin[i]
		m.State[idx].Store(StateLocalFreed)
		m.Bin = append(m.Bin, idx)
		m.BinTop++
	}
	m.RemBin = m.RemBin[:0]
	m.RemTop = 0

	m.State[last].Store(StateAllocated)
	return last, true
}

// AllocAligned carves the next cell(s) such that the returned address
// satisfies align, used when a class's natural cell alignment doesn't
// meet an aligned_allocate request (spec.md §4.2). It only carves from
// the ini-frontier, preserving the local bin as a simple LIFO per the
// spec's tie-break, and pushes any skipped cells into the local bin as
// 0->1->2.
func AllocAligned(r *region.Region, align uintptr) (res AllocResult, ok bool) {
	m := meta(r)
	for m.Ini < m.CellCount {
		idx := m.Ini
		addr := cellAddr(r, idx)
		if addr%align == 0 {
			m.Ini++
			m.State[idx].Store(StateAllocated)
			r.Age.Store(uint32(region.AgeActive))
			return AllocResult{Ptr: addr, Idx: idx, NeedZero: !m.Clr}, true
		}
		// Skip this cell: 0->1 then immediately 1->2, parking it on the
		// local bin for ordinary allocation to reclaim later.
		m.Ini++
		m.State[idx].Store(StateAllocated)
		m.State[idx].Store(StateLocalFreed)
		m.Bin = append(m.Bin, idx)
		m.BinTop++
	}
	return res, false
}

// FreeLocal returns a cell the calling heap owns to its local bin,
// validating the pointer lands on a cell boundary within the
// ini-frontier and was actually allocated (spec.md §4.2). The returned
// bool is false on any double-free; gotState carries the state observed
// so the caller can report which of the three double-free variants
// occurred.
//
// This does not itself flip r.Age to AgeEmpty: Trim's own AgeActive scan
// (internal/heap/trim.go) is the sole owner of that transition, via
// IsEmpty below. Marking Empty here, at free time, would let a region
// reach AgeEmpty and start aging out before Trim ever has a chance to
// observe it, collapsing the spec's multi-step Active->Empty->Unlisted
// scan into a single trim call (spec.md §4.5).
func FreeLocal(r *region.Region, idx uint32) (ok bool, gotState uint32) {
	m := meta(r)
	if idx >= m.Ini {
		return false, StateNever
	}
	if !m.State[idx].CompareAndSwap(StateAllocated, StateLocalFreed) {
		return false, m.State[idx].Load()
	}
	m.Bin = append(m.Bin, idx)
	m.BinTop++
	return true, StateLocalFreed
}

// MarkRemoteFree performs the 1->3 transition a non-owning heap makes
// when releasing a cell it doesn't own (spec.md §4.2, "Cell free
// (remote)"). It never touches the local bin or the remote bin lock
// directly — the caller hands idx to the remote-free router, which
// batches it into the region's rembin on flush.
func MarkRemoteFree(r *region.Region, idx uint32) (ok bool, gotState uint32) {
	m := meta(r)
	if !m.State[idx].CompareAndSwap(StateAllocated, StateRemoteFreed) {
		return false, m.State[idx].Load()
	}
	return true, StateRemoteFreed
}

// DeliverRemote appends already-marked (state==3) cell indices into the
// region's rembin under the region lock, growing it geometrically like
// the teacher's generic append-growth helpers. Called by the remote-free
// router on flush (spec.md §4.6).
func DeliverRemote(r *region.Region, idxs []uint32) {
	if len(idxs) == 0 {
		return
	}
	m := meta(r)
	r.Lock.Lock()
	defer r.Lock.Unlock()
	if cap(m.RemBin)-len(m.RemBin) < len(idxs) {
		grown := make([]uint32, len(m.RemBin), growCap(len(m.RemBin)+len(idxs)))
		copy(grown, m.RemBin)
		m.RemBin = grown
	}
	m.RemBin = append(m.RemBin, idxs...)
	m.RemTop = len(m.RemBin)
}

func growCap(need int) int {
	c := 16
	for c < need {
		c *= 2
	}
	return c
}

// SetUserLen records the net requested length for idx, when the class
// tracks it (spec.md §4.2, "User-length storage").
func SetUserLen(r *region.Region, idx uint32, n uintptr) {
	m := meta(r)
	if m.HasLen {
		m.UserLen[idx] = uint32(n)
	}
}

// NetLen returns the stored net length for idx, or the cell size when
// the class doesn't track a separate length.
func NetLen(r *region.Region, idx uint32) uintptr {
	m := meta(r)
	if m.HasLen {
		return uintptr(m.UserLen[idx])
	}
	return m.CellSize
}

// UsableSize always returns the cell size, per spec.md §6's usable_size
// contract for slab-backed pointers.
func UsableSize(r *region.Region) uintptr { return meta(r).CellSize }

// IsEmpty reports whether every cell the region has ever carved is
// currently in one of the free bins.
func IsEmpty(r *region.Region) bool {
	m := meta(r)
	return uint32(m.BinTop)+uint32(m.RemTop) == m.Ini && m.Ini > 0
}

// HasSpace reports whether the region can still serve an allocation
// without a remote drain (local bin or frontier non-empty), used by the
// per-class region ring to pick a claspos per spec.md §4.5.
func HasSpace(r *region.Region) bool {
	m := meta(r)
	return m.BinTop > 0 || m.Ini < m.CellCount
}
