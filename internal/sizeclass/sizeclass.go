// Package sizeclass builds and queries the size-class table spec.md §3
// and §4.5 describe: class 0 for the zero-length request, tiny exact
// classes for 2/4/8, exact classes for 16/24/32, a Clasbits-granularity
// arithmetic progression between consecutive powers of two up to
// ClasThreshold, and one class per power-of-two above it, the last one
// equal to the mmap threshold so every slab-served request (below the
// threshold) has a class at least as large. The technique of growing a table octave-by-octave and
// doubling the step at each power of two is ported from initSizes in
// msize.go; the boundaries themselves are spec.md's own, not the
// teacher's tcmalloc-derived set.
//
// spec.md's worked example ("n<=16: class 3; n<=24: class 4; n<=32:
// class 5") does not leave room for the three tiny exact classes it
// also names ("Small exact: 2, 4, 8 via table") without a numbering
// contradiction, so class indices here are assigned as a concrete,
// self-consistent choice: 0=zero, 1=2B, 2=4B, 3=8B, 4=16B, 5=24B,
// 6=32B, continuing into the Clasbits progression from class 7. See
// DESIGN.md.
package sizeclass

import "sort"

const (
	// Clasbits controls the arithmetic-progression granularity between
	// consecutive powers of two below ClasThreshold, per spec.md §3.
	Clasbits = 3 // 8 sub-steps per power-of-two octave

	// ClasThreshold is the size (bytes) at or below which classes follow
	// the fine Clasbits progression; above it, one class per power-of-two
	// until the mmap threshold takes over entirely.
	ClasThreshold = 16 << 10 // 16 KiB

	// MmapThreshold is the size at or above which a request bypasses
	// slabs entirely and is served by the mapped-region engine.
	MmapThreshold = 128 << 10 // 128 KiB

	// Clasregs is the maximum number of regions any one class's ring may
	// hold open at once (spec.md §3).
	Clasregs = 32

	// NoLengthThreshold: cells at or below this size never store a
	// separate userlen entry; for these classes the net length is
	// reported as the cell size instead (spec.md §3, "omitted when cell
	// size <= a threshold").
	NoLengthThreshold = 32
)

// Table holds the induction arrays spec.md §4.5 names (claslens is
// ClassSize here) plus the small-size fast lookup tables.
type Table struct {
	classSize []uint32 // classSize[c] = largest size handled by class c
	tiny      [9]uint8 // direct lookup for n in [0,8]
	small     []uint8  // 8-byte-bucket lookup for n in (8,32]
}

// global is the process-wide table; induction never varies at runtime,
// so it is built once, the same way msize.go's initSizes runs once from
// mallocinit.
var global = build()

// Default returns the process-wide size-class table.
func Default() *Table { return global }

// NumClasses reports how many classes the table defines, including the
// reserved class 0 for zero-length requests.
func (t *Table) NumClasses() int { return len(t.classSize) }

// ClassSize returns the cell size served by class c.
func (t *Table) ClassSize(c int) uint32 { return t.classSize[c] }

// ClassOf maps a request length to its size class, per spec.md §4.5's
// monotonic rule: larger n yields a greater-or-equal class whose
// ClassSize is >= n. Callers must check n against MmapThreshold first;
// sizes at or above it bypass slabs entirely and have no class.
func (t *Table) ClassOf(n uintptr) int {
	switch {
	case n == 0:
		return 0
	case n <= 8:
		return int(t.tiny[n])
	case n <= 32:
		return int(t.small[(n+7)>>3])
	default:
		// Binary search the sorted class-size table. The teacher uses a
		// flat O(1) array indexed by a fixed-width bucket
		// (size_to_class128); that trick relies on every bucket above
		// 1024 bytes sharing one granule (128). Our progression's
		// granule changes every octave, so a single fixed-stride array
		// can't index it — a sorted-slice search over at most a few
		// dozen classes keeps ClassOf correct without needing
		// per-octave bucket arithmetic that can't be test-verified here.
		i := sort.Search(len(t.classSize), func(i int) bool {
			return uintptr(t.classSize[i]) >= n
		})
		if i == len(t.classSize) {
			return len(t.classSize) - 1
		}
		return i
	}
}

func build() *Table {
	sizes := []uint32{0, 2, 4, 8, 16, 24, 32}

	oct := uintptr(32)
	for oct < ClasThreshold {
		step := oct >> Clasbits
		if step == 0 {
			step = 1
		}
		for s := oct + step; s <= oct*2; s += step {
			sizes = append(sizes, uint32(s))
		}
		oct *= 2
	}
	for p := uintptr(ClasThreshold) * 2; p <= MmapThreshold; p *= 2 {
		sizes = append(sizes, uint32(p))
	}

	var tiny [9]uint8
	tiny[0] = 0
	tiny[1], tiny[2] = 1, 1
	tiny[3], tiny[4] = 2, 2
	tiny[5], tiny[6], tiny[7], tiny[8] = 3, 3, 3, 3

	small := make([]uint8, 5) // indices (n+7)>>3 for n in (8,32] -> 2..4
	for n := uintptr(9); n <= 32; n++ {
		idx := (n + 7) >> 3
		c := sort.Search(len(sizes), func(j int) bool { return uintptr(sizes[j]) >= n })
		small[idx] = uint8(c)
	}

	return &Table{classSize: sizes, tiny: tiny, small: small}
}
