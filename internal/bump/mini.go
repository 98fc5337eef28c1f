package bump

import "sync/atomic"

// Mini is a small bump arena owned by a Heap (internal/heap maps one
// lazily per heap), serving that heap's first handful of requests of at
// most one granule. It is not anchored on a per-goroutine descriptor and
// is not used before a heap is bound. Cells are a fixed 16-byte granule;
// each has an atomic uint32 state word and a uint16 net-length word,
// kept in two slices alongside mem.
type Mini struct {
	mem   []byte
	pos   uint32 // next ungranted granule index
	state []atomic.Uint32
	ulen  []uint16
}

const (
	miniGranule = 16

	miniFree  uint32 = 0
	miniLive  uint32 = 1
	miniFreed uint32 = 2
)

// NewMini installs a mini arena over mem, whose length should be a small
// multiple of miniGranule (spec.md suggests a few hundred bytes — enough
// for the first handful of allocations, not a general-purpose engine).
func NewMini(mem []byte) *Mini {
	n := uint32(len(mem) / miniGranule)
	return &Mini{
		mem:   mem,
		state: make([]atomic.Uint32, n),
		ulen:  make([]uint16, n),
	}
}

// Alloc serves n bytes (n must fit in a single granule, i.e. n <=
// miniGranule) from the bump cursor. ok is false once the arena is
// exhausted or n exceeds a granule; the owning heap then serves the
// request from its other engines.
func (m *Mini) Alloc(n uintptr) (ptr uintptr, ok bool) {
	if n > miniGranule || int(m.pos) >= len(m.state) {
		return 0, false
	}
	idx := m.pos
	m.pos++
	m.state[idx].Store(miniLive)
	m.ulen[idx] = uint16(n)
	return uintptr(idx) * miniGranule, true
}

// granuleOf converts a mini-relative pointer back to its granule index,
// rejecting anything not on a granule boundary or outside the carved
// range.
func (m *Mini) granuleOf(ptr uintptr) (uint32, bool) {
	if ptr%miniGranule != 0 {
		return 0, false
	}
	idx := ptr / miniGranule
	if idx >= uintptr(m.pos) {
		return 0, false
	}
	return uint32(idx), true
}

// Free marks the granule at ptr freed via a 1->2 CAS, reporting a double
// free (ok=false) on any state other than live.
func (m *Mini) Free(ptr uintptr) (ok bool, gotState uint32) {
	idx, valid := m.granuleOf(ptr)
	if !valid {
		return false, miniFree
	}
	if !m.state[idx].CompareAndSwap(miniLive, miniFreed) {
		return false, m.state[idx].Load()
	}
	return true, miniFreed
}

// NetLen returns the originally requested length for ptr, or 0 if ptr
// isn't a currently-live granule.
func (m *Mini) NetLen(ptr uintptr) uintptr {
	idx, valid := m.granuleOf(ptr)
	if !valid || m.state[idx].Load() != miniLive {
		return 0
	}
	return uintptr(m.ulen[idx])
}

// Bytes returns the byte range backing the granule at ptr.
func (m *Mini) Bytes(ptr uintptr) []byte {
	return m.mem[ptr : ptr+miniGranule]
}

// Exhausted reports whether the arena has no granules left to carve.
func (m *Mini) Exhausted() bool { return int(m.pos) >= len(m.state) }
