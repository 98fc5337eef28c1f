// Package region defines the tagged region descriptor every served
// pointer belongs to (spec.md §3) and the three-level radix directory
// that maps an address back to its region (spec.md §4.1). Region
// ownership dispatch is a plain enum switch rather than a vtable, per
// spec.md §9's "dynamic dispatch ... small enum tag ... no vtable
// required" — mirroring how the teacher tags mspan state instead of
// subclassing it.
package region

import (
	"sync/atomic"

	"github.com/jorisgeer/yalloc-sub000/internal/spinlock"
)

// Kind tags what a Region holds. KindNone marks a descriptor whose
// memory has been released but which a stale directory reader might
// still be holding a pointer to (spec.md §9, replacing a hazard-pointer
// scheme: the descriptor survives, its Kind rejects any cell operation).
type Kind uint8

const (
	KindNone Kind = iota
	KindSlab
	KindMapped
	KindBump
	KindMini
)

func (k Kind) String() string {
	switch k {
	case KindSlab:
		return "slab"
	case KindMapped:
		return "mapped"
	case KindBump:
		return "bump"
	case KindMini:
		return "mini"
	default:
		return "none"
	}
}

// Age tracks a region's position in the trim/aging pipeline (spec.md
// §3 Lifecycle): 0 active, 1 empty, 2 unlisted, 3 memory released.
type Age uint32

const (
	AgeActive Age = iota
	AgeEmpty
	AgeUnlisted
	AgeReleased
)

// Region is the common descriptor spec.md §3 specifies for every one of
// the four region kinds. Kind-specific state (slab cell tables, mapped
// net length, bump cursor) hangs off Meta, owned and type-asserted by
// the corresponding engine package — this is the "id-plus-lookup, never
// owning pointer" rule from spec.md §9 applied between packages as much
// as between heap and region.
type Region struct {
	Lock spinlock.L

	HeapID     uint32
	ID         uint32
	Generation uint32
	Kind       Kind
	Age        atomic.Uint32 // holds an Age value; relaxed reads per spec.md §5

	Base uintptr
	Len  uintptr
	Mem  []byte // the backing slice obtained from osmem; aliases [Base,Base+Len)

	Class int // size class for KindSlab; unused otherwise

	Meta any
}

// ContainsPage reports whether the page starting at pageBase lies within
// the region's span.
func (r *Region) ContainsPage(pageBase uintptr) bool {
	return pageBase >= r.Base && pageBase < r.Base+r.Len
}

// Reuse resets a fully-drained region for a new owner and class,
// bumping Generation per spec.md §3's lifecycle rule ("may be reused
// across classes after full drain, which increments generation").
func (r *Region) Reuse(heapID uint32, kind Kind, class int) {
	r.HeapID = heapID
	r.Kind = kind
	r.Class = class
	r.Generation++
	r.Age.Store(uint32(AgeActive))
	r.Meta = nil
}

// Pool is an allocation pool of Region descriptors inside a heap
// (spec.md §2, "Region pool"). Descriptors are fixed-size objects
// recycled the way the teacher's FixAlloc recycles mspan/mcache
// structs in mfixalloc.go, except Go's GC retires the backing array for
// us — Pool only needs a free list on top of a growable slice.
type Pool struct {
	all  []*Region
	free []*Region
}

// Get returns a recycled descriptor or allocates a fresh one.
func (p *Pool) Get() *Region {
	if n := len(p.free); n > 0 {
		r := p.free[n-1]
		p.free = p.free[:n-1]
		return r
	}
	r := &Region{ID: uint32(len(p.all))}
	p.all = append(p.all, r)
	return r
}

// Put returns a fully-drained descriptor to the pool for reuse.
func (p *Pool) Put(r *Region) {
	r.Kind = KindNone
	r.Meta = nil
	p.free = append(p.free, r)
}

// All returns every descriptor the pool has ever handed out, live or
// free, for the trim scan to walk (spec.md §4.5 Aging/trim).
func (p *Pool) All() []*Region { return p.all }
