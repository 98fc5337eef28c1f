package region

import "sync/atomic"

// dirBits is the width of each of the three radix levels. spec.md §4.1
// leaves Dir1/Dir2/Dir3 as implementation-chosen constants; a uniform
// 12 bits per level gives a 4096-entry level (32 KiB of
// atomic.Pointer slots) and covers 36 bits of page number. The page
// shift comes from the page size passed to NewDirectory (see
// Directory.pageShift): with 4 KiB pages that reaches 48 bits of address
// space, with 16 KiB pages 50 bits.
const (
	dirBits = 12
	dirSize = 1 << dirBits
	dirMask = dirSize - 1
)

type leafNode struct {
	leaf [dirSize]atomic.Pointer[Region]
}

type midNode struct {
	mid [dirSize]atomic.Pointer[leafNode]
}

// Directory is the three-level radix from spec.md §4.1. A per-heap
// Directory is written only by its owning heap (serialized by the
// heap's lock) and installs with a plain store; the process-wide global
// Directory is written by any heap reconciling a remote free and
// installs with a compare-swap, per spec.md's local-vs-global split.
type Directory struct {
	global    bool
	pageShift uint
	top       [dirSize]atomic.Pointer[midNode]
}

// NewDirectory builds an empty directory. pageSize must be the
// power-of-two granule osmem.PageSize reports.
func NewDirectory(global bool, pageSize int) *Directory {
	shift := 0
	for p := pageSize; p > 1; p >>= 1 {
		shift++
	}
	return &Directory{global: global, pageShift: uint(shift)}
}

func (d *Directory) indices(addr uintptr) (i1, i2, i3 uintptr) {
	page := addr >> d.pageShift
	i3 = page & dirMask
	page >>= dirBits
	i2 = page & dirMask
	page >>= dirBits
	i1 = page & dirMask
	return
}

func (d *Directory) mid(i1 uintptr, create bool) *midNode {
	slot := &d.top[i1]
	if m := slot.Load(); m != nil {
		return m
	}
	if !create {
		return nil
	}
	fresh := &midNode{}
	if slot.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return slot.Load()
}

func (d *Directory) leafAt(m *midNode, i2 uintptr, create bool) *leafNode {
	slot := &m.mid[i2]
	if l := slot.Load(); l != nil {
		return l
	}
	if !create {
		return nil
	}
	fresh := &leafNode{}
	if slot.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return slot.Load()
}

// Lookup returns the region owning addr, or nil if no region currently
// claims that page. Three masked shifts and two dereferences, no locks,
// per spec.md §4.1 — a reader never follows a nil pointer since a nil
// leaf or mid node simply means "not found".
func (d *Directory) Lookup(addr uintptr) *Region {
	i1, i2, i3 := d.indices(addr)
	m := d.mid(i1, false)
	if m == nil {
		return nil
	}
	l := d.leafAt(m, i2, false)
	if l == nil {
		return nil
	}
	return l.leaf[i3].Load()
}

// Insert installs r for every page in [base,base+length). On the global
// directory this is a compare-swap expecting a nil previous occupant;
// false means the slot was already owned, which spec.md §4.1 calls a
// bug in the caller, not a normal failure mode.
func (d *Directory) Insert(r *Region, base, length uintptr) bool {
	ps := uintptr(1) << d.pageShift
	ok := true
	for a := base; a < base+length; a += ps {
		i1, i2, i3 := d.indices(a)
		m := d.mid(i1, true)
		l := d.leafAt(m, i2, true)
		slot := &l.leaf[i3]
		if d.global {
			if !slot.CompareAndSwap(nil, r) {
				ok = false
			}
		} else {
			slot.Store(r)
		}
	}
	return ok
}

// Remove clears the directory entries for [base,base+length). expect is
// the region each slot must currently hold; on the global directory an
// unexpected occupant is an internal-error condition (spec.md §4.1).
func (d *Directory) Remove(expect *Region, base, length uintptr) bool {
	ps := uintptr(1) << d.pageShift
	ok := true
	for a := base; a < base+length; a += ps {
		i1, i2, i3 := d.indices(a)
		m := d.mid(i1, false)
		if m == nil {
			ok = false
			continue
		}
		l := d.leafAt(m, i2, false)
		if l == nil {
			ok = false
			continue
		}
		slot := &l.leaf[i3]
		if d.global {
			if !slot.CompareAndSwap(expect, nil) {
				ok = false
			}
		} else {
			slot.Store(nil)
		}
	}
	return ok
}
