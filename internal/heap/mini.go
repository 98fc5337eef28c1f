package heap

import (
	"github.com/jorisgeer/yalloc-sub000/internal/bump"
	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
)

// miniBytes is the fixed size of the heap's mini arena, which serves the
// heap's first handful of requests of at most one granule.
const miniBytes = 512

// MiniAlloc serves n bytes from the heap's mini arena, lazily mapping it
// on first use. Once the arena is exhausted this and every later call
// return ok=false, signaling callers to route through the regular
// class/bump path instead.
func (h *Heap) MiniAlloc(n uintptr) (ptr uintptr, ok bool) {
	h.Lock()
	defer h.Unlock()

	if h.mini == nil {
		base, mem, err := osmem.Map(miniBytes)
		if err != nil {
			return 0, false
		}
		h.miniBase = base
		h.mini = bump.NewMini(mem[:miniBytes])
	}
	if h.mini.Exhausted() {
		return 0, false
	}
	off, got := h.mini.Alloc(n)
	if !got {
		return 0, false
	}
	return h.miniBase + off, true
}

// MiniOwns reports whether ptr falls inside this heap's mini arena.
func (h *Heap) MiniOwns(ptr uintptr) bool {
	h.Lock()
	defer h.Unlock()
	return h.mini != nil && ptr >= h.miniBase && ptr < h.miniBase+miniBytes
}

// FindMiniOwner scans every heap for the one whose mini arena contains
// ptr. Mini arenas are never installed in either directory (they are
// smaller than a page, and the directory is page-granular), so a mini
// pointer allocated through one pooled *Heap and released through
// another (the package-level Default/Put convenience wrappers make no
// promise that the same heap serves both calls) cannot be resolved by
// the caller's own heap alone. Release/UsableSize fall back to this scan
// only after both directory lookups and the caller's own MiniOwns miss,
// so the common case (caller's heap owns the pointer) never pays for it.
func FindMiniOwner(ptr uintptr) *Heap {
	var owner *Heap
	ForEach(func(h *Heap) {
		if owner == nil && h.MiniOwns(ptr) {
			owner = h
		}
	})
	return owner
}

// MiniFree marks a mini-arena granule freed.
func (h *Heap) MiniFree(ptr uintptr) (ok bool, gotState uint32) {
	h.Lock()
	defer h.Unlock()
	return h.mini.Free(ptr - h.miniBase)
}

// MiniNetLen returns the originally requested length for ptr.
func (h *Heap) MiniNetLen(ptr uintptr) uintptr {
	h.Lock()
	defer h.Unlock()
	return h.mini.NetLen(ptr - h.miniBase)
}
