package yalloc

import (
	"fmt"
	"os"

	"github.com/jorisgeer/yalloc-sub000/internal/diag"
	"github.com/jorisgeer/yalloc-sub000/internal/heap"
)

// Stats is the process-wide diagnostic snapshot spec.md §7/§6 describes
// (Yalloc_stats bitmask): aggregated error counters across every heap
// ever created, live or idle.
type Stats struct {
	HeapCount int
	diag.Snapshot
}

// Snapshot aggregates every heap's counters, the way the teacher's
// memstats aggregates per-mcache/mcentral counters at read time rather
// than keeping a single contended global counter.
func Snapshot() Stats {
	var agg diag.Counters
	var s Stats
	heap.ForEach(func(h *heap.Heap) {
		s.HeapCount++
		agg.Add(&h.Counters)
	})
	s.Snapshot = agg.Load()
	return s
}

// PrintStats writes the summary spec.md §7's Yalloc_stats bit 0
// requests to stderr, gated by the loaded configuration. Call it from
// an exit hook; the allocator itself never calls this.
func PrintStats() {
	if diag.Global.Stats&diag.StatsSummary == 0 {
		return
	}
	s := Snapshot()
	fmt.Fprintf(os.Stderr,
		"yalloc: heaps=%d oom=%d invalid_free=%d double_free=%d sized_mismatch=%d invalid_realloc=%d asserts=%d\n",
		s.HeapCount, s.OOM, s.InvalidFree, s.DoubleFree, s.SizedMismatch, s.InvalidRealloc, s.InternalAsserts)
}

// Trim runs one aging-scan pass over every heap, per spec.md §4.5's
// periodic trim (the caller supplies the periodicity — this package
// does not start its own timer, matching spec.md §1's "statistics
// printing ... are collaborators" stance that ambient drivers live
// outside the core).
func Trim() {
	heap.ForEach(func(h *heap.Heap) { h.Trim() })
}
