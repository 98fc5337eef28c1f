package diag

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Counters accumulates the error kinds spec.md §7 requires to be counted
// per heap and aggregated at statistics time. Every field is an
// independent atomic counter; spec.md doesn't ask for them to be
// updated together, so there is no combined lock.
type Counters struct {
	OOM             atomic.Uint64
	InvalidFree     atomic.Uint64
	DoubleFree      atomic.Uint64
	SizedMismatch   atomic.Uint64
	InvalidRealloc  atomic.Uint64
	InternalAsserts atomic.Uint64
}

// Snapshot is a point-in-time read of Counters for statistics printing.
type Snapshot struct {
	OOM, InvalidFree, DoubleFree, SizedMismatch, InvalidRealloc, InternalAsserts uint64
}

// Load takes a consistent-enough snapshot (each field read
// independently, as spec.md's relaxed-ordering counters allow).
func (c *Counters) Load() Snapshot {
	return Snapshot{
		OOM:             c.OOM.Load(),
		InvalidFree:     c.InvalidFree.Load(),
		DoubleFree:      c.DoubleFree.Load(),
		SizedMismatch:   c.SizedMismatch.Load(),
		InvalidRealloc:  c.InvalidRealloc.Load(),
		InternalAsserts: c.InternalAsserts.Load(),
	}
}

// Add merges another heap's counters into this one — used when
// aggregating per-heap counters at statistics time (spec.md §7).
func (c *Counters) Add(o *Counters) {
	c.OOM.Add(o.OOM.Load())
	c.InvalidFree.Add(o.InvalidFree.Load())
	c.DoubleFree.Add(o.DoubleFree.Load())
	c.SizedMismatch.Add(o.SizedMismatch.Load())
	c.InvalidRealloc.Add(o.InvalidRealloc.Load())
	c.InternalAsserts.Add(o.InternalAsserts.Load())
}

// ReportDoubleFree counts a double-free/double-reallocate. It prints a
// one-line diagnostic only when YALLOC_CHECK has the CheckPrint bit set
// (and not CheckCountIgnore); with YALLOC_CHECK unset nothing is
// printed. Every occurrence prints, not only the first. Escalates to
// process termination when CheckExitOnError is set.
func ReportDoubleFree(c *Counters, ptr uintptr, gotState, wantState uint32) {
	c.DoubleFree.Add(1)
	if Global.Check&CheckCountIgnore != 0 || suppressed("double_free") {
		return
	}
	if Global.Check&CheckPrint != 0 {
		fmt.Fprintf(os.Stderr, "yalloc: double free at %#x: state=%d want=%d\n", ptr, gotState, wantState)
	}
	if Global.Check&CheckExitOnError != 0 {
		os.Exit(1)
	}
}

// ReportInvalidFree counts and optionally prints an invalid-free
// diagnostic (pointer not owned by any region, or interior to a cell).
func ReportInvalidFree(c *Counters, ptr uintptr, reason string) {
	c.InvalidFree.Add(1)
	if Global.Check&CheckCountIgnore != 0 || suppressed("invalid_free") {
		return
	}
	if Global.Check&CheckPrint != 0 {
		fmt.Fprintf(os.Stderr, "yalloc: invalid free at %#x: %s\n", ptr, reason)
	}
	if Global.Check&CheckExitOnError != 0 {
		os.Exit(1)
	}
}

// ReportSizedMismatch counts a release_sized size disagreement.
func ReportSizedMismatch(c *Counters, ptr uintptr, got, want uintptr) {
	c.SizedMismatch.Add(1)
	if suppressed("sized_mismatch") {
		return
	}
	if Global.Check&CheckPrint != 0 && Global.Check&CheckCountIgnore == 0 {
		fmt.Fprintf(os.Stderr, "yalloc: release_sized mismatch at %#x: got=%d want=%d\n", ptr, got, want)
	}
}

// Suppress, when non-nil, gates every Report* function's printing
// (never the counting) by diagnostic name, per spec.md §6's suppression
// file. The yalloc package wires this at init from YALLOC_SUPPRESS_FILE;
// tests and other callers that never set it get no suppression.
var Suppress *Suppression

func suppressed(name string) bool {
	return Suppress != nil && !Suppress.Enabled(name)
}

// assertionsEnabled gates internal-invariant checks. Go has no clean
// compile-time #ifdef; a const bool guard lets the compiler dead-code
// eliminate the checks entirely when false, matching spec.md §7's
// "Internal assertion ... may be compiled out".
const assertionsEnabled = true

// Assert panics with context if assertionsEnabled and cond is false,
// mirroring the teacher's throw(...) idiom in malloc.go/mheap.go: a
// non-returning call used for invariant violations, never for expected
// user errors (those go through the Report* counters above instead).
func Assert(c *Counters, cond bool, msg string) {
	if !assertionsEnabled || cond {
		return
	}
	c.InternalAsserts.Add(1)
	panic("yalloc: internal assertion failed: " + msg)
}

// Fail is Assert's unconditional form, for code paths that are
// unreachable unless an invariant elsewhere has already broken.
func Fail(c *Counters, msg string) {
	c.InternalAsserts.Add(1)
	panic("yalloc: " + msg)
}

// Trace prints one call-site line when YALLOC_TRACE's basic bit is set,
// per spec.md §6's "pushes a call-site tag" requirement on every
// dispatch entry point. op is the entry point name, tag the caller's
// call-site identifier.
func Trace(op string, tag uint32, n uintptr) {
	if Global.Trace&TraceBasic == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "yalloc: %s tag=%d n=%d\n", op, tag, n)
}
