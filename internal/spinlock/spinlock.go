// Package spinlock is the allocator's only lock primitive: a 32-bit
// compare-swap cell held for the duration of a single API call, modeled
// on lock_futex.go's active-then-passive spin in the teacher. There is no
// sleep/wake queue here — spec.md §5 requires only a bounded spin budget
// followed by a slow, always-succeeding path, not an OS futex wait.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

const (
	unlocked uint32 = 0
	locked   uint32 = 1

	activeSpins = 30
)

// L is a compare-swap spinlock. Zero value is unlocked.
type L struct {
	state atomic.Uint32
}

// TryLock attempts to take the lock once, without spinning.
func (l *L) TryLock() bool {
	return l.state.CompareAndSwap(unlocked, locked)
}

// Lock spins up to a bounded budget before yielding the P, matching the
// teacher's active_spin-then-passive_spin split. It always eventually
// succeeds; callers on the fast path should prefer TryLock and fall back
// to a coarser strategy rather than block here indefinitely.
func (l *L) Lock() {
	for i := 0; ; i++ {
		if l.state.CompareAndSwap(unlocked, locked) {
			return
		}
		if i < activeSpins {
			continue
		}
		runtime.Gosched()
	}
}

// Unlock releases the lock. Unlocking a lock not held by the caller is a
// caller bug, same as the teacher's mutex.
func (l *L) Unlock() {
	l.state.Store(unlocked)
}
