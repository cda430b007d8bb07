package shm

import (
	"sync/atomic"
)

// SpinlockSize is the size in bytes of a Spinlock's cell inside a Segment.
// Callers place spinlocks at offsets that keep each cell on its own cache
// line (see the Queue header layout) to avoid false sharing.
const SpinlockSize = 8

// Spinlock is an 8-byte busy-wait mutex overlaid on a cell inside a Segment.
// It is non-recursive and never yields to the scheduler: a holder that
// stalls stalls every other spinner indefinitely. This is intentional per
// spec.md §5 — the deployment model is a pair of trusted, cooperating
// processes, not a general-purpose lock.
type Spinlock struct {
	cell *uint64
}

// AttachSpinlock binds a Spinlock overlay to the 8-byte cell at
// segment.Ptr(offset). No memory is touched; the caller is responsible for
// having zeroed the cell exactly once (see Zero) before any holder attempts
// acquisition.
func AttachSpinlock(seg *Segment, offset uint64) Spinlock {
	return Spinlock{cell: (*uint64)(seg.Ptr(offset))}
}

// Zero atomically writes 0 to the lock cell. Queue's Attach does not call
// it: when Attach creates a queue it zeroes the whole mapping, lock cells
// included, before any peer can spin on them.
func (s Spinlock) Zero() {
	atomic.StoreUint64(s.cell, 0)
}

// Acquire spins until it holds the lock. It performs a test-and-test-and-set
// loop: a relaxed load of the cell so contended spinners don't hammer the
// cache-coherence fabric with RMW traffic, then a CompareAndSwap attempt
// once the cell looks free. The successful CompareAndSwap carries acquire
// semantics: every subsequent read in this goroutine observes stores
// released by the prior holder's Release.
func (s Spinlock) Acquire() {
	for {
		if atomic.LoadUint64(s.cell) != 0 {
			continue
		}
		if atomic.CompareAndSwapUint64(s.cell, 0, 1) {
			return
		}
	}
}

// Release stores 0 to the cell with release semantics, making every prior
// write in this goroutine visible to the next Acquire.
func (s Spinlock) Release() {
	atomic.StoreUint64(s.cell, 0)
}
