// Package sync implements the kernel's synchronization primitives:
// spinlock, mutex, condition variable, reader/writer lock, semaphore,
// and the per-page memory lock. Every primitive but the spinlock is
// built on package sched's deschedule/make_runnable contract.
//
// This package is the kernel's replacement for stdlib sync in code
// paths reachable from user syscalls: stdlib sync.Mutex cannot express
// the required wait discipline (FIFO order, a user-observable wait
// flag, kernel-internal vs user-initiated wakeups).
package sync

import "sync/atomic"

// Spinlock_t is the only interrupt-context-safe primitive: a
// test-and-set word. It never sleeps, so it carries no dependency on
// package sched.
type Spinlock_t struct {
	state uint32
}

// Lock busy-waits until the lock is acquired. On real hardware this
// would also disable interrupts; here, where there is no interrupt
// flag to mask, the caller is simply expected to keep the critical
// section short.
func (l *Spinlock_t) Lock() {
	for !l.TryLock() {
		// busy-wait; real hardware would also be spinning here
	}
}

// TryLock attempts a single test-and-set and reports success.
func (l *Spinlock_t) TryLock() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Unlock releases the lock. Unlocking an already-free lock is a no-op.
func (l *Spinlock_t) Unlock() {
	atomic.StoreUint32(&l.state, 0)
}
