package proc

import (
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/mem"
	"github.com/zhengguan/15410-sub000/sched"
)

// lockPages write-locks every page base in [base, base+length) in
// ascending order, so new_pages/remove_pages cannot pull a page out
// from under a syscall mid-copy. The
// ascending order is the lock hierarchy that keeps two overlapping
// range operations from deadlocking.
func (k *Kern_t) lockPages(self *Tcb_t, base, length int) {
	for va := base; va < base+length; va += mem.PGSIZE {
		k.Mlock.Lock(k.Sched, self.Tcb_t, va)
	}
}

func (k *Kern_t) unlockPages(self *Tcb_t, base, length int) {
	for va := base; va < base+length; va += mem.PGSIZE {
		k.Mlock.Unlock(k.Sched, self.Tcb_t, va)
	}
}

// RLockPages read-locks the pages covering [va, va+n), for syscalls
// about to dereference a validated user buffer. The companion
// RUnlockPages releases them.
func (k *Kern_t) RLockPages(self *Tcb_t, va, n int) {
	base := va &^ (mem.PGSIZE - 1)
	for a := base; a < va+n; a += mem.PGSIZE {
		k.Mlock.RLock(k.Sched, self.Tcb_t, a)
	}
}

// RUnlockPages releases read locks taken by RLockPages.
func (k *Kern_t) RUnlockPages(self *Tcb_t, va, n int) {
	base := va &^ (mem.PGSIZE - 1)
	for a := base; a < va+n; a += mem.PGSIZE {
		k.Mlock.RUnlock(k.Sched, self.Tcb_t, a)
	}
}

// NewPages implements new_pages(base, len), write-locking
// the target range so no concurrent syscall is mid-read on those pages;
// see package vmm for the full contract and error taxonomy.
func (k *Kern_t) NewPages(self *Tcb_t, base, length int) defs.Err_t {
	if base < 0 || length <= 0 {
		return -defs.EINVAL
	}
	k.lockPages(self, base, length)
	defer k.unlockPages(self, base, length)
	return self.Pcb.As.New_pages(base, length)
}

// RemovePages implements remove_pages(base). The recorded length is
// looked up first so the whole range can be write-locked before the
// teardown begins.
func (k *Kern_t) RemovePages(self *Tcb_t, base int) defs.Err_t {
	reg, ok := self.Pcb.As.Region(base)
	if !ok {
		return -defs.EINVAL
	}
	k.lockPages(self, reg.Base, reg.Len)
	defer k.unlockPages(self, reg.Base, reg.Len)
	return self.Pcb.As.Remove_pages(base)
}

// GetTicks implements get_ticks().
func (k *Kern_t) GetTicks(self *Tcb_t) int {
	return int(k.Sched.GetTicks())
}

// Sleep implements sleep(ticks).
func (k *Kern_t) Sleep(self *Tcb_t, ticks int) defs.Err_t {
	return k.Sched.Sleep(self.Tcb_t, ticks)
}

// Yield implements yield(tid); tid == -1 means "let the scheduler
// choose".
func (k *Kern_t) Yield(self *Tcb_t, tid defs.Tid_t) defs.Err_t {
	return k.Sched.Yield(self.Tcb_t, tid)
}

// Deschedule implements deschedule(flag); the user-facing syscall always
// deschedules with KindUser so a subsequent make_runnable syscall (as
// opposed to only a kernel-internal wakeup) may reschedule it.
func (k *Kern_t) Deschedule(self *Tcb_t, flag *int32) defs.Err_t {
	return k.Sched.Deschedule(self.Tcb_t, flag, sched.KindUser)
}

// MakeRunnable implements make_runnable(tid): it looks tid up in the tid
// registry and wakes it only if it was descheduled by the user-facing
// deschedule (a sleep()-descheduled or sync-primitive-parked thread,
// both KindKern, are immune).
func (k *Kern_t) MakeRunnable(tid defs.Tid_t) defs.Err_t {
	v, ok := k.Tids.Get(int(tid))
	if !ok {
		return -defs.ESRCH
	}
	tcb := v.(*Tcb_t)
	return k.Sched.MakeRunnable(tcb.Tcb_t, sched.KindUser)
}

// Misbehave implements the debug-only misbehave() call: mode 4 makes
// the caller yield once, on the spot, via Yield(-1), used by stress
// tests to perturb deterministic scheduling. Every other mode, 0
// included, is a no-op. No mode is remembered, so later calls such as
// fork are unaffected.
func (k *Kern_t) Misbehave(self *Tcb_t, mode int) {
	if mode == 4 {
		k.Sched.Yield(self.Tcb_t, -1)
	}
}
