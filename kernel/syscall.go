package kernel

import (
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/proc"
)

// This file is the rest of the system-call dispatch surface: the
// life-cycle, scheduling, and memory calls delegate to
// package proc, with the user-pointer halves (wait's status_ptr,
// deschedule's flag) handled here where the caller's address space is
// in reach.

// Fork implements fork(); see proc.Kern_t.Fork for the return-twice
// accommodation.
func (k *Kernel) Fork(self *proc.Tcb_t) (*proc.Pcb_t, *proc.Tcb_t, defs.Err_t) {
	return k.Kern.Fork(self)
}

// ThreadFork implements thread_fork().
func (k *Kernel) ThreadFork(self *proc.Tcb_t) (*proc.Tcb_t, defs.Err_t) {
	return k.Kern.ThreadFork(self)
}

// Gettid implements gettid().
func (k *Kernel) Gettid(self *proc.Tcb_t) defs.Tid_t {
	return self.Gettid()
}

// SetStatus implements set_status(n).
func (k *Kernel) SetStatus(self *proc.Tcb_t, n int) {
	k.Kern.SetStatus(self, n)
}

// Vanish implements vanish().
func (k *Kernel) Vanish(self *proc.Tcb_t) {
	k.Kern.Vanish(self)
}

// Wait implements wait(status_ptr): it blocks until a child can be
// reaped, then writes the child's status through status_ptr (skipped
// when zero, matching a caller that does not want the status) and
// returns the child's pid. The status write happens under the memlock
// so a sibling thread's remove_pages cannot race the store.
func (k *Kernel) Wait(self *proc.Tcb_t, statusVA int) (defs.Pid_t, defs.Err_t) {
	as := self.Pcb.As
	if statusVA != 0 {
		if err := as.CheckUserRegion(statusVA, 4, true); err != 0 {
			return 0, err
		}
	}
	pid, status, err := k.Kern.Wait(self)
	if err != 0 {
		return 0, err
	}
	if statusVA != 0 {
		k.Kern.RLockPages(self, statusVA, 4)
		defer k.Kern.RUnlockPages(self, statusVA, 4)
		if werr := as.Userwriten(statusVA, 4, status); werr != 0 {
			return pid, werr
		}
	}
	return pid, 0
}

// Yield implements yield(tid).
func (k *Kernel) Yield(self *proc.Tcb_t, tid defs.Tid_t) defs.Err_t {
	return k.Kern.Yield(self, tid)
}

// Deschedule implements deschedule(flag): the flag is read from user
// memory at call time; a non-zero value returns immediately, otherwise
// the caller sleeps until a make_runnable syscall targets it.
func (k *Kernel) Deschedule(self *proc.Tcb_t, flagVA int) defs.Err_t {
	as := self.Pcb.As
	v, err := as.Userreadn(flagVA, 4)
	if err != 0 {
		return err
	}
	flag := int32(v)
	return k.Kern.Deschedule(self, &flag)
}

// MakeRunnable implements make_runnable(tid).
func (k *Kernel) MakeRunnable(tid defs.Tid_t) defs.Err_t {
	return k.Kern.MakeRunnable(tid)
}

// Sleep implements sleep(ticks).
func (k *Kernel) Sleep(self *proc.Tcb_t, ticks int) defs.Err_t {
	return k.Kern.Sleep(self, ticks)
}

// GetTicks implements get_ticks().
func (k *Kernel) GetTicks(self *proc.Tcb_t) int {
	return k.Kern.GetTicks(self)
}

// NewPages implements new_pages(base, len).
func (k *Kernel) NewPages(self *proc.Tcb_t, base, length int) defs.Err_t {
	return k.Kern.NewPages(self, base, length)
}

// RemovePages implements remove_pages(base).
func (k *Kernel) RemovePages(self *proc.Tcb_t, base int) defs.Err_t {
	return k.Kern.RemovePages(self, base)
}

// Swexn implements swexn(stack, handler, arg, newureg); registration
// state lives on the TCB.
func (k *Kernel) Swexn(self *proc.Tcb_t, stack, entry, arg int, newureg *proc.Ureg_t) (*proc.Ureg_t, defs.Err_t) {
	return self.Swexn(stack, entry, arg, newureg)
}
