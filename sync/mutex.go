package sync

import (
	"sync/atomic"

	"github.com/zhengguan/15410-sub000/sched"
)

// waiter_t pairs a parked TCB with the reject flag Deschedule polls.
type waiter_t struct {
	tcb    *sched.Tcb_t
	reject int32
}

// Mutex_t is a FIFO-fair sleeping mutex: if free, the caller takes it
// immediately; otherwise it enqueues itself and deschedules
// kernel-internally until unlock hands it the lock. count starts at 1
// and every locker decrements it, so a negative count is the number of
// queued waiters. Unlock transfers ownership directly to the head of
// the queue rather than marking the mutex free and letting waiters
// race for it.
type Mutex_t struct {
	wait  Spinlock_t
	count int // 1 == free; 0 == held; -n == held with n waiters
	list  []*waiter_t
}

// MkMutex returns a free mutex.
func MkMutex() *Mutex_t {
	return &Mutex_t{count: 1}
}

// Lock blocks until the mutex is acquired. The count decrement and the
// wait-list append happen under the mutex's own spinlock; the
// subsequent Deschedule returns immediately when the lock was free
// (reject already set), giving the atomic enqueue-then-sleep pairing
// the descheduling contract requires.
func (mp *Mutex_t) Lock(sc *sched.Sched_t, self *sched.Tcb_t) {
	w := &waiter_t{tcb: self}

	mp.wait.Lock()
	mp.count--
	if mp.count >= 0 {
		atomic.StoreInt32(&w.reject, 1)
	} else {
		mp.list = append(mp.list, w)
	}
	mp.wait.Unlock()

	sc.Deschedule(self, &w.reject, sched.KindKern)
}

// Unlock releases the mutex, handing it to the head of the FIFO
// wait-list if one is queued. Unlocking a free mutex is a no-op.
func (mp *Mutex_t) Unlock(sc *sched.Sched_t, self *sched.Tcb_t) {
	mp.wait.Lock()
	if mp.count >= 1 {
		mp.wait.Unlock()
		return
	}
	mp.count++
	if len(mp.list) > 0 {
		w := mp.list[0]
		mp.list = mp.list[1:]
		atomic.StoreInt32(&w.reject, 1)
		sc.MakeRunnableKern(w.tcb)
	}
	mp.wait.Unlock()
}

// Held reports whether the mutex is currently held by anyone, used by
// tests asserting mutual exclusion.
func (mp *Mutex_t) Held() bool {
	mp.wait.Lock()
	defer mp.wait.Unlock()
	return mp.count <= 0
}
