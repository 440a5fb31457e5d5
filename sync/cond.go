package sync

import (
	"sync/atomic"

	"github.com/zhengguan/15410-sub000/sched"
)

// Cond_t is a FIFO-signal condition variable: waiters
// queue in arrival order; signal wakes the head, broadcast wakes all.
type Cond_t struct {
	wait Spinlock_t
	list []*waiter_t
}

// MkCond returns an empty condition variable.
func MkCond() *Cond_t {
	return &Cond_t{}
}

// Wait implements the condvar wait contract: mp, if non-nil,
// is released only *after* self is placed on the wait-list (so a
// concurrent Signal/Broadcast cannot be lost between the unlock and the
// park), and is reacquired before Wait returns. Spurious wakeups are not
// observable: Deschedule only returns once a matching MakeRunnable has
// actually targeted this waiter.
func (cv *Cond_t) Wait(sc *sched.Sched_t, self *sched.Tcb_t, mp *Mutex_t) {
	w := &waiter_t{tcb: self}

	cv.wait.Lock()
	cv.list = append(cv.list, w)
	cv.wait.Unlock()

	if mp != nil {
		mp.Unlock(sc, self)
	}

	sc.Deschedule(self, &w.reject, sched.KindKern)

	if mp != nil {
		mp.Lock(sc, self)
	}
}

// Signal wakes the longest-waiting thread, if any. The wait-list
// removal and the scheduler-side wakeup happen under the condvar's own
// spinlock, so a waiter can never be observed off the list but not yet
// runnable.
func (cv *Cond_t) Signal(sc *sched.Sched_t) {
	cv.wait.Lock()
	defer cv.wait.Unlock()
	if len(cv.list) == 0 {
		return
	}
	w := cv.list[0]
	cv.list = cv.list[1:]
	atomic.StoreInt32(&w.reject, 1)
	sc.MakeRunnableKern(w.tcb)
}

// Broadcast wakes every waiting thread, under the same atomicity
// boundary as Signal.
func (cv *Cond_t) Broadcast(sc *sched.Sched_t) {
	cv.wait.Lock()
	defer cv.wait.Unlock()
	for _, w := range cv.list {
		atomic.StoreInt32(&w.reject, 1)
		sc.MakeRunnableKern(w.tcb)
	}
	cv.list = nil
}

// NumWaiting reports the number of parked waiters, used by tests.
func (cv *Cond_t) NumWaiting() int {
	cv.wait.Lock()
	defer cv.wait.Unlock()
	return len(cv.list)
}
