// Package sched implements the preemptive round-robin scheduler: a
// ready queue, a wake-tick-ordered sleep queue, the
// deschedule/make_runnable contract every sync primitive in package
// sync is built on, and yield.
//
// On real hardware the scheduler's atomicity primitive for the
// ready/sleep queues is disabling interrupts; here that role is played
// by Sched_t's own mutex rather than the sync.Spinlock_t type -- the
// scheduler is the thing the spinlock's callers build on top of, not a
// client of it.
//
// A Tcb_t is not an ambient "current thread" reached through a global
// register; every scheduler entry point takes the calling Tcb_t
// explicitly. A thread is whatever goroutine calls into the scheduler
// on the Tcb_t's behalf, and Deschedule really blocks that goroutine
// until a matching MakeRunnable wakes it.
package sched

import (
	"container/list"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/stats"
)

// Kind distinguishes why a thread was descheduled: KindUser may be
// woken by the user-facing make_runnable syscall; KindKern may only be
// woken by the issuing primitive (a sync primitive, or the scheduler's
// own sleep queue).
type Kind int

const (
	KindUser Kind = iota
	KindKern
)

// State is a TCB's scheduling state.
type State int

const (
	Runnable State = iota
	Running
	Descheduled
	Sleeping
)

// Tcb_t is the scheduler's view of a thread: just enough to participate
// in the ready queue, the sleep queue, or a sync primitive's wait-list,
// plus the wake channel Deschedule blocks on. The owning proc.Tcb_t
// embeds this.
type Tcb_t struct {
	Tid defs.Tid_t

	mu        sync.Mutex
	state     State
	deschKind Kind
	wakeTick  uint64
	wakeCh    chan struct{}

	elem *list.Element // node in whichever queue currently holds this TCB
}

// NewTcb creates a fresh, not-yet-scheduled TCB for tid.
func NewTcb(tid defs.Tid_t) *Tcb_t {
	return &Tcb_t{Tid: tid, wakeCh: make(chan struct{}, 1)}
}

// State reports the TCB's current scheduling state; used by tests and by
// make_runnable's "fails unless descheduled" check.
func (t *Tcb_t) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Sched_t is the kernel-wide scheduler aggregate: the ready queue, the
// sleep queue, and the monotonic tick counter. Bootstrap (L8) creates
// exactly one and threads it through every syscall dispatch.
type Sched_t struct {
	mu    sync.Mutex
	ready *list.List // of *Tcb_t, excludes the idle thread
	sleep []*Tcb_t    // sorted by wakeTick ascending; ties broken by insertion order
	ticks uint64
	idle  *Tcb_t

	// Ticks counts timer interrupts serviced; Wakeups counts sleepers
	// woken by the sleep queue. Both are no-ops unless stats.Stats is
	// enabled (see package stats).
	Ticks   stats.Counter_t
	Wakeups stats.Counter_t
}

// NewSched constructs an empty scheduler with idle as its fallback
// thread -- the one run when the ready queue is empty.
func NewSched(idle *Tcb_t) *Sched_t {
	return &Sched_t{ready: list.New(), idle: idle}
}

// AddRunnable inserts tcb at the tail of the ready queue, marking it
// Runnable. Used at thread birth (new_thread/thread_fork) and whenever a
// sleeping/descheduled thread is woken.
func (s *Sched_t) AddRunnable(tcb *Tcb_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addRunnableLocked(tcb)
}

func (s *Sched_t) addRunnableLocked(tcb *Tcb_t) {
	tcb.mu.Lock()
	tcb.state = Runnable
	tcb.elem = s.ready.PushBack(tcb)
	tcb.mu.Unlock()
}

// Remove drops tcb from the ready queue without waking it, used when a
// thread vanishes while still runnable.
func (s *Sched_t) Remove(tcb *Tcb_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tcb.mu.Lock()
	if tcb.elem != nil && tcb.state == Runnable {
		s.ready.Remove(tcb.elem)
		tcb.elem = nil
	}
	tcb.mu.Unlock()
}

// GetTicks returns the monotonic tick count (the get_ticks syscall).
func (s *Sched_t) GetTicks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Tick implements the timer handler: increment the tick counter, wake
// every sleeper whose wake-tick has arrived (the whole ready prefix is
// drained per tick with no bound; pathological sleeper load can
// lengthen a tick), and rotate the ready queue by one position.
func (s *Sched_t) Tick() {
	s.Ticks.Inc()
	s.mu.Lock()
	s.ticks++
	now := s.ticks
	var woken []*Tcb_t
	i := 0
	for ; i < len(s.sleep); i++ {
		if s.sleep[i].wakeTick > now {
			break
		}
		woken = append(woken, s.sleep[i])
	}
	s.sleep = s.sleep[i:]
	for _, tcb := range woken {
		s.addRunnableLocked(tcb)
		s.Wakeups.Inc()
	}
	if front := s.ready.Front(); front != nil {
		s.ready.MoveToBack(front)
	}
	s.mu.Unlock()
	for _, tcb := range woken {
		tcb.mu.Lock()
		ch := tcb.wakeCh
		tcb.mu.Unlock()
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Yield implements yield(tid): tid == -1 rotates to the
// next ready thread (a no-op if the caller is the sole runnable
// thread); a specific tid rotates to that thread if it is present and
// runnable, else fails. Yield does not block the caller in this
// simulation -- the "switch" is purely the bookkeeping rotation, since
// concurrent execution is delegated to the host Go scheduler.
func (s *Sched_t) Yield(self *Tcb_t, tid defs.Tid_t) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tid == -1 {
		if s.ready.Len() <= 1 {
			return 0
		}
		front := s.ready.Front()
		s.ready.MoveToBack(front)
		return 0
	}
	for e := s.ready.Front(); e != nil; e = e.Next() {
		t := e.Value.(*Tcb_t)
		if t.Tid == tid {
			s.ready.MoveToFront(e)
			return 0
		}
	}
	return -defs.ESRCH
}

// Deschedule implements deschedule(flag, kind): if *flag is already
// non-zero, it returns immediately without sleeping. Otherwise self is
// pulled out of the ready queue and the calling goroutine blocks on
// its wake channel until a matching MakeRunnable arrives. The
// ready-queue removal and the wait registration happen under the same
// lock, so a wakeup cannot slip between them.
func (s *Sched_t) Deschedule(self *Tcb_t, flag *int32, kind Kind) defs.Err_t {
	s.mu.Lock()
	self.mu.Lock()
	if flagNonzero(flag) {
		self.mu.Unlock()
		s.mu.Unlock()
		return 0
	}
	if self.elem != nil {
		s.ready.Remove(self.elem)
		self.elem = nil
	}
	self.state = Descheduled
	self.deschKind = kind
	drainCh(self.wakeCh)
	ch := self.wakeCh
	self.mu.Unlock()
	s.mu.Unlock()

	<-ch
	return 0
}

// MakeRunnable implements make_runnable(tid)/make_runnable_kern: it
// fails unless tcb is currently descheduled with a matching kind (a
// kernel-only wakeup may always target a kernel-descheduled thread; the
// user-facing syscall passes KindUser and is rejected against a
// kernel-internal deschedule such as sleep's), then moves tcb to the
// ready queue and releases its waiting goroutine.
func (s *Sched_t) MakeRunnable(tcb *Tcb_t, kind Kind) defs.Err_t {
	tcb.mu.Lock()
	if tcb.state != Descheduled {
		tcb.mu.Unlock()
		return -defs.EINVAL
	}
	if kind == KindUser && tcb.deschKind != KindUser {
		tcb.mu.Unlock()
		return -defs.EINVAL
	}
	// Claim the wakeup before dropping the lock so a racing second
	// make_runnable fails rather than double-inserting tcb.
	tcb.state = Runnable
	ch := tcb.wakeCh
	tcb.mu.Unlock()

	s.AddRunnable(tcb)
	select {
	case ch <- struct{}{}:
	default:
	}
	return 0
}

// Sleep implements the sleep system call: negative duration
// fails, zero is a no-op, a positive duration inserts self into the
// sleep queue ordered by now+ticks (ties broken by insertion order) and
// deschedules it kernel-internally so a user make_runnable cannot wake
// it early.
func (s *Sched_t) Sleep(self *Tcb_t, ticks int) defs.Err_t {
	if ticks < 0 {
		return -defs.EINVAL
	}
	if ticks == 0 {
		return 0
	}
	s.mu.Lock()
	wake := s.ticks + uint64(ticks)
	self.mu.Lock()
	if self.elem != nil {
		s.ready.Remove(self.elem)
		self.elem = nil
	}
	self.state = Sleeping
	self.deschKind = KindKern
	self.wakeTick = wake
	drainCh(self.wakeCh)
	ch := self.wakeCh
	self.mu.Unlock()

	idx := sort.Search(len(s.sleep), func(i int) bool { return s.sleep[i].wakeTick > wake })
	s.sleep = append(s.sleep, nil)
	copy(s.sleep[idx+1:], s.sleep[idx:])
	s.sleep[idx] = self
	s.mu.Unlock()

	<-ch
	return 0
}

// MakeRunnableKern is the kernel-internal form used by sync primitives
// (mutex unlock, cond signal/broadcast, semaphore post, rwlock release)
// to wake a thread they parked on their own wait-list.
func (s *Sched_t) MakeRunnableKern(tcb *Tcb_t) defs.Err_t {
	return s.MakeRunnable(tcb, KindKern)
}

// flagNonzero reads the deschedule flag atomically: a waking primitive
// may store to it from another goroutine concurrently with this check.
func flagNonzero(flag *int32) bool {
	return flag != nil && atomic.LoadInt32(flag) != 0
}

func drainCh(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
