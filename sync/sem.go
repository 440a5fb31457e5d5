package sync

import "github.com/zhengguan/15410-sub000/sched"

// Sem_t is a counting semaphore: Down proceeds immediately while the
// count is positive, else condvar-waits for an Up to raise it; FIFO
// across waiters via the embedded Cond_t.
type Sem_t struct {
	mu    Mutex_t
	cv    Cond_t
	count int
}

// MkSem returns a semaphore initialized to n.
func MkSem(n int) *Sem_t {
	return &Sem_t{mu: *MkMutex(), cv: *MkCond(), count: n}
}

// Down blocks until the count is positive, then consumes one unit.
func (s *Sem_t) Down(sc *sched.Sched_t, self *sched.Tcb_t) {
	s.mu.Lock(sc, self)
	for s.count == 0 {
		s.cv.Wait(sc, self, &s.mu)
	}
	s.count--
	s.mu.Unlock(sc, self)
}

// Up releases one unit, waking a single waiting Down if any is parked.
func (s *Sem_t) Up(sc *sched.Sched_t, self *sched.Tcb_t) {
	s.mu.Lock(sc, self)
	s.count++
	s.cv.Signal(sc)
	s.mu.Unlock(sc, self)
}

// Count returns the current count, used by tests.
func (s *Sem_t) Count() int {
	return s.count
}
