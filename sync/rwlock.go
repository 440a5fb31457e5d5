package sync

import "github.com/zhengguan/15410-sub000/sched"

// Rwlock_t is a reader/writer lock: writers serialize
// on an internal mutex; readers are counted; a writer blocks on a
// condvar until the reader count drops to zero; a writer may downgrade
// to holding a read reference without releasing mutual exclusion
// against other writers until it later unlocks. Built from Mutex_t and
// Cond_t, with FIFO writer admission coming from Mutex_t's own
// wait-list.
type Rwlock_t struct {
	writer    Mutex_t // held by the current writer, or by a reader waiting out writers
	readers   int
	readersOK Cond_t // signalled when readers drops to zero
	holdsW    bool    // true once a writer has actually taken occupancy
}

// MkRwlock returns an unlocked reader/writer lock.
func MkRwlock() *Rwlock_t {
	return &Rwlock_t{writer: *MkMutex(), readersOK: *MkCond()}
}

// RLock acquires the lock for reading. Every reader registers through
// the FIFO writer mutex, so a reader arriving while a writer holds or is
// queued on `writer` waits behind that writer. A writer that holds
// `writer` and is waiting in Lock for in-flight readers to drain
// releases the mutex inside the condvar wait, so readers arriving during
// that wait are admitted ahead of it; the writer proceeds only once the
// reader count reaches zero.
func (rw *Rwlock_t) RLock(sc *sched.Sched_t, self *sched.Tcb_t) {
	rw.writer.Lock(sc, self)
	rw.readers++
	rw.writer.Unlock(sc, self)
}

// RUnlock releases a read reference, waking a writer blocked in Lock if
// this was the last reader.
func (rw *Rwlock_t) RUnlock(sc *sched.Sched_t, self *sched.Tcb_t) {
	rw.writer.Lock(sc, self)
	rw.readers--
	if rw.readers == 0 {
		rw.readersOK.Signal(sc)
	}
	rw.writer.Unlock(sc, self)
}

// Lock acquires the lock for writing: takes the writer mutex (excluding
// all other writers and new readers), then waits for any in-flight
// readers to drain.
func (rw *Rwlock_t) Lock(sc *sched.Sched_t, self *sched.Tcb_t) {
	rw.writer.Lock(sc, self)
	for rw.readers > 0 {
		rw.readersOK.Wait(sc, self, &rw.writer)
	}
	rw.holdsW = true
}

// Unlock releases a write-held lock.
func (rw *Rwlock_t) Unlock(sc *sched.Sched_t, self *sched.Tcb_t) {
	rw.holdsW = false
	rw.writer.Unlock(sc, self)
}

// Downgrade converts a held write lock into a read reference without
// ever exposing a window where neither is held: the writer becomes a
// reader and releases the writer mutex, letting other readers (and,
// once this reader's RUnlock drops the count to zero, a waiting writer)
// proceed.
func (rw *Rwlock_t) Downgrade(sc *sched.Sched_t, self *sched.Tcb_t) {
	if !rw.holdsW {
		panic("sync: Downgrade without holding the write lock")
	}
	rw.holdsW = false
	rw.readers++
	rw.writer.Unlock(sc, self)
}
