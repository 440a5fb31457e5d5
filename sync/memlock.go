package sync

import (
	"github.com/zhengguan/15410-sub000/sched"
)

type pagelock_t struct {
	rw  Rwlock_t
	ref int
}

// Memlock_t is the per-page memory lock: a reader/writer lock created
// on first use for a given page base and reference-counted so it can
// be reclaimed once the last waiter drops it. It is what a system call
// takes before dereferencing user memory, so that a concurrent
// new_pages/remove_pages on the same page cannot race with the read or
// write, without requiring a global VM lock.
type Memlock_t struct {
	guard Spinlock_t
	pages map[int]*pagelock_t
}

// MkMemlock returns an empty per-page lock table.
func MkMemlock() *Memlock_t {
	return &Memlock_t{pages: make(map[int]*pagelock_t)}
}

func (m *Memlock_t) getref(base int) *pagelock_t {
	m.guard.Lock()
	defer m.guard.Unlock()
	pl, ok := m.pages[base]
	if !ok {
		pl = &pagelock_t{rw: *MkRwlock()}
		m.pages[base] = pl
	}
	pl.ref++
	return pl
}

func (m *Memlock_t) putref(base int) {
	m.guard.Lock()
	defer m.guard.Unlock()
	pl, ok := m.pages[base]
	if !ok {
		return
	}
	pl.ref--
	if pl.ref == 0 {
		delete(m.pages, base)
	}
}

// RLock takes a read reference on the page at base, for a system call
// reading through a validated user pointer.
func (m *Memlock_t) RLock(sc *sched.Sched_t, self *sched.Tcb_t, base int) {
	pl := m.getref(base)
	pl.rw.RLock(sc, self)
}

// RUnlock releases a read reference taken by RLock.
func (m *Memlock_t) RUnlock(sc *sched.Sched_t, self *sched.Tcb_t, base int) {
	m.guard.Lock()
	pl, ok := m.pages[base]
	m.guard.Unlock()
	if !ok {
		return
	}
	pl.rw.RUnlock(sc, self)
	m.putref(base)
}

// Lock takes a write reference on the page at base, for new_pages /
// remove_pages / exec unmapping the page out from under any concurrent
// reader.
func (m *Memlock_t) Lock(sc *sched.Sched_t, self *sched.Tcb_t, base int) {
	pl := m.getref(base)
	pl.rw.Lock(sc, self)
}

// Unlock releases a write reference taken by Lock.
func (m *Memlock_t) Unlock(sc *sched.Sched_t, self *sched.Tcb_t, base int) {
	m.guard.Lock()
	pl, ok := m.pages[base]
	m.guard.Unlock()
	if !ok {
		return
	}
	pl.rw.Unlock(sc, self)
	m.putref(base)
}
