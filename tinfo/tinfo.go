// Package tinfo tracks per-thread liveness and kill-channel state.
// There is no per-goroutine register to reach the current thread's
// note through, so every caller carries its *Tnote_t explicitly.
package tinfo

import (
	"sync"

	"github.com/zhengguan/15410-sub000/defs"
)

// Tnote_t records whether a thread is still alive and whether it has
// been marked for involuntary termination (a fault with no registered
// handler). Killch lets a thread blocked deep in a
// syscall be told, out of band, that it should unwind and vanish.
type Tnote_t struct {
	sync.Mutex
	Alive    bool
	Killed   bool
	isdoomed bool

	Killch chan bool
	Kerr   defs.Err_t
}

// MkTnote returns a live, not-yet-doomed thread note.
func MkTnote() *Tnote_t {
	return &Tnote_t{Alive: true, Killch: make(chan bool, 1)}
}

// Doomed reports whether the thread is marked as doomed (killed with no
// further recovery possible).
func (t *Tnote_t) Doomed() bool {
	t.Lock()
	defer t.Unlock()
	return t.isdoomed
}

// Kill marks the thread doomed with the given fault cause, used by the
// exception channel when no handler is registered.
func (t *Tnote_t) Kill(err defs.Err_t) {
	t.Lock()
	t.Killed = true
	t.isdoomed = true
	t.Kerr = err
	t.Unlock()
	select {
	case t.Killch <- true:
	default:
	}
}

// Die marks the thread no longer alive, called once its TCB has
// finished unwinding (the point at which the reaper may free its
// kernel stack).
func (t *Tnote_t) Die() {
	t.Lock()
	t.Alive = false
	t.Unlock()
}

// IsAlive reports whether the thread has not yet vanished.
func (t *Tnote_t) IsAlive() bool {
	t.Lock()
	defer t.Unlock()
	return t.Alive
}

// Threadinfo_t tracks the liveness note of every thread in the system,
// keyed by tid.
type Threadinfo_t struct {
	sync.Mutex
	Notes map[defs.Tid_t]*Tnote_t
}

// MkThreadinfo returns an empty thread-note table.
func MkThreadinfo() *Threadinfo_t {
	return &Threadinfo_t{Notes: make(map[defs.Tid_t]*Tnote_t)}
}

// Put registers tid's note.
func (ti *Threadinfo_t) Put(tid defs.Tid_t, note *Tnote_t) {
	ti.Lock()
	ti.Notes[tid] = note
	ti.Unlock()
}

// Get returns tid's note, if registered.
func (ti *Threadinfo_t) Get(tid defs.Tid_t) (*Tnote_t, bool) {
	ti.Lock()
	defer ti.Unlock()
	n, ok := ti.Notes[tid]
	return n, ok
}

// Del removes tid's note, called once the reaper has freed its stack.
func (ti *Threadinfo_t) Del(tid defs.Tid_t) {
	ti.Lock()
	delete(ti.Notes, tid)
	ti.Unlock()
}
