// Package accnt accumulates per-process and per-thread accounting
// information (user/system nanoseconds), backing a process's reported
// usage. A vanishing thread folds its totals into its process.
package accnt

import (
	"sync"
	"time"
)

// Accnt_t accumulates runtime for a single PCB or TCB. The embedded
// mutex lets callers take a consistent snapshot when merging a thread's
// usage into its process.
type Accnt_t struct {
	Userns int64 /// nanoseconds of user-mode time consumed
	Sysns  int64 /// nanoseconds of kernel-mode time consumed
	sync.Mutex
}

// Now returns the current time in nanoseconds since the Unix epoch. The
// kernel core never calls time.Now() directly outside this function, so
// that tests that need determinism have one seam to control.
func (a *Accnt_t) Now() int64 {
	return time.Now().UnixNano()
}

// Sysadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Sysadd(delta int64) {
	a.Lock()
	a.Sysns += delta
	a.Unlock()
}

// Useradd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Useradd(delta int64) {
	a.Lock()
	a.Userns += delta
	a.Unlock()
}

// Add merges another accounting record into this one, used when a
// vanishing thread's usage is folded into its process.
func (a *Accnt_t) Add(n *Accnt_t) {
	n.Lock()
	u, s := n.Userns, n.Sysns
	n.Unlock()

	a.Lock()
	a.Userns += u
	a.Sysns += s
	a.Unlock()
}

// Snapshot returns the current (user, sys) nanosecond totals.
func (a *Accnt_t) Snapshot() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}
