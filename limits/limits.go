// Package limits centralizes the kernel's system-wide tunables: how
// many live processes/threads the registries will hold and how much
// kernel heap the res package will admit before returning ENOHEAP.
package limits

import "sync/atomic"

// Sysatomic_t is a numeric limit that can be taken from and given back
// to atomically, used as a simple admission counter.
type Sysatomic_t struct {
	remaining int64
}

// Set initializes the counter. Not safe for concurrent use with Taken.
func (s *Sysatomic_t) Set(n int64) {
	atomic.StoreInt64(&s.remaining, n)
}

// Taken tries to decrement the counter by n and reports whether it
// succeeded.
func (s *Sysatomic_t) Taken(n uint) bool {
	d := int64(n)
	if atomic.AddInt64(&s.remaining, -d) >= 0 {
		return true
	}
	atomic.AddInt64(&s.remaining, d)
	return false
}

// Given increases the counter by n, releasing previously taken budget.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(&s.remaining, int64(n))
}

// Syslimit_t tracks system-wide limits for the kernel core.
type Syslimit_t struct {
	Procs     int          /// max live processes
	Threads   int          /// max live threads
	Kheap     Sysatomic_t  /// kernel heap budget in bytes, admission-counted by res
	ConsoleRB int          /// keyboard ring buffer capacity in bytes
}

// Syslimit holds the configured limits for the running kernel. Bootstrap
// (L8) may replace it wholesale before any process is created; it must
// not be mutated afterward except through the Sysatomic_t fields.
var Syslimit = MkSysLimit()

// MkSysLimit returns the default set of limits.
func MkSysLimit() *Syslimit_t {
	sl := &Syslimit_t{
		Procs:     4096,
		Threads:   16384,
		ConsoleRB: 1024,
	}
	sl.Kheap.Set(64 << 20)
	return sl
}
