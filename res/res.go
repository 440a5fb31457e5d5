// Package res admits bounded kernel-heap charges against the system-wide
// budget tracked in package limits. It exists so that long-running
// copies (the VM's K2user/User2k loops, new_pages)
// fail with ENOHEAP up front rather than letting an unbounded user
// request run the kernel out of memory.
package res

import "github.com/zhengguan/15410-sub000/limits"

// Resadd_noblock charges n bytes against the kernel heap budget and
// reports whether the charge was admitted. It never blocks: out of
// budget is a hard failure the caller turns into -defs.ENOHEAP.
func Resadd_noblock(n uint) bool {
	return limits.Syslimit.Kheap.Taken(n)
}

// Resdel returns n bytes of a previously admitted charge.
func Resdel(n uint) {
	limits.Syslimit.Kheap.Given(n)
}
