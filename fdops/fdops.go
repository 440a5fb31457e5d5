// Package fdops defines the operations a kernel descriptor must
// support. It is deliberately tiny: the kernel has no general VFS,
// only the console, the keyboard, and the disk-backed file catalogue,
// each of which implements Fdops_i.
package fdops

import "github.com/zhengguan/15410-sub000/defs"

// Fdops_i is implemented by every concrete descriptor backing
// (console, keyboard, disk file). Read/Write take plain byte slices
// rather than a "userbuf" abstraction: the kernel core's syscalls
// validate and stage user memory themselves (package vmm) before
// calling into fdops, so fdops implementations only ever see kernel
// memory.
type Fdops_i interface {
	Read(dst []uint8) (int, defs.Err_t)
	Write(src []uint8) (int, defs.Err_t)
	Lseek(off int, whence int) (int, defs.Err_t)
	Close() defs.Err_t
	Reopen() defs.Err_t
}
