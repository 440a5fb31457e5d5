// Package fd wraps a descriptor's operations and permission bits.
// There is no user-visible file-descriptor-table syscall surface; Fd_t
// is used internally to hold the console, keyboard, and disk-file
// handles the syscall layer operates on.
package fd

import "github.com/zhengguan/15410-sub000/defs"
import "github.com/zhengguan/15410-sub000/fdops"

// Descriptor permission bits.
const (
	FD_READ  = 0x1
	FD_WRITE = 0x2
)

// Fd_t is an open descriptor.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Perms int
}

// Copyfd duplicates an open descriptor by reopening its underlying
// operations, so the copy does not alias the original's close
// semantics.
func Copyfd(f *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *f
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// Close_panic closes f and panics if the underlying close fails, used
// for descriptors (console, keyboard) whose Close is defined to always
// succeed.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("fd: close must succeed")
	}
}
