// Package bounds names the kernel's fixed memory-layout constants and
// the checkpoint identifiers passed to package res when a code path
// wants to charge a bounded amount of kernel heap against the system
// budget.
package bounds

import "github.com/zhengguan/15410-sub000/mem"

// Memory layout, x86-32 two-level paging, 4KiB pages (mem.PGSIZE). The
// low window [0, USERMIN) is the direct-mapped kernel region every
// address space shares; everything at or above USERMIN is
// per-address-space.
const (
	USERMIN = 0x00400000 // USER_MEM_START: 4MB, matches the P3/P4 kernel image size
	UserTop = 0xfffff000 // top of the 32-bit user range, page aligned
)

// PGSIZE re-exports mem.PGSIZE for callers that only need bounds.
const PGSIZE = mem.PGSIZE

// Bound_t identifies a call site that charges kernel heap against the
// system budget, so res can account for per-byte-copied overhead without
// every caller carrying its own constant.
type Bound_t int

const (
	B_ASPACE_T_K2USER_INNER Bound_t = iota
	B_ASPACE_T_USER2K_INNER
	B_NEWPAGES
	B_CLONE
)

// Bounds returns the charge, in bytes, associated with one "unit" of
// work at checkpoint b. The K2user/User2k copies charge their
// checkpoint's amount once per call, whatever the copy's length; the
// charges below are deliberately small since the kernel core's own
// bookkeeping (not real DMA) is what consumes heap here.
func Bounds(b Bound_t) uint {
	switch b {
	case B_ASPACE_T_K2USER_INNER, B_ASPACE_T_USER2K_INNER:
		return 64
	case B_NEWPAGES, B_CLONE:
		return uint(PGSIZE)
	default:
		return 0
	}
}
