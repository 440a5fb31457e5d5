// Package vmm implements the two-level x86-32 page-table manager and
// the per-address-space operations built on it: page-directory
// construction, the map/unmap operation, address-space clone and
// destroy, and user-pointer validation.
package vmm

import (
	"sync"

	"github.com/zhengguan/15410-sub000/bounds"
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/mem"
)

// Pmap_t is one page-table-sized page: 1024 32-bit entries on x86-32.
// It stands for both a page directory and a leaf page table -- the two
// have identical shape, differing only in what their entries point to.
type Pmap_t [1024]mem.Pa_t

const (
	pdShift = 22 // bits [31:22] select the PDE
	ptShift = 12 // bits [21:12] select the PTE
	idxMask = 0x3ff
)

func pdi(va int) int { return (va >> pdShift) & idxMask }
func pti(va int) int { return (va >> ptShift) & idxMask }

// Page-table pages are kernel metadata, not user data -- they are never
// drawn from the user frame pool (package mem's Physmem) and so need no
// refcounting of their own. A PDE/PTE's PTE_ADDR bits still must encode
// a page-aligned "physical address", but a Go
// heap pointer to a Pmap_t is not guaranteed page-aligned. ptRegistry
// hands out synthetic, page-aligned addresses for page-table frames and
// maps them back to the live *Pmap_t, exactly playing the role dmap
// plays for real physical memory in package mem.
var ptRegistry = struct {
	sync.Mutex
	next uint64
	byPa map[mem.Pa_t]*Pmap_t
}{byPa: make(map[mem.Pa_t]*Pmap_t)}

// ptAlloc creates a new page table and returns its synthetic address.
func ptAlloc() (*Pmap_t, mem.Pa_t) {
	pt := &Pmap_t{}
	ptRegistry.Lock()
	defer ptRegistry.Unlock()
	ptRegistry.next += uint64(mem.PGSIZE)
	pa := mem.Pa_t(ptRegistry.next)
	ptRegistry.byPa[pa] = pt
	return pt, pa
}

func ptLookup(pa mem.Pa_t) *Pmap_t {
	ptRegistry.Lock()
	defer ptRegistry.Unlock()
	return ptRegistry.byPa[pa]
}

func ptFree(pa mem.Pa_t) {
	ptRegistry.Lock()
	defer ptRegistry.Unlock()
	delete(ptRegistry.byPa, pa)
}

// kernelPT is the single page table backing the direct-mapped kernel
// window [0, USERMIN). It is built once and shared by reference across
// every address space's page directory; clone never copies it and
// destroy never frees it.
var kernelPT *Pmap_t
var kernelPTpa mem.Pa_t

func init() {
	if bounds.USERMIN%mem.PGSIZE != 0 {
		panic("vmm: USERMIN must be page aligned")
	}
	if bounds.USERMIN != (1 << pdShift) {
		// The kernel window must be exactly one PDE's worth (4MB) for
		// the single shared kernelPT below to cover it.
		panic("vmm: USERMIN must equal one page-directory entry's span")
	}
	kernelPT, kernelPTpa = ptAlloc()
	for i := range kernelPT {
		pa := mem.Pa_t(i * mem.PGSIZE)
		kernelPT[i] = pa | mem.PTE_P | mem.PTE_W | mem.PTE_G
	}
}

// mkPageDirectory allocates a fresh, zeroed page directory and installs
// the shared kernel-window entry at PDI 0.
func mkPageDirectory() *Pmap_t {
	pd := &Pmap_t{}
	pd[0] = kernelPTpa | mem.PTE_P | mem.PTE_W | mem.PTE_G
	return pd
}

// pmap_walk locates the leaf PTE for va, creating intervening page
// tables as needed when create is true. It never creates page tables
// inside the kernel window (PDI 0), which is pre-populated and shared.
func pmap_walk(pd *Pmap_t, va int, create bool) (*mem.Pa_t, defs.Err_t) {
	i := pdi(va)
	if i == 0 {
		panic("vmm: pmap_walk into kernel window")
	}
	pde := &pd[i]
	var pt *Pmap_t
	if *pde&mem.PTE_P == 0 {
		if !create {
			return nil, -defs.EFAULT
		}
		var pa mem.Pa_t
		pt, pa = ptAlloc()
		*pde = pa | mem.PTE_P | mem.PTE_W | mem.PTE_U
	} else {
		pt = ptLookup(*pde & mem.PTE_ADDR)
	}
	return &pt[pti(va)], 0
}

// pmap_lookup returns the leaf PTE for va if its page table already
// exists, or nil if not (without creating anything).
func pmap_lookup(pd *Pmap_t, va int) *mem.Pa_t {
	i := pdi(va)
	if i == 0 {
		return &kernelPT[pti(va)]
	}
	if pd[i]&mem.PTE_P == 0 {
		return nil
	}
	pt := ptLookup(pd[i] & mem.PTE_ADDR)
	return &pt[pti(va)]
}

// ptEmpty reports whether every entry of pt is non-present, meaning the
// page table can be unlinked from its parent directory.
func ptEmpty(pt *Pmap_t) bool {
	for _, e := range pt {
		if e&mem.PTE_P != 0 {
			return false
		}
	}
	return true
}
