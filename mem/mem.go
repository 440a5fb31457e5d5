// Package mem implements the physical-frame allocator and the raw
// page/PTE types it shares with package vmm: a single free-list of
// reclaimed frames, backed by a bump pointer for frames that have never
// been touched. Each free frame's link to the next one is kept in its
// Physpg_t bookkeeping record (nexti), not in the frame's own bytes.
//
// There is no bare-metal physical RAM to allocate from, so Physmem_t's
// backing store is a plain Go slice standing in for physical memory
// above USER_MEM_START; Dmap, the direct map, is simply a slice index
// into that backing store.
package mem

import (
	"sync"
	"unsafe"

	"github.com/zhengguan/15410-sub000/oommsg"
)

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE = 1 << PGSHIFT

// Pa_t represents a physical address (frame-aligned, plus PTE flag bits
// when used as a page-table entry -- see vmm.PTE_*).
type Pa_t uintptr

// PGOFFSET masks the in-page offset of an address.
const PGOFFSET Pa_t = Pa_t(PGSIZE - 1)

// PGMASK masks the page-aligned part of an address.
const PGMASK Pa_t = ^PGOFFSET

// Page-table entry flag bits, x86-32 layout. A PTE is a Pa_t whose low
// bits carry flags and whose PTE_ADDR-masked bits carry a frame number.
const (
	PTE_P Pa_t = 1 << 0 /// present
	PTE_W Pa_t = 1 << 1 /// writable
	PTE_U Pa_t = 1 << 2 /// user-accessible (absent => supervisor-only)
	PTE_G Pa_t = 1 << 8 /// global (not flushed by a CR3 reload)
)

// PTE_ADDR extracts the frame-address bits of a PTE.
const PTE_ADDR Pa_t = PGMASK

// Bytepg_t is one page of raw bytes.
type Bytepg_t [PGSIZE]uint8

// Pg2bytes reinterprets a physical frame's backing bytes as a []uint8.
func Pg2bytes(pg *Bytepg_t) []uint8 {
	return pg[:]
}

func pg2pgn(p_pg Pa_t) uint32 {
	return uint32(p_pg >> PGSHIFT)
}

// Physpg_t is the per-frame bookkeeping record: a reference count (a
// frame may be shared by exactly one address space under this spec's
// eager-copy fork, but the refcount exists so the direct-mapped kernel
// window and the zero page can be shared) and the free-list link.
type Physpg_t struct {
	Refcnt int32
	nexti  uint32 // index of next free frame, or freeEnd
}

const freeEnd = ^uint32(0)

// Physmem_t manages all frames available to user address spaces: frames
// at or above startn. Allocation prefers the free-list; only once it is
// empty does the bump pointer hand out a never-used frame.
type Physmem_t struct {
	sync.Mutex
	backing []Bytepg_t // index i holds the bytes of frame (startn+i)
	pgs     []Physpg_t // parallel per-frame bookkeeping
	startn  uint32     // first frame number managed by this pool
	bump    uint32      // index of the next never-used frame
	freei   uint32      // index of the first free frame, or freeEnd
	freelen int32
}

// Physmem is the kernel-wide frame pool, initialized by the bootstrap
// layer (L8) via Mkphysmem before any address space is created.
var Physmem *Physmem_t

// Zeropg is a single all-zero frame. The VM is eager rather than
// demand-paged, so Zeropg serves only as the canonical zero contents
// for freshly allocated user frames.
var Zeropg Bytepg_t

// P_zeropg is set by Mkphysmem to the physical address of frame startn,
// the pool's first allocatable frame; Zeropg itself lives outside the
// pool and has no frame number.
var P_zeropg Pa_t

// Mkphysmem creates a frame pool of nframes frames starting at physical
// frame number startn (an arbitrary base -- the simulation has no real
// physical address space to line up with).
func Mkphysmem(startn uint32, nframes uint32) *Physmem_t {
	phys := &Physmem_t{
		backing: make([]Bytepg_t, nframes),
		pgs:     make([]Physpg_t, nframes),
		startn:  startn,
		freei:   freeEnd,
	}
	P_zeropg = Pa_t(startn) << PGSHIFT
	return phys
}

func (phys *Physmem_t) idx(p_pg Pa_t) uint32 {
	return pg2pgn(p_pg) - phys.startn
}

// Refaddr returns the refcount pointer for the given frame.
func (phys *Physmem_t) Refaddr(p_pg Pa_t) *int32 {
	return &phys.pgs[phys.idx(p_pg)].Refcnt
}

// Refcnt returns the current reference count of a frame.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	return int(phys.pgs[phys.idx(p_pg)].Refcnt)
}

// Refup increments the reference count of a frame.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	phys.Lock()
	phys.pgs[phys.idx(p_pg)].Refcnt++
	phys.Unlock()
}

// Refdown decrements the reference count of a frame and, if it reaches
// zero, returns the frame to the free-list. It reports whether the
// frame was freed.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	phys.Lock()
	defer phys.Unlock()
	i := phys.idx(p_pg)
	phys.pgs[i].Refcnt--
	if phys.pgs[i].Refcnt < 0 {
		panic("mem: refcount underflow")
	}
	if phys.pgs[i].Refcnt == 0 {
		phys._put(i)
		return true
	}
	return false
}

// _put pushes frame index i onto the free-list. Caller holds phys.Lock.
func (phys *Physmem_t) _put(i uint32) {
	phys.pgs[i].nexti = phys.freei
	phys.freei = i
	phys.freelen++
}

// Refpg_new allocates a fresh, zeroed frame with refcount 1.
func (phys *Physmem_t) Refpg_new() (*Bytepg_t, Pa_t, bool) {
	pg, pa, ok := phys.Refpg_new_nozero()
	if !ok {
		return nil, 0, false
	}
	for i := range pg {
		pg[i] = 0
	}
	return pg, pa, true
}

// Refpg_new_nozero allocates a fresh frame with refcount 1 without
// clearing its contents -- used when the caller is about to overwrite
// the whole page anyway (e.g. the fork copy loop).
func (phys *Physmem_t) Refpg_new_nozero() (*Bytepg_t, Pa_t, bool) {
	phys.Lock()
	var i uint32
	if phys.freei != freeEnd {
		i = phys.freei
		phys.freei = phys.pgs[i].nexti
		phys.freelen--
	} else if phys.bump < uint32(len(phys.backing)) {
		i = phys.bump
		phys.bump++
	} else {
		phys.Unlock()
		oommsg.Notify(1)
		return nil, 0, false
	}
	phys.pgs[i].Refcnt = 1
	phys.Unlock()
	p_pg := Pa_t(phys.startn+i) << PGSHIFT
	return &phys.backing[i], p_pg, true
}

// Dmap returns the direct mapping of a physical frame -- in hardware
// this is a fixed virtual alias of all physical memory; here it is
// simply the backing slice entry.
func (phys *Physmem_t) Dmap(p_pg Pa_t) *Bytepg_t {
	return &phys.backing[phys.idx(p_pg&PGMASK)]
}

// Nfree reports the number of frames on the free-list plus never-used
// frames, for tests asserting that address-space destroy reclaims every
// frame it allocated.
func (phys *Physmem_t) Nfree() int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.freelen) + (len(phys.backing) - int(phys.bump))
}

// Pg2pa is a debug helper converting a backing-slice pointer back to its
// physical address; used only by tests.
func (phys *Physmem_t) Pg2pa(pg *Bytepg_t) Pa_t {
	off := uintptr(unsafe.Pointer(pg)) - uintptr(unsafe.Pointer(&phys.backing[0]))
	idx := uint32(off / unsafe.Sizeof(Bytepg_t{}))
	return Pa_t(phys.startn+idx) << PGSHIFT
}
