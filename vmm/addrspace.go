package vmm

import (
	"sync"

	"github.com/zhengguan/15410-sub000/bounds"
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/hashtable"
	"github.com/zhengguan/15410-sub000/mem"
	"github.com/zhengguan/15410-sub000/res"
	"github.com/zhengguan/15410-sub000/ustr"
	"github.com/zhengguan/15410-sub000/util"
)

// Region_t is an allocated region: a {base, length} record created by
// new_pages and released only by an exact-base remove_pages.
type Region_t struct {
	Base int
	Len  int
}

// Vm_t is a process address space: a page directory plus the region map
// tracking new_pages/remove_pages allocations. The embedded mutex
// protects every field below and must be held (via Lock_pmap) across
// any page-table walk or region-map lookup.
type Vm_t struct {
	sync.Mutex
	Pd      *Pmap_t
	regions *hashtable.Hashtable_t // base-page-number -> *Region_t
	held    bool
}

// Mkaddrspace creates a fresh address space with an empty region map and
// a page directory whose only populated entry is the shared kernel
// window.
func Mkaddrspace() *Vm_t {
	return &Vm_t{
		Pd:      mkPageDirectory(),
		regions: hashtable.MkHash(64),
	}
}

// Lock_pmap acquires the address-space lock.
func (as *Vm_t) Lock_pmap() {
	as.Lock()
	as.held = true
}

// Unlock_pmap releases the address-space lock.
func (as *Vm_t) Unlock_pmap() {
	as.held = false
	as.Unlock()
}

// Lockassert_pmap panics if the address-space lock is not held by the
// caller. It catches bugs where a page-table operation runs unlocked; it
// cannot catch a *different* thread holding the lock.
func (as *Vm_t) Lockassert_pmap() {
	if !as.held {
		panic("vmm: pmap lock must be held")
	}
}

func pageAligned(v int) bool { return v&int(mem.PGOFFSET) == 0 }

// New_pages implements new_pages(base, len): it fails if
// base is misaligned, len is not a positive page multiple, the region
// would cross the user/kernel boundary or overflow, or any page in the
// range is already present. On success it allocates and maps len/PAGE
// fresh zeroed frames as user|writable and records the allocation.
func (as *Vm_t) New_pages(base, length int) defs.Err_t {
	if !pageAligned(base) || length <= 0 || length%mem.PGSIZE != 0 {
		return -defs.EINVAL
	}
	if base < bounds.USERMIN {
		return -defs.EINVAL
	}
	end := base + length
	if end <= base || end > bounds.UserTop {
		return -defs.EINVAL // overflow or crosses the top of user space
	}

	as.Lock_pmap()
	defer as.Unlock_pmap()

	npages := length / mem.PGSIZE
	if !res.Resadd_noblock(uint(npages) * mem.PGSIZE) {
		return -defs.ENOHEAP
	}
	for i := 0; i < npages; i++ {
		va := base + i*mem.PGSIZE
		if pte := pmap_lookup(as.Pd, va); pte != nil && *pte&mem.PTE_P != 0 {
			res.Resdel(uint(npages) * mem.PGSIZE)
			return -defs.EEXIST
		}
	}

	mapped := make([]int, 0, npages)
	for i := 0; i < npages; i++ {
		va := base + i*mem.PGSIZE
		pg, p_pg, ok := mem.Physmem.Refpg_new()
		if !ok {
			as._unmapRange(mapped)
			res.Resdel(uint(npages) * mem.PGSIZE)
			return -defs.ENOMEM
		}
		_ = pg
		if err := as.mapLocked(va, p_pg, mem.PTE_U|mem.PTE_W); err != 0 {
			mem.Physmem.Refdown(p_pg)
			as._unmapRange(mapped)
			res.Resdel(uint(npages) * mem.PGSIZE)
			return err
		}
		mapped = append(mapped, va)
	}

	pgn := base >> mem.PGSHIFT
	as.regions.Set(pgn, &Region_t{Base: base, Len: length})
	return 0
}

// Remove_pages implements remove_pages(base): it fails unless base
// exactly matches a recorded allocation's start, then unmaps and frees
// the entire recorded length and removes the record.
func (as *Vm_t) Remove_pages(base int) defs.Err_t {
	if !pageAligned(base) {
		return -defs.EINVAL
	}
	pgn := base >> mem.PGSHIFT

	as.Lock_pmap()
	defer as.Unlock_pmap()

	v, ok := as.regions.Get(pgn)
	if !ok {
		return -defs.EINVAL
	}
	reg := v.(*Region_t)
	npages := reg.Len / mem.PGSIZE
	for i := 0; i < npages; i++ {
		as.unmapLocked(base + i*mem.PGSIZE)
	}
	as.regions.Del(pgn)
	res.Resdel(uint(npages) * mem.PGSIZE)
	return 0
}

// Region returns the allocation record starting exactly at base, if one
// exists. Callers (the memlock discipline in proc) use it to learn the
// length they must lock before Remove_pages tears the range down.
func (as *Vm_t) Region(base int) (Region_t, bool) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	v, ok := as.regions.Get(base >> mem.PGSHIFT)
	if !ok {
		return Region_t{}, false
	}
	return *v.(*Region_t), true
}

// LoadSegment maps a fresh, zeroed run of pages covering [base, base+length)
// with user permissions (writable when writable is true) and copies data
// into the start of the range, used by exec to install a
// catalogue executable's text/rodata/data/bss segments. It does not record
// a new_pages region: segments are reclaimed by Destroy at the next exec or
// process exit, not by an explicit remove_pages.
func (as *Vm_t) LoadSegment(base, length int, writable bool, data []uint8) defs.Err_t {
	if !pageAligned(base) || length <= 0 || length%mem.PGSIZE != 0 {
		return -defs.EINVAL
	}
	if base < bounds.USERMIN || base+length > bounds.UserTop {
		return -defs.EINVAL
	}

	as.Lock_pmap()
	defer as.Unlock_pmap()

	npages := length / mem.PGSIZE
	if !res.Resadd_noblock(uint(npages) * mem.PGSIZE) {
		return -defs.ENOHEAP
	}
	perms := mem.PTE_U
	if writable {
		perms |= mem.PTE_W
	}

	mapped := make([]int, 0, npages)
	off := 0
	for i := 0; i < npages; i++ {
		va := base + i*mem.PGSIZE
		pg, p_pg, ok := mem.Physmem.Refpg_new()
		if !ok {
			as._unmapRange(mapped)
			res.Resdel(uint(npages) * mem.PGSIZE)
			return -defs.ENOMEM
		}
		if off < len(data) {
			n := copy(pg[:], data[off:])
			off += n
		}
		if err := as.mapLocked(va, p_pg, perms); err != 0 {
			mem.Physmem.Refdown(p_pg)
			as._unmapRange(mapped)
			res.Resdel(uint(npages) * mem.PGSIZE)
			return err
		}
		mapped = append(mapped, va)
	}
	return 0
}

func (as *Vm_t) _unmapRange(vas []int) {
	for _, va := range vas {
		as.unmapLocked(va)
	}
}

// mapLocked installs pa (already refcounted by the caller) at va with
// perms. Caller holds as's lock.
func (as *Vm_t) mapLocked(va int, pa mem.Pa_t, perms mem.Pa_t) defs.Err_t {
	pte, err := pmap_walk(as.Pd, va, true)
	if err != 0 {
		return err
	}
	if *pte&mem.PTE_P != 0 {
		panic("vmm: mapping over a present pte")
	}
	*pte = (pa & mem.PTE_ADDR) | perms | mem.PTE_P
	return 0
}

// unmapLocked clears va's mapping, returning its frame to the free-list
// and reclaiming the owning page table if it becomes empty. Caller holds
// as's lock.
func (as *Vm_t) unmapLocked(va int) {
	i := pdi(va)
	if i == 0 {
		panic("vmm: unmap of kernel window")
	}
	if as.Pd[i]&mem.PTE_P == 0 {
		return
	}
	ptpa := as.Pd[i] & mem.PTE_ADDR
	pt := ptLookup(ptpa)
	pte := &pt[pti(va)]
	if *pte&mem.PTE_P == 0 {
		return
	}
	p_pg := *pte & mem.PTE_ADDR
	*pte = 0
	mem.Physmem.Refdown(p_pg)
	if ptEmpty(pt) {
		as.Pd[i] = 0
		ptFree(ptpa)
	}
}

// checkFlags validates that pte carries every bit in want and none in
// forbid.
func checkFlags(pte mem.Pa_t, want, forbid mem.Pa_t) bool {
	return pte&want == want && pte&forbid == 0
}

// validate walks every page covering [va, va+n) and requires each to be
// present, carry want, and not carry forbid. It is the core of
// user-pointer validation: every intervening page must
// qualify, not merely the first.
func (as *Vm_t) validate(va, n int, want, forbid mem.Pa_t) defs.Err_t {
	as.Lockassert_pmap()
	if n <= 0 {
		return 0
	}
	start := util.Rounddown(va, mem.PGSIZE)
	end := util.Roundup(va+n, mem.PGSIZE)
	for a := start; a < end; a += mem.PGSIZE {
		if a < bounds.USERMIN || a >= bounds.UserTop {
			return -defs.EFAULT
		}
		pte := pmap_lookup(as.Pd, a)
		if pte == nil || !checkFlags(*pte, want, forbid) {
			return -defs.EFAULT
		}
	}
	return 0
}

// CheckUserRegion validates [va, va+n) for user access, requiring
// writable when write is true. It is the public entry point syscalls use
// before touching a user buffer.
func (as *Vm_t) CheckUserRegion(va, n int, write bool) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	want := mem.PTE_U
	if write {
		want |= mem.PTE_W
	}
	return as.validate(va, n, want, 0)
}

// userFrame returns the readable/writable byte slice for the page
// containing va, validating that single page only. Callers loop over
// userFrame to cross page boundaries.
func (as *Vm_t) userFrame(va int, write bool) ([]uint8, int, defs.Err_t) {
	as.Lockassert_pmap()
	want := mem.PTE_U
	if write {
		want |= mem.PTE_W
	}
	pageva := util.Rounddown(va, mem.PGSIZE)
	if err := as.validate(pageva, mem.PGSIZE, want, 0); err != 0 {
		return nil, 0, err
	}
	pte := pmap_lookup(as.Pd, va)
	voff := va & int(mem.PGOFFSET)
	frame := mem.Physmem.Dmap(*pte & mem.PTE_ADDR)
	return frame[voff:], voff, 0
}

// Userreadn reads n bytes (n<=8) from user address va.
func (as *Vm_t) Userreadn(va, n int) (int, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if n > 8 {
		panic("vmm: Userreadn n too large")
	}
	var ret int
	for i := 0; i < n; {
		src, _, err := as.userFrame(va+i, false)
		if err != 0 {
			return 0, err
		}
		l := util.Min(n-i, len(src))
		for j := 0; j < l; j++ {
			ret |= int(src[j]) << (8 * uint(i+j))
		}
		i += l
	}
	return ret, 0
}

// Userwriten writes n bytes (n<=8) of val to user address va.
func (as *Vm_t) Userwriten(va, n, val int) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if n > 8 {
		panic("vmm: Userwriten n too large")
	}
	for i := 0; i < n; {
		dst, _, err := as.userFrame(va+i, true)
		if err != 0 {
			return err
		}
		l := util.Min(n-i, len(dst))
		for j := 0; j < l; j++ {
			dst[j] = uint8(val >> (8 * uint(i+j)))
		}
		i += l
	}
	return 0
}

// Userstr copies a NUL-terminated string from user space, up to lenmax
// bytes, validating one page at a time until the terminator is seen or
// the bound is exceeded.
func (as *Vm_t) Userstr(uva, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	s := ustr.MkUstr()
	i := 0
	for {
		src, _, err := as.userFrame(uva+i, false)
		if err != 0 {
			return nil, err
		}
		for j, c := range src {
			if c == 0 {
				if len(s)+j >= lenmax {
					return nil, -defs.ENAMETOOLONG
				}
				s = append(s, src[:j]...)
				return s, 0
			}
		}
		s = append(s, src...)
		i += len(src)
		if len(s) >= lenmax {
			return nil, -defs.ENAMETOOLONG
		}
	}
}

// K2user copies src into user memory starting at uva. The copy's
// transient kernel bookkeeping is admitted against the heap budget
// before any page is touched, so an over-budget copy fails with ENOHEAP
// rather than starving the rest of the kernel.
func (as *Vm_t) K2user(src []uint8, uva int) defs.Err_t {
	charge := bounds.Bounds(bounds.B_ASPACE_T_K2USER_INNER)
	if !res.Resadd_noblock(charge) {
		return -defs.ENOHEAP
	}
	defer res.Resdel(charge)
	as.Lock_pmap()
	defer as.Unlock_pmap()
	cnt := 0
	for cnt != len(src) {
		dst, _, err := as.userFrame(uva+cnt, true)
		if err != 0 {
			return err
		}
		n := copy(dst, src[cnt:])
		cnt += n
	}
	return 0
}

// User2k copies len(dst) bytes from user memory at uva into dst, under
// the same heap-budget admission as K2user.
func (as *Vm_t) User2k(dst []uint8, uva int) defs.Err_t {
	charge := bounds.Bounds(bounds.B_ASPACE_T_USER2K_INNER)
	if !res.Resadd_noblock(charge) {
		return -defs.ENOHEAP
	}
	defer res.Resdel(charge)
	as.Lock_pmap()
	defer as.Unlock_pmap()
	cnt := 0
	for cnt != len(dst) {
		src, _, err := as.userFrame(uva+cnt, false)
		if err != 0 {
			return err
		}
		n := copy(dst[cnt:], src)
		cnt += n
	}
	return 0
}

// Clone deep-copies every present user frame of as into a fresh address
// space: a new directory is created, the source is walked, and for
// each present page a fresh frame is allocated, mapped in the child,
// and its contents copied. Any
// failure leaves no partially mapped frames in the child and returns
// -defs.ENOMEM.
func (as *Vm_t) Clone() (*Vm_t, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()

	child := Mkaddrspace()
	mapped := make([]int, 0)
	ok := true
	var ferr defs.Err_t

	for pdeI := 1; pdeI < len(as.Pd) && ok; pdeI++ {
		if as.Pd[pdeI]&mem.PTE_P == 0 {
			continue
		}
		pt := ptLookup(as.Pd[pdeI] & mem.PTE_ADDR)
		for ptei, pte := range pt {
			if pte&mem.PTE_P == 0 {
				continue
			}
			va := pdeI<<pdShift | ptei<<ptShift
			src := mem.Physmem.Dmap(pte & mem.PTE_ADDR)
			npg, p_pg, nok := mem.Physmem.Refpg_new_nozero()
			if !nok {
				ok, ferr = false, -defs.ENOMEM
				break
			}
			*npg = *src
			perms := pte &^ mem.PTE_ADDR
			if err := child.mapLocked(va, p_pg, perms&^mem.PTE_P); err != 0 {
				mem.Physmem.Refdown(p_pg)
				ok, ferr = false, err
				break
			}
			mapped = append(mapped, va)
		}
	}

	if !ok {
		child.Lock_pmap()
		child._unmapRange(mapped)
		child.Unlock_pmap()
		return nil, ferr
	}

	// Copy the region map (new_pages/remove_pages records) so the
	// child's subsequent remove_pages calls see the same bases.
	for _, pair := range as.regions.Elems() {
		reg := pair.Value.(*Region_t)
		child.regions.Set(pair.Key, &Region_t{Base: reg.Base, Len: reg.Len})
	}
	return child, 0
}

// Destroy frees every present user frame and every page table. The
// directory itself is kept, with its kernel entry (the shared PDI 0)
// untouched, so the address space can be loaded again afterwards.
func (as *Vm_t) Destroy() {
	as.Lock_pmap()
	defer as.Unlock_pmap()

	for pdeI := 1; pdeI < len(as.Pd); pdeI++ {
		if as.Pd[pdeI]&mem.PTE_P == 0 {
			continue
		}
		ptpa := as.Pd[pdeI] & mem.PTE_ADDR
		pt := ptLookup(ptpa)
		for ptei, pte := range pt {
			if pte&mem.PTE_P == 0 {
				continue
			}
			mem.Physmem.Refdown(pte & mem.PTE_ADDR)
			pt[ptei] = 0
		}
		ptFree(ptpa)
		as.Pd[pdeI] = 0
	}
	as.regions = hashtable.MkHash(1)
}
