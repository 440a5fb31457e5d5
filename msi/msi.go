// Package msi allocates the small set of dynamically assignable
// interrupt vectors external devices (the disk, any future MSI-capable
// device) register against, leaving 0x20 (timer) and 0x21 (keyboard)
// as the two fixed vectors. A pool of 8 is far more than this kernel
// ever attaches.
package msi

import "sync"

// Vec_t identifies a dynamically allocated interrupt vector.
type Vec_t uint

type vecs_t struct {
	sync.Mutex
	avail map[Vec_t]bool
}

var v = vecs_t{
	avail: map[Vec_t]bool{56: true, 57: true, 58: true, 59: true, 60: true,
		61: true, 62: true, 63: true},
}

// Alloc hands out an available vector, panicking if the pool is
// exhausted; running out of MSI vectors is a boot-time configuration
// error with no recovery path.
func Alloc() Vec_t {
	v.Lock()
	defer v.Unlock()
	for i := range v.avail {
		delete(v.avail, i)
		return i
	}
	panic("msi: no vectors left")
}

// Free returns a previously allocated vector to the pool.
func Free(vec Vec_t) {
	v.Lock()
	defer v.Unlock()
	if v.avail[vec] {
		panic("msi: double free")
	}
	v.avail[vec] = true
}
