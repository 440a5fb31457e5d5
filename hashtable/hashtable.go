// Package hashtable implements a chained, integer-keyed hashtable with
// per-bucket locking. The kernel uses one instance for the pid->PCB
// registry, one for the tid->TCB registry, and one per address space
// for the allocated-region map.
package hashtable

import (
	"fmt"
	"sync"
)

type elem_t struct {
	key   int
	value interface{}
	next  *elem_t
}

type bucket_t struct {
	sync.RWMutex
	first *elem_t
}

func (b *bucket_t) len() int {
	b.RLock()
	defer b.RUnlock()
	n := 0
	for e := b.first; e != nil; e = e.next {
		n++
	}
	return n
}

// Hashtable_t maps int keys to arbitrary values. Lookups take the owning
// bucket's read lock; mutations take its write lock.
type Hashtable_t struct {
	table []*bucket_t
}

// MkHash allocates a new Hashtable_t with the given bucket count.
func MkHash(nbuckets int) *Hashtable_t {
	if nbuckets <= 0 {
		nbuckets = 64
	}
	ht := &Hashtable_t{table: make([]*bucket_t, nbuckets)}
	for i := range ht.table {
		ht.table[i] = &bucket_t{}
	}
	return ht
}

func (ht *Hashtable_t) hash(key int) int {
	h := uint32(key)
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	return int(h) % len(ht.table)
	// (len(ht.table) is always > 0; MkHash enforces it.)
}

// Get looks up key and returns its value and whether it was found.
func (ht *Hashtable_t) Get(key int) (interface{}, bool) {
	b := ht.table[ht.hash(key)]
	b.RLock()
	defer b.RUnlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

// Set inserts or replaces the value for key. It returns the previous
// value, if any, and whether one existed.
func (ht *Hashtable_t) Set(key int, val interface{}) (interface{}, bool) {
	b := ht.table[ht.hash(key)]
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			old := e.value
			e.value = val
			return old, true
		}
	}
	b.first = &elem_t{key: key, value: val, next: b.first}
	return nil, false
}

// Del removes key, if present.
func (ht *Hashtable_t) Del(key int) {
	b := ht.table[ht.hash(key)]
	b.Lock()
	defer b.Unlock()
	var prev *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			if prev == nil {
				b.first = e.next
			} else {
				prev.next = e.next
			}
			return
		}
		prev = e
	}
}

// Size returns the total number of elements stored in the table.
func (ht *Hashtable_t) Size() int {
	n := 0
	for _, b := range ht.table {
		n += b.len()
	}
	return n
}

// Pair_t is a key/value tuple returned by Elems.
type Pair_t struct {
	Key   int
	Value interface{}
}

// Elems returns all key/value pairs currently stored. Used by
// task_vanish when scanning the thread registry and by address-space
// clone when copying the region map; callers must not rely on any
// particular order.
func (ht *Hashtable_t) Elems() []Pair_t {
	p := make([]Pair_t, 0, ht.Size())
	for _, b := range ht.table {
		b.RLock()
		for e := b.first; e != nil; e = e.next {
			p = append(p, Pair_t{Key: e.key, Value: e.value})
		}
		b.RUnlock()
	}
	return p
}

// String renders the bucket chains for debugging.
func (ht *Hashtable_t) String() string {
	s := ""
	for i, b := range ht.table {
		b.RLock()
		if b.first != nil {
			s += fmt.Sprintf("b%d:", i)
			for e := b.first; e != nil; e = e.next {
				s += fmt.Sprintf(" %d", e.key)
			}
			s += "\n"
		}
		b.RUnlock()
	}
	return s
}
