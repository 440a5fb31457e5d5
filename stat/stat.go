// Package stat holds the metadata the file syscalls report about a
// catalogue entry.
package stat

import "unsafe"

// Stat_t mirrors a file's stat information, backed by a raw byte
// layout so Bytes can be handed directly to a user-pointer copy.
type Stat_t struct {
	dev   uint
	ino   uint
	mode  uint
	size  uint
	rdev  uint
}

// Wdev records the device id.
func (st *Stat_t) Wdev(v uint) { st.dev = v }

// Wino records the inode/file-node number.
func (st *Stat_t) Wino(v uint) { st.ino = v }

// Wmode records the file mode.
func (st *Stat_t) Wmode(v uint) { st.mode = v }

// Wsize records the file size in bytes.
func (st *Stat_t) Wsize(v uint) { st.size = v }

// Wrdev records the rdev field.
func (st *Stat_t) Wrdev(v uint) { st.rdev = v }

// Dev returns the stored device id.
func (st *Stat_t) Dev() uint { return st.dev }

// Ino returns the stored inode number.
func (st *Stat_t) Ino() uint { return st.ino }

// Mode returns the stored mode.
func (st *Stat_t) Mode() uint { return st.mode }

// Size returns the stored size.
func (st *Stat_t) Size() uint { return st.size }

// Rdev returns the stored rdev.
func (st *Stat_t) Rdev() uint { return st.rdev }

// Bytes exposes the raw byte layout of the structure, used when a
// syscall copies a Stat_t out to user memory via vmm.K2user.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(st))
	return sl[:]
}
