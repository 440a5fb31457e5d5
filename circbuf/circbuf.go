// Package circbuf implements a fixed-capacity FIFO byte ring buffer.
// The kernel uses one instance to hold scancode-decoded bytes
// delivered by the external keyboard driver until readline/getchar
// consume them. The buffer owns a plain byte slice; the keyboard path
// is entirely in software, so there is no DMA frame to back it with.
package circbuf

import "github.com/zhengguan/15410-sub000/defs"

// Circbuf_t is not safe for concurrent use; callers serialize access
// with their own lock (the keyboard path's spinlock).
type Circbuf_t struct {
	buf  []uint8
	head int /// next write position
	tail int /// next read position
	full bool
}

// Cb_init allocates a buffer of sz bytes.
func (cb *Circbuf_t) Cb_init(sz int) defs.Err_t {
	if sz <= 0 {
		return -defs.EINVAL
	}
	cb.buf = make([]uint8, sz)
	cb.head, cb.tail, cb.full = 0, 0, false
	return 0
}

// Bufsz returns the configured buffer size.
func (cb *Circbuf_t) Bufsz() int {
	return len(cb.buf)
}

// Full returns true when the buffer cannot accept more data.
func (cb *Circbuf_t) Full() bool {
	return cb.full
}

// Empty returns true when there is nothing to read.
func (cb *Circbuf_t) Empty() bool {
	return !cb.full && cb.head == cb.tail
}

// Left returns the number of bytes currently available to read.
func (cb *Circbuf_t) Left() int {
	if cb.full {
		return len(cb.buf)
	}
	if cb.head >= cb.tail {
		return cb.head - cb.tail
	}
	return len(cb.buf) - cb.tail + cb.head
}

// Cb_write appends a single byte, silently dropping it if the buffer is
// full (matching the original keyboard driver, which favors not
// blocking an interrupt handler over lossless delivery).
func (cb *Circbuf_t) Cb_write(b uint8) {
	if cb.full {
		return
	}
	cb.buf[cb.head] = b
	cb.head = (cb.head + 1) % len(cb.buf)
	if cb.head == cb.tail {
		cb.full = true
	}
}

// Cb_read consumes up to len(dst) bytes, returning how many were copied.
func (cb *Circbuf_t) Cb_read(dst []uint8) int {
	n := 0
	for n < len(dst) && !cb.Empty() {
		dst[n] = cb.buf[cb.tail]
		cb.tail = (cb.tail + 1) % len(cb.buf)
		cb.full = false
		n++
	}
	return n
}
