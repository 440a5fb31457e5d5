package fs

import "github.com/zhengguan/15410-sub000/pci"

// Ramdisk_t is an in-memory pci.Disk_i, used by tests and by
// cmd/mkfs to assemble a disk image without a real IDE controller.
type Ramdisk_t struct {
	blocks [][BSIZE]uint8
}

// NewRamdisk allocates a zeroed ramdisk of nblocks blocks.
func NewRamdisk(nblocks int) *Ramdisk_t {
	return &Ramdisk_t{blocks: make([][BSIZE]uint8, nblocks)}
}

// Start implements pci.Disk_i: it synchronously completes the request
// against the backing slice, since there is no real DMA/interrupt round
// trip to simulate.
func (r *Ramdisk_t) Start(req *pci.Req_t) bool {
	if req.Block < 0 || req.Block >= len(r.blocks) {
		return false
	}
	if req.Write {
		r.blocks[req.Block] = *req.Data
	} else {
		*req.Data = r.blocks[req.Block]
	}
	return true
}

// Intr always reports no pending interrupt -- Start already completed
// synchronously.
func (r *Ramdisk_t) Intr() bool { return false }

// IntClear is a no-op for the same reason.
func (r *Ramdisk_t) IntClear() {}

// Bytes returns the raw backing bytes, used by cmd/mkfs to persist the
// assembled image to a host file.
func (r *Ramdisk_t) Bytes() []uint8 {
	out := make([]uint8, 0, len(r.blocks)*BSIZE)
	for i := range r.blocks {
		out = append(out, r.blocks[i][:]...)
	}
	return out
}

// WriteBlock stores raw bytes (padded/truncated to BSIZE) at block.
func (r *Ramdisk_t) WriteBlock(block int, data []uint8) {
	var b [BSIZE]uint8
	copy(b[:], data)
	r.blocks[block] = b
}
