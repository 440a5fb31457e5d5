// Package fs implements the disk-backed file catalogue: a partition of
// type 0xAA holding a simple on-disk format {superblock,
// file-node-list, data-node-list}, where each file-node records a
// name, a size, and a chain of extents. readfile/sizefile traverse
// that chain for reads by offset. There are no directories, no write
// path, and no allocation state; the catalogue is built offline by
// cmd/mkfs and mounted read-only.
package fs

import (
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/pci"
)

// BSIZE is the on-disk block size in bytes.
const BSIZE = pci.BSIZE

// PartTypeCode is the partition-table type byte identifying a
// catalogue filesystem partition.
const PartTypeCode = 0xAA

// Extent_t is one contiguous run of blocks belonging to a file.
type Extent_t struct {
	Start int // starting block number, partition-relative
	Len   int // length in blocks
}

// FileNode_t records one catalogue entry's name, size, and extent
// chain. Ino is the node's index in the on-disk file-node list,
// assigned at mount time.
type FileNode_t struct {
	Name    string
	Ino     int
	Size    int
	Extents []Extent_t
}

// Superblock_t is the on-disk super block: just enough fields to locate
// the file-node list and the data region.
type Superblock_t struct {
	NFileNodes   int
	FileNodeBlk  int // starting block of the file-node list
	DataStartBlk int // starting block of the data-node region
}

// FS_t is a mounted P4 filesystem: a disk, its parsed super block, and
// its file-node catalogue.
type FS_t struct {
	Disk  pci.Disk_i
	Super Superblock_t
	files map[string]*FileNode_t
}

// Mount reads the super block and file-node list off disk and builds
// the in-memory name->FileNode_t catalogue readfile/sizefile consult.
// The on-disk layout mirrors what cmd/mkfs writes: block 0 is the super
// block; FileNodeBlk holds NFileNodes fixed-size records, each an
// encoded FileNode_t.
func Mount(disk pci.Disk_i) (*FS_t, defs.Err_t) {
	var blk [BSIZE]uint8
	if !disk.Start(&pci.Req_t{Block: 0, Write: false, Data: &blk}) {
		return nil, -defs.EINVAL
	}
	super := decodeSuper(&blk)

	f := &FS_t{Disk: disk, Super: super, files: make(map[string]*FileNode_t)}
	for i := 0; i < super.NFileNodes; i++ {
		var rblk [BSIZE]uint8
		blkno := super.FileNodeBlk + i
		if !disk.Start(&pci.Req_t{Block: blkno, Write: false, Data: &rblk}) {
			return nil, -defs.EINVAL
		}
		node := decodeFileNode(&rblk)
		node.Ino = i
		f.files[node.Name] = node
	}
	return f, 0
}

// Lookup returns the named file's catalogue entry.
func (f *FS_t) Lookup(name string) (*FileNode_t, bool) {
	n, ok := f.files[name]
	return n, ok
}

// Sizefile implements sizefile: the total byte length of the named
// file.
func (f *FS_t) Sizefile(name string) (int, defs.Err_t) {
	n, ok := f.Lookup(name)
	if !ok {
		return 0, -defs.ENOENT
	}
	return n.Size, 0
}

// Readfile implements readfile(name, buf, count, offset): it walks the
// file's extent chain to find the blocks covering [offset, offset+n)
// and copies at most count bytes (fewer if the file is shorter) into
// dst, returning the number of bytes actually read.
func (f *FS_t) Readfile(name string, dst []uint8, offset int) (int, defs.Err_t) {
	node, ok := f.Lookup(name)
	if !ok {
		return 0, -defs.ENOENT
	}
	if offset < 0 {
		return 0, -defs.EINVAL
	}
	if offset >= node.Size {
		return 0, 0
	}
	n := len(dst)
	if offset+n > node.Size {
		n = node.Size - offset
	}

	got := 0
	pos := 0 // byte offset of the start of the extent currently being walked
	for _, ext := range node.Extents {
		extBytes := ext.Len * BSIZE
		if got == n {
			break
		}
		if offset >= pos+extBytes {
			pos += extBytes
			continue
		}
		// the read window intersects this extent
		startByte := 0
		if offset > pos {
			startByte = offset - pos
		}
		for b := 0; b < ext.Len && got < n; b++ {
			var blk [BSIZE]uint8
			if !f.Disk.Start(&pci.Req_t{Block: ext.Start + b, Write: false, Data: &blk}) {
				return got, -defs.EINVAL
			}
			blkStart := b * BSIZE
			blkEnd := blkStart + BSIZE
			if blkEnd <= startByte {
				continue
			}
			from := 0
			if startByte > blkStart {
				from = startByte - blkStart
			}
			copyLen := BSIZE - from
			if got+copyLen > n {
				copyLen = n - got
			}
			copy(dst[got:got+copyLen], blk[from:from+copyLen])
			got += copyLen
		}
		pos += extBytes
	}
	return got, 0
}

func decodeSuper(blk *[BSIZE]uint8) Superblock_t {
	return Superblock_t{
		NFileNodes:   int(le32(blk[0:4])),
		FileNodeBlk:  int(le32(blk[4:8])),
		DataStartBlk: int(le32(blk[8:12])),
	}
}

func encodeSuper(s Superblock_t, blk *[BSIZE]uint8) {
	putle32(blk[0:4], uint32(s.NFileNodes))
	putle32(blk[4:8], uint32(s.FileNodeBlk))
	putle32(blk[8:12], uint32(s.DataStartBlk))
}

// EncodeSuper exposes encodeSuper to cmd/mkfs.
func EncodeSuper(s Superblock_t, blk *[BSIZE]uint8) { encodeSuper(s, blk) }

const maxNameLen = 56
const maxExtents = 8

func decodeFileNode(blk *[BSIZE]uint8) *FileNode_t {
	nameLen := int(blk[0])
	name := string(blk[1 : 1+nameLen])
	off := 1 + maxNameLen
	size := int(le32(blk[off : off+4]))
	off += 4
	next := int(le32(blk[off : off+4]))
	off += 4
	n := &FileNode_t{Name: name, Size: size}
	for i := 0; i < next; i++ {
		start := int(le32(blk[off : off+4]))
		off += 4
		length := int(le32(blk[off : off+4]))
		off += 4
		n.Extents = append(n.Extents, Extent_t{Start: start, Len: length})
	}
	return n
}

// EncodeFileNode exposes the file-node on-disk encoding to cmd/mkfs.
func EncodeFileNode(n *FileNode_t, blk *[BSIZE]uint8) defs.Err_t {
	if len(n.Name) > maxNameLen || len(n.Extents) > maxExtents {
		return -defs.ENAMETOOLONG
	}
	blk[0] = uint8(len(n.Name))
	copy(blk[1:1+maxNameLen], n.Name)
	off := 1 + maxNameLen
	putle32(blk[off:off+4], uint32(n.Size))
	off += 4
	putle32(blk[off:off+4], uint32(len(n.Extents)))
	off += 4
	for _, e := range n.Extents {
		putle32(blk[off:off+4], uint32(e.Start))
		off += 4
		putle32(blk[off:off+4], uint32(e.Len))
		off += 4
	}
	return 0
}

func le32(b []uint8) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putle32(b []uint8, v uint32) {
	b[0] = uint8(v)
	b[1] = uint8(v >> 8)
	b[2] = uint8(v >> 16)
	b[3] = uint8(v >> 24)
}
