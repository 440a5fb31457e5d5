// Command mkfs builds a disk image from a host directory tree, writing
// the {superblock, file-node-list, data-node-list} layout package fs
// mounts: every regular file under the skeleton directory becomes one
// file-node with a single contiguous extent.
package main

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	kfs "github.com/zhengguan/15410-sub000/fs"
)

func usage(me string) {
	fmt.Printf("%s <skeleton-dir> <out-image>\n", me)
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	skeldir, outimg := os.Args[1], os.Args[2]

	type entry struct {
		name string
		data []byte
	}
	var files []entry

	err := filepath.WalkDir(skeldir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		rel, rerr := filepath.Rel(skeldir, path)
		if rerr != nil {
			return rerr
		}
		files = append(files, entry{name: rel, data: data})
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	nblocks := 2
	for _, e := range files {
		nblocks += (len(e.data) + kfs.BSIZE - 1) / kfs.BSIZE
	}
	nblocks += len(files) // one block per file-node record
	rd := kfs.NewRamdisk(nblocks)

	dataBlk := 1 + len(files)
	nodes := make([]*kfs.FileNode_t, 0, len(files))
	for _, e := range files {
		n := &kfs.FileNode_t{Name: e.name, Size: len(e.data)}
		nb := (len(e.data) + kfs.BSIZE - 1) / kfs.BSIZE
		if nb > 0 {
			n.Extents = append(n.Extents, kfs.Extent_t{Start: dataBlk, Len: nb})
			for b := 0; b < nb; b++ {
				lo := b * kfs.BSIZE
				hi := lo + kfs.BSIZE
				if hi > len(e.data) {
					hi = len(e.data)
				}
				rd.WriteBlock(dataBlk+b, e.data[lo:hi])
			}
			dataBlk += nb
		}
		nodes = append(nodes, n)
	}

	fileNodeBlk := 1
	for i, n := range nodes {
		var blk [kfs.BSIZE]uint8
		if werr := kfs.EncodeFileNode(n, &blk); werr != 0 {
			log.Fatalf("encode file node %s: err %d", n.Name, werr)
		}
		rd.WriteBlock(fileNodeBlk+i, blk[:])
	}

	var sblk [kfs.BSIZE]uint8
	kfs.EncodeSuper(kfs.Superblock_t{
		NFileNodes:   len(nodes),
		FileNodeBlk:  fileNodeBlk,
		DataStartBlk: 1 + len(files),
	}, &sblk)
	rd.WriteBlock(0, sblk[:])

	if err := os.WriteFile(outimg, rd.Bytes(), 0644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s: %d files, %d blocks\n", outimg, len(files), nblocks)
}
