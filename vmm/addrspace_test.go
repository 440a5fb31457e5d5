package vmm

import (
	"os"
	"testing"

	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/mem"
	"github.com/zhengguan/15410-sub000/ustr"
)

func TestMain(m *testing.M) {
	mem.Physmem = mem.Mkphysmem(0x1000, 4096)
	os.Exit(m.Run())
}

const base = 0x10000000

func TestNewPagesWriteRemoveRereadZero(t *testing.T) {
	// Allocate two pages, write both ends, release, re-allocate one
	// page, and observe zeroed contents.
	as := Mkaddrspace()
	defer as.Destroy()

	if err := as.New_pages(base, 0x2000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	if err := as.Userwriten(base, 4, 5); err != 0 {
		t.Fatalf("write low: %d", err)
	}
	if err := as.Userwriten(base+0xffc, 4, 7); err != 0 {
		t.Fatalf("write high: %d", err)
	}
	if v, err := as.Userreadn(base, 4); err != 0 || v != 5 {
		t.Fatalf("read low = %d, %d", v, err)
	}
	if err := as.Remove_pages(base); err != 0 {
		t.Fatalf("remove_pages: %d", err)
	}
	if err := as.New_pages(base, 0x1000); err != 0 {
		t.Fatalf("re-new_pages: %d", err)
	}
	if v, err := as.Userreadn(base, 4); err != 0 || v != 0 {
		t.Fatalf("reread = %d, %d; want 0 after re-allocation", v, err)
	}
}

func TestNewPagesOverlapFails(t *testing.T) {
	as := Mkaddrspace()
	defer as.Destroy()

	if err := as.New_pages(base, 0x2000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	if err := as.New_pages(base+0x1000, 0x2000); err != -defs.EEXIST {
		t.Fatalf("overlapping new_pages: got %d want -EEXIST", err)
	}
	// The original allocation must be untouched by the failure.
	if err := as.Userwriten(base+0x1000, 4, 9); err != 0 {
		t.Fatalf("original range damaged by failed overlap: %d", err)
	}
	// And the overlap's tail page must not have been mapped.
	if err := as.CheckUserRegion(base+0x2000, 4, false); err != -defs.EFAULT {
		t.Fatalf("tail page of failed new_pages mapped: %d", err)
	}
}

func TestRemovePagesNonBaseFails(t *testing.T) {
	as := Mkaddrspace()
	defer as.Destroy()

	if err := as.New_pages(base, 0x2000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	if err := as.Remove_pages(base + 0x1000); err != -defs.EINVAL {
		t.Fatalf("remove_pages(base+PAGE): got %d want -EINVAL", err)
	}
	if err := as.Remove_pages(base); err != 0 {
		t.Fatalf("remove_pages(base): %d", err)
	}
	if err := as.Remove_pages(base); err != -defs.EINVAL {
		t.Fatalf("double remove_pages: got %d want -EINVAL", err)
	}
}

func TestNewPagesArgumentValidation(t *testing.T) {
	as := Mkaddrspace()
	defer as.Destroy()

	for _, tc := range []struct {
		name         string
		base, length int
	}{
		{"misaligned base", base + 4, 0x1000},
		{"zero length", base, 0},
		{"negative length", base, -0x1000},
		{"non-multiple length", base, 0x1234},
		{"kernel window", 0x1000, 0x1000},
		{"crosses user top", 0xfffff000 - 0x1000, 0x3000},
	} {
		if err := as.New_pages(tc.base, tc.length); err != -defs.EINVAL {
			t.Errorf("%s: got %d want -EINVAL", tc.name, err)
		}
	}
}

func TestCloneDeepCopies(t *testing.T) {
	as := Mkaddrspace()
	defer as.Destroy()

	if err := as.New_pages(base, 0x1000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	if err := as.Userwriten(base, 4, 42); err != 0 {
		t.Fatalf("write: %d", err)
	}

	child, err := as.Clone()
	if err != 0 {
		t.Fatalf("clone: %d", err)
	}
	defer child.Destroy()

	if v, cerr := child.Userreadn(base, 4); cerr != 0 || v != 42 {
		t.Fatalf("child read = %d, %d; want 42", v, cerr)
	}
	if err := child.Userwriten(base, 4, 99); err != 0 {
		t.Fatalf("child write: %d", err)
	}
	if v, perr := as.Userreadn(base, 4); perr != 0 || v != 42 {
		t.Fatalf("parent sees child write: %d, %d", v, perr)
	}
	// The region record travels with the clone.
	if cerr := child.Remove_pages(base); cerr != 0 {
		t.Fatalf("child remove_pages: %d", cerr)
	}
}

func TestDestroyReclaimsFrames(t *testing.T) {
	before := mem.Physmem.Nfree()
	as := Mkaddrspace()
	if err := as.New_pages(base, 0x4000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	if mem.Physmem.Nfree() != before-4 {
		t.Fatalf("expected 4 frames consumed, free %d -> %d", before, mem.Physmem.Nfree())
	}
	as.Destroy()
	if mem.Physmem.Nfree() != before {
		t.Fatalf("destroy leaked frames: free %d, want %d", mem.Physmem.Nfree(), before)
	}
}

func TestLoadSegmentReadOnly(t *testing.T) {
	as := Mkaddrspace()
	defer as.Destroy()

	data := []uint8{0xde, 0xad, 0xbe, 0xef}
	if err := as.LoadSegment(base, 0x1000, false, data); err != 0 {
		t.Fatalf("load segment: %d", err)
	}
	if v, err := as.Userreadn(base, 4); err != 0 || uint32(v) != 0xefbeadde {
		t.Fatalf("segment read = %#x, %d", v, err)
	}
	if err := as.Userwriten(base, 4, 0); err != -defs.EFAULT {
		t.Fatalf("write to read-only segment: got %d want -EFAULT", err)
	}
	if err := as.CheckUserRegion(base, 4, true); err != -defs.EFAULT {
		t.Fatalf("write check on read-only segment: got %d want -EFAULT", err)
	}
}

func TestCheckUserRegionEveryPage(t *testing.T) {
	as := Mkaddrspace()
	defer as.Destroy()

	// Map only the first and third page of a three-page span; a region
	// check across the span must fail on the hole.
	if err := as.New_pages(base, 0x1000); err != 0 {
		t.Fatalf("new_pages lo: %d", err)
	}
	if err := as.New_pages(base+0x2000, 0x1000); err != 0 {
		t.Fatalf("new_pages hi: %d", err)
	}
	if err := as.CheckUserRegion(base, 0x3000, false); err != -defs.EFAULT {
		t.Fatalf("check across hole: got %d want -EFAULT", err)
	}
}

func TestUserstr(t *testing.T) {
	as := Mkaddrspace()
	defer as.Destroy()

	if err := as.New_pages(base, 0x2000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	if err := as.K2user(append([]uint8("hello"), 0), base+0xffd); err != 0 {
		t.Fatalf("stage string: %d", err)
	}
	s, err := as.Userstr(base+0xffd, 64)
	if err != 0 {
		t.Fatalf("userstr: %d", err)
	}
	if !s.Eq(ustr.FromStr("hello")) {
		t.Fatalf("userstr = %q", s.String())
	}

	// An unterminated string must hit the length bound, not run on.
	for i := 0; i < 0x1000; i += 4 {
		as.Userwriten(base+i, 4, 0x61616161)
	}
	if _, err := as.Userstr(base, 0x100); err != -defs.ENAMETOOLONG {
		t.Fatalf("unterminated userstr: got %d want -ENAMETOOLONG", err)
	}
}
