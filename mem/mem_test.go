package mem

import (
	"testing"

	"github.com/zhengguan/15410-sub000/oommsg"
)

func TestRefpgNewZeroed(t *testing.T) {
	phys := Mkphysmem(0x1000, 8)
	pg, pa, ok := phys.Refpg_new()
	if !ok {
		t.Fatal("allocation from a fresh pool must succeed")
	}
	for i, b := range pg {
		if b != 0 {
			t.Fatalf("byte %d of fresh frame = %d, want 0", i, b)
		}
	}
	if phys.Refcnt(pa) != 1 {
		t.Fatalf("fresh frame refcount = %d, want 1", phys.Refcnt(pa))
	}
}

func TestFreeListReuse(t *testing.T) {
	phys := Mkphysmem(0x1000, 8)
	_, pa1, _ := phys.Refpg_new()
	_, pa2, _ := phys.Refpg_new()
	if pa1 == pa2 {
		t.Fatal("two live frames share a physical address")
	}

	if !phys.Refdown(pa1) {
		t.Fatal("refdown to zero must free the frame")
	}
	// The free-list is LIFO: the next allocation reuses pa1.
	_, pa3, _ := phys.Refpg_new()
	if pa3 != pa1 {
		t.Fatalf("expected freed frame %#x reused, got %#x", pa1, pa3)
	}
}

func TestRefcounting(t *testing.T) {
	phys := Mkphysmem(0x1000, 8)
	_, pa, _ := phys.Refpg_new()
	phys.Refup(pa)
	if phys.Refdown(pa) {
		t.Fatal("refdown with count 2 must not free")
	}
	if !phys.Refdown(pa) {
		t.Fatal("final refdown must free")
	}
}

func TestExhaustionNotifiesOom(t *testing.T) {
	phys := Mkphysmem(0x1000, 2)
	for {
		if _, _, ok := phys.Refpg_new(); !ok {
			break
		}
	}
	select {
	case <-oommsg.OomCh:
	default:
		t.Fatal("expected an out-of-memory notification")
	}
	if n := phys.Nfree(); n != 0 {
		t.Fatalf("Nfree after exhaustion = %d, want 0", n)
	}
}

func TestDmapAliasesFrameBytes(t *testing.T) {
	phys := Mkphysmem(0x1000, 4)
	pg, pa, _ := phys.Refpg_new()
	pg[17] = 0xab
	if phys.Dmap(pa)[17] != 0xab {
		t.Fatal("Dmap must alias the frame's backing bytes")
	}
	if phys.Pg2pa(pg) != pa {
		t.Fatalf("Pg2pa = %#x, want %#x", phys.Pg2pa(pg), pa)
	}
}
