package circbuf

import (
	"testing"

	"github.com/zhengguan/15410-sub000/defs"
)

func TestInitRejectsBadSize(t *testing.T) {
	var cb Circbuf_t
	if err := cb.Cb_init(0); err != -defs.EINVAL {
		t.Fatalf("init(0): got %d want -EINVAL", err)
	}
	if err := cb.Cb_init(-3); err != -defs.EINVAL {
		t.Fatalf("init(-3): got %d want -EINVAL", err)
	}
	if err := cb.Cb_init(8); err != 0 {
		t.Fatalf("init(8): %d", err)
	}
	if !cb.Empty() || cb.Full() || cb.Left() != 0 || cb.Bufsz() != 8 {
		t.Fatal("fresh buffer must be empty")
	}
}

func TestFIFOOrder(t *testing.T) {
	var cb Circbuf_t
	cb.Cb_init(4)
	for _, b := range []uint8{'a', 'b', 'c'} {
		cb.Cb_write(b)
	}
	if cb.Left() != 3 {
		t.Fatalf("left = %d, want 3", cb.Left())
	}
	var out [3]uint8
	if n := cb.Cb_read(out[:]); n != 3 {
		t.Fatalf("read = %d, want 3", n)
	}
	if string(out[:]) != "abc" {
		t.Fatalf("read order %q, want abc", out)
	}
}

func TestFullDropsWrites(t *testing.T) {
	var cb Circbuf_t
	cb.Cb_init(2)
	cb.Cb_write('x')
	cb.Cb_write('y')
	if !cb.Full() {
		t.Fatal("buffer of 2 with 2 writes must be full")
	}
	cb.Cb_write('z') // dropped
	var out [3]uint8
	if n := cb.Cb_read(out[:]); n != 2 || string(out[:2]) != "xy" {
		t.Fatalf("read %d %q, want 2 xy", n, out[:2])
	}
	if !cb.Empty() {
		t.Fatal("buffer must be empty after drain")
	}
}

func TestWrapAround(t *testing.T) {
	var cb Circbuf_t
	cb.Cb_init(3)
	var one [1]uint8
	for i := 0; i < 10; i++ {
		cb.Cb_write(uint8('0' + i))
		if n := cb.Cb_read(one[:]); n != 1 || one[0] != uint8('0'+i) {
			t.Fatalf("iteration %d: read %d %q", i, n, one[0])
		}
	}
}
