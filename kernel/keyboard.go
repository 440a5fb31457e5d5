package kernel

import (
	"github.com/zhengguan/15410-sub000/circbuf"
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/limits"
	"github.com/zhengguan/15410-sub000/sched"
	ksync "github.com/zhengguan/15410-sub000/sync"
)

// MaxReadline bounds a single readline(): one full screen of input.
const MaxReadline = ConsoleHeight * ConsoleWidth

// Keyboard_t is the keyboard input path: a ring buffer the external
// scancode driver feeds and a blocking getchar/readline path
// serialized by rdmu. guard is a plain spinlock (not rdmu) because
// Feed runs from the external driver's context, which is never a
// kernel thread the sleeping Mutex_t could park.
type Keyboard_t struct {
	guard ksync.Spinlock_t
	cb    circbuf.Circbuf_t

	rdmu   *ksync.Mutex_t
	dataCV *ksync.Cond_t

	con *Console_t
}

// NewKeyboard allocates a keyboard input path feeding into con for
// readline's echo.
func NewKeyboard(con *Console_t) *Keyboard_t {
	kb := &Keyboard_t{
		rdmu:   ksync.MkMutex(),
		dataCV: ksync.MkCond(),
		con:    con,
	}
	kb.cb.Cb_init(limits.Syslimit.ConsoleRB)
	return kb
}

// Feed delivers one decoded character into the ring buffer, standing in
// for the (unspecified, external) scancode-decoding driver feeding
// keyboard_handler's cb_enqueue. Matching the source, a full buffer
// silently drops the byte and a signal is sent regardless of whether
// any decoding/buffering occurred.
func (kb *Keyboard_t) Feed(sc *sched.Sched_t, c byte) {
	kb.guard.Lock()
	kb.cb.Cb_write(c)
	kb.guard.Unlock()
	kb.dataCV.Signal(sc)
}

// Read implements fdops.Fdops_i: a non-blocking drain of whatever the
// ring buffer currently holds. The blocking getchar/readline discipline
// lives above this in readcharBlocking.
func (kb *Keyboard_t) Read(dst []uint8) (int, defs.Err_t) {
	kb.guard.Lock()
	n := kb.cb.Cb_read(dst)
	kb.guard.Unlock()
	return n, 0
}

// Write is not meaningful for the keyboard; every keyboard fd is
// read-only.
func (kb *Keyboard_t) Write(src []uint8) (int, defs.Err_t) { return 0, -defs.EINVAL }

func (kb *Keyboard_t) Lseek(off int, whence int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (kb *Keyboard_t) Close() defs.Err_t                           { return 0 }
func (kb *Keyboard_t) Reopen() defs.Err_t                          { return 0 }

// readcharBlocking polls the buffer and, if empty, waits on dataCV
// with no paired mutex. A Feed landing between the poll and the wait
// is a narrow lost-wakeup window; the next Feed closes it.
func (kb *Keyboard_t) readcharBlocking(sc *sched.Sched_t, self *sched.Tcb_t) byte {
	for {
		var b [1]byte
		n, _ := kb.Read(b[:])
		if n == 1 {
			return b[0]
		}
		kb.dataCV.Wait(sc, self, nil)
	}
}

// GetChar implements getchar(): one character, no echo.
func (kb *Keyboard_t) GetChar(sc *sched.Sched_t, self *sched.Tcb_t) byte {
	kb.rdmu.Lock(sc, self)
	defer kb.rdmu.Unlock(sc, self)
	return kb.readcharBlocking(sc, self)
}

// ReadLine implements readline(len, buf): blocks
// character-by-character until a newline or maxlen characters have been
// staged, echoing to the console (and supporting backspace editing) as
// it goes, returning the staged bytes for the caller to copy into user
// space in one final K2user.
func (kb *Keyboard_t) ReadLine(sc *sched.Sched_t, self *sched.Tcb_t, maxlen int) ([]byte, defs.Err_t) {
	if maxlen < 0 || maxlen > MaxReadline {
		return nil, -defs.E2BIG
	}
	kb.rdmu.Lock(sc, self)
	defer kb.rdmu.Unlock(sc, self)

	staged := make([]byte, 0, maxlen)
	for len(staged) < maxlen {
		c := kb.readcharBlocking(sc, self)
		if c == '\b' {
			if len(staged) > 0 {
				staged = staged[:len(staged)-1]
				kb.con.Write([]byte{'\b'})
			}
			continue
		}
		staged = append(staged, c)
		kb.con.Write([]byte{c})
		if c == '\n' {
			break
		}
	}
	return staged, 0
}
