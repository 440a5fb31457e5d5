package kernel

import (
	"testing"
	"time"

	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/fs"
	"github.com/zhengguan/15410-sub000/proc"
)

const textVA = 0x01000000
const userBuf = 0x10000000

// bootKernel builds a kernel with a registered "init" image and the
// first process loaded from it.
func bootKernel(t *testing.T) (*Kernel, *proc.Tcb_t, ExecResult) {
	t.Helper()
	k := NewKernel(DefaultFrames)
	k.RegisterImage(MkFlatImage("init", textVA, []byte{0xeb, 0xfe})) // jmp $
	tcb, res, err := k.LoadInit("init", []string{"init", "one"})
	if err != 0 {
		t.Fatalf("load init: %d", err)
	}
	return k, tcb, res
}

func TestLoadInitStagesArgv(t *testing.T) {
	_, tcb, res := bootKernel(t)
	as := tcb.Pcb.As

	if res.Entry != textVA {
		t.Fatalf("entry = %#x, want %#x", res.Entry, textVA)
	}
	argc, err := as.Userreadn(res.Esp, 4)
	if err != 0 || argc != 2 {
		t.Fatalf("*esp (argc) = %d, %d; want 2", argc, err)
	}
	argv0p, _ := as.Userreadn(res.Esp+4, 4)
	s, err := as.Userstr(argv0p, 64)
	if err != 0 || s.String() != "init" {
		t.Fatalf("argv[0] = %q, %d", s.String(), err)
	}
	argv1p, _ := as.Userreadn(res.Esp+8, 4)
	s, _ = as.Userstr(argv1p, 64)
	if s.String() != "one" {
		t.Fatalf("argv[1] = %q", s.String())
	}
	if nullp, _ := as.Userreadn(res.Esp+12, 4); nullp != 0 {
		t.Fatalf("argv terminator = %#x, want 0", nullp)
	}
}

func TestTextIsReadOnly(t *testing.T) {
	_, tcb, res := bootKernel(t)
	as := tcb.Pcb.As
	if err := as.CheckUserRegion(res.Entry, 4, false); err != 0 {
		t.Fatalf(".text must be readable: %d", err)
	}
	if err := as.Userwriten(res.Entry, 4, 0); err != -defs.EFAULT {
		t.Fatalf("write to .text: got %d want -EFAULT", err)
	}
}

func TestExecRejectsBadImages(t *testing.T) {
	k := NewKernel(DefaultFrames)
	// Entry outside .text.
	bad := MkFlatImage("bad-entry", textVA, []byte{0x90})
	bad.Entry = textVA + 0x100000
	k.RegisterImage(bad)
	if _, _, err := k.LoadInit("bad-entry", nil); err != -defs.EINVAL {
		t.Fatalf("entry outside .text: got %d want -EINVAL", err)
	}
	// Section below user memory.
	low := MkFlatImage("low", 0x1000, []byte{0x90})
	k.RegisterImage(low)
	if _, _, err := k.LoadInit("low", nil); err != -defs.EINVAL {
		t.Fatalf("segment below user range: got %d want -EINVAL", err)
	}
	if _, _, err := k.LoadInit("absent", nil); err != -defs.ENOENT {
		t.Fatalf("unknown name: got %d want -ENOENT", err)
	}
}

func TestExecRequiresSingleThread(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	if _, err := k.Kern.ThreadFork(tcb); err != 0 {
		t.Fatalf("thread_fork: %d", err)
	}
	if _, err := k.Exec(tcb, userBuf, 0); err != -defs.EINVAL {
		t.Fatalf("exec with two live threads: got %d want -EINVAL", err)
	}
}

func TestPrintWritesConsoleAtomically(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	as := tcb.Pcb.As

	if err := k.Kern.NewPages(tcb, userBuf, 0x1000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	msg := "hello"
	if err := as.K2user([]uint8(msg), userBuf); err != 0 {
		t.Fatalf("stage: %d", err)
	}
	if err := k.Print(tcb, userBuf, len(msg)); err != 0 {
		t.Fatalf("print: %d", err)
	}
	grid := k.Console.Snapshot()
	if got := string(grid[0][:len(msg)]); got != msg {
		t.Fatalf("console row 0 = %q, want %q", got, msg)
	}

	if err := k.Print(tcb, userBuf, -1); err != -defs.EINVAL {
		t.Fatalf("print negative length: got %d want -EINVAL", err)
	}
	if err := k.Print(tcb, 0x20000000, 4); err != -defs.EFAULT {
		t.Fatalf("print unmapped buffer: got %d want -EFAULT", err)
	}
}

func TestReadLineEchoesAndEdits(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	as := tcb.Pcb.As

	if err := k.Kern.NewPages(tcb, userBuf, 0x1000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	for _, c := range []byte("hx\bi\n") {
		k.Keyboard.Feed(k.Kern.Sched, c)
	}
	n, err := k.ReadLine(tcb, userBuf, 64)
	if err != 0 {
		t.Fatalf("readline: %d", err)
	}
	if n != 3 {
		t.Fatalf("readline n = %d, want 3", n)
	}
	out := make([]uint8, n)
	if err := as.User2k(out, userBuf); err != 0 {
		t.Fatalf("readback: %d", err)
	}
	if string(out) != "hi\n" {
		t.Fatalf("readline content %q, want \"hi\\n\"", out)
	}
	grid := k.Console.Snapshot()
	if string(grid[0][:2]) != "hi" {
		t.Fatalf("echo row = %q, want hi", grid[0][:2])
	}
}

func TestGetChar(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	k.Keyboard.Feed(k.Kern.Sched, 'z')
	if c := k.GetChar(tcb); c != 'z' {
		t.Fatalf("getchar = %q, want z", c)
	}
	// No echo: the console is untouched.
	grid := k.Console.Snapshot()
	if grid[0][0] != ' ' {
		t.Fatalf("getchar echoed %q", grid[0][0])
	}
}

func buildDisk(t *testing.T, files map[string][]byte) *fs.Ramdisk_t {
	t.Helper()
	rd := fs.NewRamdisk(64)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	dataBlk := 1 + len(files)
	nodes := make([]*fs.FileNode_t, 0, len(files))
	for _, name := range names {
		content := files[name]
		n := &fs.FileNode_t{Name: name, Size: len(content)}
		nb := (len(content) + fs.BSIZE - 1) / fs.BSIZE
		if nb > 0 {
			n.Extents = append(n.Extents, fs.Extent_t{Start: dataBlk, Len: nb})
			for b := 0; b < nb; b++ {
				lo := b * fs.BSIZE
				hi := lo + fs.BSIZE
				if hi > len(content) {
					hi = len(content)
				}
				rd.WriteBlock(dataBlk+b, content[lo:hi])
			}
			dataBlk += nb
		}
		nodes = append(nodes, n)
	}
	for i, n := range nodes {
		var blk [fs.BSIZE]uint8
		if err := fs.EncodeFileNode(n, &blk); err != 0 {
			t.Fatalf("encode node: %d", err)
		}
		rd.WriteBlock(1+i, blk[:])
	}
	var sblk [fs.BSIZE]uint8
	fs.EncodeSuper(fs.Superblock_t{NFileNodes: len(nodes), FileNodeBlk: 1, DataStartBlk: 1 + len(files)}, &sblk)
	rd.WriteBlock(0, sblk[:])
	return rd
}

func TestReadfileAndSizefile(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	as := tcb.Pcb.As

	content := []byte("the quick brown fox")
	if err := k.MountDisk(buildDisk(t, map[string][]byte{"fox": content})); err != 0 {
		t.Fatalf("mount: %d", err)
	}

	if err := k.Kern.NewPages(tcb, userBuf, 0x1000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	nameVA := userBuf
	bufVA := userBuf + 0x100
	if err := as.K2user(append([]uint8("fox"), 0), nameVA); err != 0 {
		t.Fatalf("stage name: %d", err)
	}

	n, err := k.Readfile(tcb, nameVA, bufVA, 16, 4)
	if err != 0 {
		t.Fatalf("readfile: %d", err)
	}
	if n != 15 {
		t.Fatalf("readfile n = %d, want 15", n)
	}
	out := make([]uint8, n)
	as.User2k(out, bufVA)
	if string(out) != "quick brown fox" {
		t.Fatalf("readfile content %q", out)
	}

	sz, err := k.Sizefile(tcb, nameVA)
	if err != 0 || sz != len(content) {
		t.Fatalf("sizefile = %d, %d; want %d", sz, err, len(content))
	}

	st, err := k.Statfile("fox")
	if err != 0 {
		t.Fatalf("statfile: %d", err)
	}
	if st.Size() != uint(len(content)) || st.Dev() != uint(defs.D_DISK) {
		t.Fatalf("statfile size=%d dev=%d", st.Size(), st.Dev())
	}

	if _, err := k.Readfile(tcb, nameVA, bufVA, 8, -1); err != -defs.EINVAL {
		t.Fatalf("negative offset: got %d want -EINVAL", err)
	}
}

func TestDeliverFaultRunsHandler(t *testing.T) {
	k, tcb, _ := bootKernel(t)

	if err := k.Kern.NewPages(tcb, userBuf, 0x1000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	stackTop := userBuf + 0x1000
	if _, err := tcb.Swexn(stackTop, textVA, 0x1234, nil); err != 0 {
		t.Fatalf("swexn: %d", err)
	}

	h, ok := k.DeliverFault(tcb, true, proc.Ureg_t{Cause: -defs.FaultPage, Eip: textVA})
	if !ok {
		t.Fatal("expected handler delivery")
	}
	if h.Entry != textVA {
		t.Fatalf("handler entry = %#x", h.Entry)
	}
	arg, err := tcb.Pcb.As.Userreadn(h.Stack, 4)
	if err != 0 || arg != 0x1234 {
		t.Fatalf("staged arg = %#x, %d; want 0x1234", arg, err)
	}
}

func TestTaskVanishKillsTree(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	childPcb, childTcb, err := k.Kern.Fork(tcb)
	if err != 0 {
		t.Fatalf("fork: %d", err)
	}
	if err := k.TaskVanish(tcb, childPcb.Pid); err != 0 {
		t.Fatalf("task_vanish: %d", err)
	}
	pid, _, werr := k.Kern.Wait(tcb)
	if werr != 0 || pid != childPcb.Pid {
		t.Fatalf("wait after task_vanish: pid=%d err=%d", pid, werr)
	}
	if !childTcb.Note.Doomed() {
		t.Fatal("victim thread must be marked doomed")
	}
}

func TestHaltStopsTicks(t *testing.T) {
	k, _, _ := bootKernel(t)
	k.Timer.Start()
	time.Sleep(50 * time.Millisecond)
	if k.Kern.Sched.GetTicks() == 0 {
		t.Fatal("timer delivered no ticks")
	}
	k.Halt()
	if !k.Halted() {
		t.Fatal("Halted must report true after Halt")
	}
	time.Sleep(20 * time.Millisecond) // let any in-flight tick land
	after := k.Kern.Sched.GetTicks()
	time.Sleep(50 * time.Millisecond)
	if got := k.Kern.Sched.GetTicks(); got != after {
		t.Fatalf("ticks advanced after halt: %d -> %d", after, got)
	}
	k.Halt() // repeated halt is harmless
}

func TestCursorAndColor(t *testing.T) {
	k, _, _ := bootKernel(t)
	if err := k.SetCursorPos(5, 10); err != 0 {
		t.Fatalf("set_cursor_pos: %d", err)
	}
	if r, c := k.GetCursorPos(); r != 5 || c != 10 {
		t.Fatalf("get_cursor_pos = %d,%d", r, c)
	}
	if err := k.SetCursorPos(ConsoleHeight, 0); err != -defs.EINVAL {
		t.Fatalf("out-of-range cursor: got %d want -EINVAL", err)
	}
	if err := k.SetTermColor(0x1f); err != 0 {
		t.Fatalf("set_term_color: %d", err)
	}
	if err := k.SetTermColor(0x100); err != -defs.EINVAL {
		t.Fatalf("out-of-range color: got %d want -EINVAL", err)
	}
}

func TestWaitWritesStatusPointer(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	as := tcb.Pcb.As

	if err := k.NewPages(tcb, userBuf, 0x1000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	statusVA := userBuf + 0x40

	childPcb, childTcb, err := k.Fork(tcb)
	if err != 0 {
		t.Fatalf("fork: %d", err)
	}
	done := make(chan struct{})
	go func() {
		k.SetStatus(childTcb, 42)
		k.Vanish(childTcb)
		close(done)
	}()

	pid, werr := k.Wait(tcb, statusVA)
	<-done
	if werr != 0 || pid != childPcb.Pid {
		t.Fatalf("wait: pid=%d err=%d want pid=%d", pid, werr, childPcb.Pid)
	}
	if v, rerr := as.Userreadn(statusVA, 4); rerr != 0 || v != 42 {
		t.Fatalf("*status_ptr = %d, %d; want 42", v, rerr)
	}

	if _, err := k.Wait(tcb, 0x20000000); err == 0 {
		t.Fatal("wait with an unmapped status pointer must fail")
	}
}

func TestMisbehaveModes(t *testing.T) {
	k, tcb, _ := bootKernel(t)
	k.Misbehave(tcb, 0)
	k.Misbehave(tcb, 4)
}
