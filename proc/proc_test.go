package proc

import (
	"os"
	"sync"
	"testing"

	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/mem"
)

func TestMain(m *testing.M) {
	mem.Physmem = mem.Mkphysmem(0x1000, 2048)
	os.Exit(m.Run())
}

// TestForkWaitScenario: fork; child
// sets status 42 and vanishes; parent's wait returns the child's pid
// and status.
func TestForkWaitScenario(t *testing.T) {
	k := NewKern()
	_, parent := k.NewProcess(nil)

	_, child, err := k.Fork(parent)
	if err != 0 {
		t.Fatalf("fork: %d", err)
	}

	done := make(chan struct{})
	go func() {
		k.SetStatus(child, 42)
		k.Vanish(child)
		close(done)
	}()

	pid, status, werr := k.Wait(parent)
	<-done
	if werr != 0 {
		t.Fatalf("wait: %d", werr)
	}
	if pid != child.Pid {
		t.Fatalf("wait pid = %d, want %d", pid, child.Pid)
	}
	if status != 42 {
		t.Fatalf("wait status = %d, want 42", status)
	}
}

// TestForkFortyChildren forks 40 children;
// each sets status to its slot index then vanishes; every slot appears
// exactly once across 40 waits, with matching pid.
func TestForkFortyChildren(t *testing.T) {
	const n = 40
	k := NewKern()
	_, parent := k.NewProcess(nil)

	children := make([]*Tcb_t, n)
	for i := 0; i < n; i++ {
		_, c, err := k.Fork(parent)
		if err != 0 {
			t.Fatalf("fork %d: %d", i, err)
		}
		children[i] = c
	}

	var wg sync.WaitGroup
	for i, c := range children {
		wg.Add(1)
		go func(i int, c *Tcb_t) {
			defer wg.Done()
			k.SetStatus(c, i)
			k.Vanish(c)
		}(i, c)
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		pid, status, err := k.Wait(parent)
		if err != 0 {
			t.Fatalf("wait %d: %d", i, err)
		}
		if seen[status] {
			t.Fatalf("slot %d observed twice", status)
		}
		seen[status] = true
		if children[status].Pid != pid {
			t.Fatalf("slot %d: pid %d, want %d", status, pid, children[status].Pid)
		}
	}
	wg.Wait()
	if _, _, err := k.Wait(parent); err != -defs.ECHILD {
		t.Fatalf("wait with no children left: got %d want -ECHILD", err)
	}
}

// TestReparentToInit: P forks C, C forks G; P reaps C while G is still
// alive. G must re-parent to init, and init's wait must collect G's
// status exactly once.
func TestReparentToInit(t *testing.T) {
	k := NewKern()
	initPcb, initTcb := k.NewProcess(nil)

	_, pTcb, err := k.Fork(initTcb)
	if err != 0 {
		t.Fatalf("fork P: %d", err)
	}
	cPcb, cTcb, err := k.Fork(pTcb)
	if err != 0 {
		t.Fatalf("fork C: %d", err)
	}
	gPcb, gTcb, err := k.Fork(cTcb)
	if err != 0 {
		t.Fatalf("fork G: %d", err)
	}

	k.SetStatus(cTcb, 1)
	k.Vanish(cTcb)
	pid, _, werr := k.Wait(pTcb)
	if werr != 0 || pid != cPcb.Pid {
		t.Fatalf("P's wait: pid=%d err=%d, want %d", pid, werr, cPcb.Pid)
	}

	// C is reaped; G must now be init's child with a fresh parent link.
	if _, ok := initPcb.children[gPcb.Pid]; !ok {
		t.Fatal("G not re-parented to init after C was reaped")
	}
	if gPcb.parent != initPcb {
		t.Fatal("G's parent link still points at the reaped C")
	}

	k.SetStatus(gTcb, 7)
	k.Vanish(gTcb)
	pid, status, werr := k.Wait(initTcb)
	if werr != 0 || pid != gPcb.Pid || status != 7 {
		t.Fatalf("init's wait: pid=%d status=%d err=%d, want pid=%d status=7",
			pid, status, werr, gPcb.Pid)
	}
}

// TestReparentMovesZombies: a zombie grandchild C never collected by
// its parent P must surface on init's zombie list when P is reaped.
func TestReparentMovesZombies(t *testing.T) {
	k := NewKern()
	_, initTcb := k.NewProcess(nil)

	pPcb, pTcb, _ := k.Fork(initTcb)
	cPcb, cTcb, _ := k.Fork(pTcb)

	// C dies first; P never waits, then dies itself.
	k.SetStatus(cTcb, 3)
	k.Vanish(cTcb)
	k.SetStatus(pTcb, 2)
	k.Vanish(pTcb)

	seen := map[defs.Pid_t]int{}
	for i := 0; i < 2; i++ {
		pid, status, err := k.Wait(initTcb)
		if err != 0 {
			t.Fatalf("wait %d: %d", i, err)
		}
		seen[pid] = status
	}
	if seen[pPcb.Pid] != 2 || seen[cPcb.Pid] != 3 {
		t.Fatalf("statuses lost across reparent: %v", seen)
	}
	if _, _, err := k.Wait(initTcb); err != -defs.ECHILD {
		t.Fatalf("extra wait: got %d want -ECHILD", err)
	}
}

func TestWaitNoChildrenFails(t *testing.T) {
	k := NewKern()
	_, self := k.NewProcess(nil)
	if _, _, err := k.Wait(self); err != -defs.ECHILD {
		t.Fatalf("wait with no children: got %d want -ECHILD", err)
	}
}

// TestFaultKillsWithNoHandler checks that a fault
// with no registered handler kills the thread, and the parent's wait
// observes a negative status encoding the fault.
func TestFaultKillsWithNoHandler(t *testing.T) {
	k := NewKern()
	_, parent := k.NewProcess(nil)
	_, child, _ := k.Fork(parent)

	done := make(chan struct{})
	go func() {
		if _, ok := k.Deliver(child, -defs.FaultPage, Ureg_t{Cause: -defs.FaultPage}); ok {
			t.Error("expected Deliver to report no handler")
		}
		k.Vanish(child)
		close(done)
	}()

	pid, status, err := k.Wait(parent)
	<-done
	if err != 0 || pid != child.Pid {
		t.Fatalf("wait after fault: pid=%d err=%d", pid, err)
	}
	if status >= 0 {
		t.Fatalf("status = %d, want negative fault encoding", status)
	}
	if !child.Note.Doomed() {
		t.Fatal("expected thread to be marked doomed")
	}
}

func TestSwexnRegistersOneShot(t *testing.T) {
	k := NewKern()
	_, self := k.NewProcess(nil)

	const stackBase = 0x10000000
	const entry = 0x10000000
	if err := k.NewPages(self, stackBase, 0x1000); err != 0 {
		t.Fatalf("new_pages for handler stack: %d", err)
	}
	stackTop := stackBase + 0x1000

	if _, err := self.Swexn(stackTop, entry, 7, nil); err != 0 {
		t.Fatalf("swexn register: %d", err)
	}
	if !self.Handler.Registered {
		t.Fatal("expected handler registered")
	}

	h, ok := k.Deliver(self, -defs.FaultDivide, Ureg_t{Cause: -defs.FaultDivide})
	if !ok {
		t.Fatal("expected handler delivery")
	}
	if h.Entry != entry || h.Arg != 7 {
		t.Fatalf("unexpected handler triple: %+v", h)
	}
	if h.Stack >= stackTop {
		t.Fatalf("handler esp %#x must sit below the registered stack top %#x", h.Stack, stackTop)
	}
	if self.Handler.Registered {
		t.Fatal("handler must be de-registered after one delivery (one-shot)")
	}
}

func TestSwexnRejectsKernelAddresses(t *testing.T) {
	k := NewKern()
	_, self := k.NewProcess(nil)
	if _, err := self.Swexn(0x2000, 0x1000, 0, nil); err != -defs.EINVAL {
		t.Fatalf("swexn with kernel-window addresses: got %d want -EINVAL", err)
	}
}

func TestSwexnDeregisterOnZero(t *testing.T) {
	k := NewKern()
	_, self := k.NewProcess(nil)
	const base = 0x10000000
	if err := k.NewPages(self, base, 0x1000); err != 0 {
		t.Fatalf("new_pages: %d", err)
	}
	if _, err := self.Swexn(base+0x1000, base, 0, nil); err != 0 {
		t.Fatalf("swexn register: %d", err)
	}
	if _, err := self.Swexn(0, 0, 0, nil); err != 0 {
		t.Fatalf("swexn deregister: %d", err)
	}
	if self.Handler.Registered {
		t.Fatal("expected handler de-registered")
	}
}

func TestSwexnNewuregMasksControlBits(t *testing.T) {
	k := NewKern()
	_, self := k.NewProcess(nil)
	nu := &Ureg_t{Eip: 0x10000000, Eflags: 0x3246} // IOPL=3, IF set, plus arithmetic flags
	resumed, err := self.Swexn(0, 0, 0, nu)
	if err != 0 {
		t.Fatalf("swexn resume: %d", err)
	}
	if resumed.Eflags&0x200 != 0 || resumed.Eflags&0x3000 != 0 {
		t.Fatalf("IF/IOPL must be masked from newureg: eflags=%#x", resumed.Eflags)
	}
	if resumed.Eflags&0x46 == 0 {
		t.Fatalf("arithmetic flags must pass through: eflags=%#x", resumed.Eflags)
	}
}

func TestThreadForkSharesAddressSpace(t *testing.T) {
	k := NewKern()
	_, self := k.NewProcess(nil)
	t2, err := k.ThreadFork(self)
	if err != 0 {
		t.Fatalf("thread_fork: %d", err)
	}
	if t2.Pcb != self.Pcb || t2.Pcb.As != self.Pcb.As {
		t.Fatal("thread_fork must share the caller's PCB and address space")
	}
}
