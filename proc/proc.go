// Package proc implements the process/thread registry and the
// system-call surface built on top of it: fork, thread_fork, wait,
// vanish, set_status, the memory and timing calls, and the
// bootstrap-owned thread reaper.
//
// A real trap-and-return syscall ABI has no Go analogue (there is no
// single call that "returns twice", once into the parent and once into
// a freshly-minted child). Kern_t's Fork therefore returns the
// decomposed result directly to its caller -- the new child's Pcb_t
// and Tcb_t -- and a caller that wants to drive the child as a second
// thread of control spawns its own goroutine against that Tcb_t.
package proc

import (
	"sync/atomic"

	"github.com/zhengguan/15410-sub000/accnt"
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/hashtable"
	"github.com/zhengguan/15410-sub000/sched"
	ksync "github.com/zhengguan/15410-sub000/sync"
	"github.com/zhengguan/15410-sub000/tinfo"
	"github.com/zhengguan/15410-sub000/vmm"
)

// SwexnHandler_t is a registered one-shot software-exception handler
// triple.
type SwexnHandler_t struct {
	Entry      int
	Stack      int
	Arg        int
	Registered bool
}

// Tcb_t is the kernel core's thread control block: the scheduler
// identity (embedded), the owning process, the registered exception
// handler, and the liveness note the reaper and the exception channel
// consult.
type Tcb_t struct {
	*sched.Tcb_t
	Pid     defs.Pid_t
	Pcb     *Pcb_t
	Note    *tinfo.Tnote_t
	Handler SwexnHandler_t
	Accnt   accnt.Accnt_t
}

// Pcb_t is the kernel core's process control block.
type Pcb_t struct {
	Pid    defs.Pid_t
	Status int32

	mu ksync.Mutex_t // guards children/zombies and pairs with WaitCV

	parent   *Pcb_t // weak; rewritten to init when the parent is reaped
	children map[defs.Pid_t]*Pcb_t
	zombies  []*Pcb_t

	WaitCV ksync.Cond_t

	nthreads int32

	As    *vmm.Vm_t
	Accnt accnt.Accnt_t
}

// Lock/Unlock expose the process mutex to callers (e.g. wait, vanish)
// that must hold it across a children/zombies mutation and the
// corresponding condvar wait.
func (p *Pcb_t) Lock(sc *sched.Sched_t, self *Tcb_t)   { p.mu.Lock(sc, self.Tcb_t) }
func (p *Pcb_t) Unlock(sc *sched.Sched_t, self *Tcb_t) { p.mu.Unlock(sc, self.Tcb_t) }

// NThreads returns the number of currently live threads, used by exec
// to reject a caller whose process has more than one.
func (p *Pcb_t) NThreads() int { return int(atomic.LoadInt32(&p.nthreads)) }

// Kern_t is the kernel-wide context aggregate: the scheduler, the
// pid/tid registries, the per-page memory lock table, and the reaper's
// to-reap queue. Bootstrap constructs exactly one and every syscall
// dispatch entry point takes it explicitly rather than reaching
// through globals.
type Kern_t struct {
	Sched   *sched.Sched_t
	Pids    *hashtable.Hashtable_t // defs.Pid_t -> *Pcb_t
	Tids    *hashtable.Hashtable_t // defs.Tid_t -> *Tcb_t
	Mlock   *ksync.Memlock_t
	Threads *tinfo.Threadinfo_t

	nextPid int64
	nextTid int64

	InitPid defs.Pid_t

	reapQ chan *Tcb_t
}

// NewKern constructs an empty kernel context: an idle thread (tid 0,
// never placed in any process, the scheduler's fallback), the
// registries, and a running thread-reaper goroutine consuming reapQ --
// the dedicated always-runnable reaper thread.
func NewKern() *Kern_t {
	idle := sched.NewTcb(0)
	k := &Kern_t{
		Sched:   sched.NewSched(idle),
		Pids:    hashtable.MkHash(256),
		Tids:    hashtable.MkHash(256),
		Mlock:   ksync.MkMemlock(),
		Threads: tinfo.MkThreadinfo(),
		reapQ:   make(chan *Tcb_t, 256),
	}
	go k.reaper()
	return k
}

func (k *Kern_t) allocPid() defs.Pid_t {
	return defs.Pid_t(atomic.AddInt64(&k.nextPid, 1))
}

func (k *Kern_t) allocTid() defs.Tid_t {
	return defs.Tid_t(atomic.AddInt64(&k.nextTid, 1))
}

// reaper consumes vanished TCBs and frees their "kernel stack" --
// standing in here for removal from the tid registry and liveness
// table, since this simulation has no literal stack allocation to
// reclaim. A thread cannot free its own stack, hence the dedicated
// goroutine.
func (k *Kern_t) reaper() {
	for tcb := range k.reapQ {
		tcb.Note.Die()
		k.Tids.Del(int(tcb.Tid))
		k.Threads.Del(tcb.Tid)
	}
}

// mkThread allocates a fresh TCB for pcb, sharing its address space,
// registers it, and adds it to the ready queue.
func (k *Kern_t) mkThread(pcb *Pcb_t) *Tcb_t {
	tid := k.allocTid()
	tcb := &Tcb_t{
		Tcb_t: sched.NewTcb(tid),
		Pid:   pcb.Pid,
		Pcb:   pcb,
		Note:  tinfo.MkTnote(),
	}
	k.Tids.Set(int(tid), tcb)
	k.Threads.Put(tid, tcb.Note)
	k.Sched.AddRunnable(tcb.Tcb_t)
	atomic.AddInt32(&pcb.nthreads, 1)
	return tcb
}

// NewProcess implements new_process(): it allocates a
// PCB and its first TCB, assigns fresh ids, and registers both. parent
// may be nil only for the bootstrap's first process (the init process).
func (k *Kern_t) NewProcess(parent *Pcb_t) (*Pcb_t, *Tcb_t) {
	pcb := &Pcb_t{
		Pid:      k.allocPid(),
		mu:       *ksync.MkMutex(),
		parent:   parent,
		children: make(map[defs.Pid_t]*Pcb_t),
		As:       vmm.Mkaddrspace(),
	}
	k.Pids.Set(int(pcb.Pid), pcb)
	if parent != nil {
		parent.addChild(pcb)
	} else {
		k.InitPid = pcb.Pid
	}
	tcb := k.mkThread(pcb)
	return pcb, tcb
}

func (p *Pcb_t) addChild(child *Pcb_t) {
	p.children[child.Pid] = child
}

// Gettid returns tcb's thread id, the gettid() syscall.
func (tcb *Tcb_t) Gettid() defs.Tid_t { return tcb.Tcb_t.Tid }
