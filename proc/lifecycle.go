package proc

import (
	"sync/atomic"

	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/limits"
	ksync "github.com/zhengguan/15410-sub000/sync"
)

// Fork implements the fork() system call's kernel-side work: clone the
// caller's address space and create a PCB containing exactly one TCB.
// A trap-based fork returns the child's pid to the parent and 0 to the
// child via a saved register snapshot; Fork instead returns the
// child's own Tcb_t, which the caller treats as "the child" by driving
// it directly or handing it to a new goroutine (see the package doc
// comment).
func (k *Kern_t) Fork(self *Tcb_t) (*Pcb_t, *Tcb_t, defs.Err_t) {
	if k.Pids.Size() >= limits.Syslimit.Procs || k.Tids.Size() >= limits.Syslimit.Threads {
		return nil, nil, -defs.ENOMEM
	}
	childAs, err := self.Pcb.As.Clone()
	if err != 0 {
		return nil, nil, err
	}

	childPcb := &Pcb_t{
		Pid:      k.allocPid(),
		mu:       *ksync.MkMutex(),
		parent:   self.Pcb,
		children: make(map[defs.Pid_t]*Pcb_t),
		As:       childAs,
	}
	k.Pids.Set(int(childPcb.Pid), childPcb)
	self.Pcb.Lock(k.Sched, self)
	self.Pcb.addChild(childPcb)
	self.Pcb.Unlock(k.Sched, self)

	childTcb := k.mkThread(childPcb)
	return childPcb, childTcb, 0
}

// ThreadFork implements thread_fork(): a new TCB is created sharing the
// caller's PCB (and therefore its address space). It returns the new
// tid to the parent thread; as with Fork, "0 to the child" has no Go
// analogue and is left to the caller's own driving code.
func (k *Kern_t) ThreadFork(self *Tcb_t) (*Tcb_t, defs.Err_t) {
	if k.Tids.Size() >= limits.Syslimit.Threads {
		return nil, -defs.ENOMEM
	}
	return k.mkThread(self.Pcb), 0
}

// SetStatus implements set_status(n): stores n in the caller's PCB for a
// later wait() to observe.
func (k *Kern_t) SetStatus(self *Tcb_t, n int) {
	atomic.StoreInt32(&self.Pcb.Status, int32(n))
}

// Vanish implements vanish(): folds this thread's accounting into the
// PCB and decrements the PCB's live-thread count; the thread that
// brings it to zero zombifies the process (moves it from its parent's
// live-children set to the zombie list and signals the parent's
// wait-condvar). On real hardware the caller would
// then yield forever; here the vanished TCB is pulled from the ready
// queue and handed to the reaper, and the calling goroutine's return
// stands in for "never scheduled again" -- the TCB can no longer enter
// the scheduler, which is the property the yield-forever exists for.
func (k *Kern_t) Vanish(self *Tcb_t) {
	pcb := self.Pcb
	pcb.Accnt.Add(&self.Accnt)

	if atomic.AddInt32(&pcb.nthreads, -1) == 0 {
		k.zombify(pcb, self)
	}

	k.Sched.Remove(self.Tcb_t)
	k.reapQ <- self
}

// TaskVanish implements the task_vanish(pid) debug call: it kills
// every live thread of pid's process and of every process
// in the tree below it. Each victim's liveness note is marked killed
// (so a goroutine driving it can observe Doomed and unwind) and its TCB
// is vanished on its behalf. The caller's own thread is spared even
// when its process is part of the tree -- the caller is expected to
// vanish itself after TaskVanish returns.
func (k *Kern_t) TaskVanish(self *Tcb_t, pid defs.Pid_t) defs.Err_t {
	v, ok := k.Pids.Get(int(pid))
	if !ok {
		return -defs.ESRCH
	}
	root := v.(*Pcb_t)

	var walk func(p *Pcb_t) []*Pcb_t
	walk = func(p *Pcb_t) []*Pcb_t {
		out := []*Pcb_t{}
		p.Lock(k.Sched, self)
		kids := make([]*Pcb_t, 0, len(p.children))
		for _, c := range p.children {
			kids = append(kids, c)
		}
		p.Unlock(k.Sched, self)
		for _, c := range kids {
			out = append(out, walk(c)...)
		}
		return append(out, p)
	}

	for _, pcb := range walk(root) {
		for _, pair := range k.Tids.Elems() {
			tcb := pair.Value.(*Tcb_t)
			if tcb.Pcb != pcb || tcb == self {
				continue
			}
			tcb.Note.Kill(-defs.EINVAL)
			k.Vanish(tcb)
		}
	}
	return 0
}

// live reports whether p is still registered -- pids are never reused,
// so a registry hit for p's pid is p itself unless p has been reaped.
func (k *Kern_t) live(p *Pcb_t) bool {
	v, ok := k.Pids.Get(int(p.Pid))
	return ok && v.(*Pcb_t) == p
}

// initPcb returns the init process, or nil before bootstrap.
func (k *Kern_t) initPcb() *Pcb_t {
	v, ok := k.Pids.Get(int(k.InitPid))
	if !ok {
		return nil
	}
	return v.(*Pcb_t)
}

// zombify moves pcb from its parent's live-children set to its zombie
// list and wakes anyone blocked in the parent's wait(). If the parent
// has itself been reaped (or was never set), pcb is delivered to init
// instead -- unless pcb *is* init, in which case there is nowhere left
// to go and it is simply never collected.
func (k *Kern_t) zombify(pcb *Pcb_t, self *Tcb_t) {
	parent := pcb.parent
	if parent == nil || !k.live(parent) {
		parent = k.initPcb()
	}
	if parent == nil || parent == pcb {
		return
	}
	parent.Lock(k.Sched, self)
	delete(parent.children, pcb.Pid)
	parent.zombies = append(parent.zombies, pcb)
	parent.WaitCV.Signal(k.Sched)
	parent.Unlock(k.Sched, self)
}

// Wait implements wait(status_ptr): atomically claims one
// zombie child (FIFO across the zombie list), writes its exit status,
// frees its PCB record, and returns its pid. The reaped child's own
// surviving children and uncollected zombies are handed to init via
// Reparent. With live children but none zombie it blocks on the
// wait-condvar; with no children at all (neither live nor zombie) it
// fails with -ECHILD.
func (k *Kern_t) Wait(self *Tcb_t) (defs.Pid_t, int, defs.Err_t) {
	pcb := self.Pcb
	pcb.Lock(k.Sched, self)
	defer pcb.Unlock(k.Sched, self)

	for {
		if len(pcb.zombies) > 0 {
			z := pcb.zombies[0]
			pcb.zombies = pcb.zombies[1:]
			status := int(atomic.LoadInt32(&z.Status))
			pid := z.Pid
			k.Pids.Del(int(pid))
			k.Reparent(self, z)
			return pid, status, 0
		}
		if len(pcb.children) == 0 {
			return 0, 0, -defs.ECHILD
		}
		pcb.WaitCV.Wait(k.Sched, self.Tcb_t, &pcb.mu)
	}
}

// Reparent moves every live and zombie child of a just-reaped PCB onto
// init, pointing the live children's parent links at init so their own
// zombify and wait bookkeeping land on init rather than on the freed
// record. Called from Wait with reaped already removed from the pid
// registry and the caller's process mutex held; init's mutex is taken
// only when it is not the one already held (init reaping its own child
// re-parents onto itself).
func (k *Kern_t) Reparent(self *Tcb_t, reaped *Pcb_t) {
	initPcb := k.initPcb()
	if initPcb == nil || initPcb == reaped {
		return
	}
	nested := initPcb != self.Pcb
	if nested {
		initPcb.Lock(k.Sched, self)
	}
	for pid, c := range reaped.children {
		c.parent = initPcb
		initPcb.children[pid] = c
		delete(reaped.children, pid)
	}
	if len(reaped.zombies) > 0 {
		initPcb.zombies = append(initPcb.zombies, reaped.zombies...)
		reaped.zombies = nil
		initPcb.WaitCV.Signal(k.Sched)
	}
	if nested {
		initPcb.Unlock(k.Sched, self)
	}
}
