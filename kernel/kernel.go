// Package kernel aggregates the kernel core's subsystems into the
// single context object the bootstrap layer constructs and
// every trap entry point dispatches through: the scheduler and
// process/thread registries (package proc), the console and keyboard,
// the boot catalogue and ELF-shaped loader, the P4 disk filesystem, and
// the timer. One Kernel value replaces what would otherwise be a pile
// of global symbols.
package kernel

import (
	"sync/atomic"

	"github.com/zhengguan/15410-sub000/caller"
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/fd"
	"github.com/zhengguan/15410-sub000/fs"
	"github.com/zhengguan/15410-sub000/mem"
	"github.com/zhengguan/15410-sub000/msi"
	"github.com/zhengguan/15410-sub000/pci"
	"github.com/zhengguan/15410-sub000/proc"
	"github.com/zhengguan/15410-sub000/stat"
	"github.com/zhengguan/15410-sub000/util"
)

// DefaultFrames is the user frame pool size NewKernel configures when
// the caller does not care: 16 MiB of 4 KiB frames.
const DefaultFrames = 4096

// Kernel wires every subsystem together. Exactly one exists per
// simulated machine.
type Kernel struct {
	Kern      *proc.Kern_t
	Console   *Console_t
	Keyboard  *Keyboard_t
	Catalogue *Catalogue_t
	Timer     *Timer_t

	// FS is the mounted P4 filesystem, nil until MountDisk succeeds.
	FS *fs.FS_t
	// DiskVec is the interrupt vector MountDisk allocated for the disk.
	DiskVec msi.Vec_t

	// confd/kbfd are the kernel-internal descriptors the console and
	// keyboard syscalls dispatch through.
	confd *fd.Fd_t
	kbfd  *fd.Fd_t

	halted int32
}

// NewKernel constructs a kernel over a fresh frame pool of nframes user
// frames, with an empty boot catalogue and a running thread reaper. The
// timer is created but not started; the caller starts it once the
// first process is loaded.
func NewKernel(nframes uint32) *Kernel {
	mem.Physmem = mem.Mkphysmem(0x1000, nframes)
	con := NewConsole()
	k := &Kernel{
		Kern:      proc.NewKern(),
		Console:   con,
		Keyboard:  NewKeyboard(con),
		Catalogue: NewCatalogue(),
	}
	k.Timer = NewTimer(k.Kern.Sched, &k.halted)
	k.confd = &fd.Fd_t{Fops: con, Perms: fd.FD_WRITE}
	k.kbfd = &fd.Fd_t{Fops: k.Keyboard, Perms: fd.FD_READ}
	return k
}

// MountDisk mounts a P4 filesystem from disk and claims an interrupt
// vector for it, standing in for the PCI/IDE bring-up the external
// driver performs.
func (k *Kernel) MountDisk(disk pci.Disk_i) defs.Err_t {
	f, err := fs.Mount(disk)
	if err != 0 {
		return err
	}
	k.FS = f
	k.DiskVec = msi.Alloc()
	return 0
}

// LoadInit constructs the first user process (init):
// a fresh PCB/TCB pair with no parent, loaded with the named catalogue
// image and the given argv. Children orphaned by later reaps re-parent
// to this process.
func (k *Kernel) LoadInit(name string, argv []string) (*proc.Tcb_t, ExecResult, defs.Err_t) {
	img, err := k.Catalogue.Lookup(name)
	if err != 0 {
		return nil, ExecResult{}, err
	}
	_, tcb := k.Kern.NewProcess(nil)
	res, err := k.execImage(tcb.Pcb.As, img, argv)
	if err != 0 {
		return nil, ExecResult{}, err
	}
	return tcb, res, 0
}

// maxPrint bounds a single print(); matches the largest buffer readline
// will ever stage; one staging bound is shared by both directions of
// console I/O.
const maxPrint = MaxReadline

// Print implements print(len, buf): the user buffer is
// validated, its pages are read-locked against a concurrent
// remove_pages, the bytes are staged into kernel memory, and the whole
// buffer is written to the console atomically under the console's own
// lock.
func (k *Kernel) Print(self *proc.Tcb_t, bufVA, length int) defs.Err_t {
	if length < 0 || length > maxPrint {
		return -defs.EINVAL
	}
	if length == 0 {
		return 0
	}
	if k.confd.Perms&fd.FD_WRITE == 0 {
		return -defs.EINVAL
	}
	as := self.Pcb.As
	if err := as.CheckUserRegion(bufVA, length, false); err != 0 {
		return err
	}

	k.Kern.RLockPages(self, bufVA, length)
	defer k.Kern.RUnlockPages(self, bufVA, length)

	staged := make([]uint8, length)
	if err := as.User2k(staged, bufVA); err != 0 {
		return err
	}
	_, err := k.confd.Fops.Write(staged)
	return err
}

// ReadLine implements readline(len, buf): it blocks until a newline or
// length bytes have been staged (echoing and backspace handled by the
// keyboard path), then performs one final copy into the user buffer
// under the memlock. Returns the number of bytes copied.
func (k *Kernel) ReadLine(self *proc.Tcb_t, bufVA, length int) (int, defs.Err_t) {
	if k.kbfd.Perms&fd.FD_READ == 0 {
		return 0, -defs.EINVAL
	}
	as := self.Pcb.As
	if err := as.CheckUserRegion(bufVA, length, true); err != 0 {
		return 0, err
	}
	staged, err := k.Keyboard.ReadLine(k.Kern.Sched, self.Tcb_t, length)
	if err != 0 {
		return 0, err
	}
	if len(staged) == 0 {
		return 0, 0
	}

	k.Kern.RLockPages(self, bufVA, len(staged))
	defer k.Kern.RUnlockPages(self, bufVA, len(staged))
	if err := as.K2user(staged, bufVA); err != 0 {
		return 0, err
	}
	return len(staged), 0
}

// GetChar implements getchar(): one character, no echo.
func (k *Kernel) GetChar(self *proc.Tcb_t) int {
	return int(k.Keyboard.GetChar(k.Kern.Sched, self.Tcb_t))
}

// Readfile implements readfile(name, buf, count, offset):
// name is copied out of user memory, resolved on the mounted P4
// filesystem, and up to count bytes starting at offset are copied back
// into the user buffer. Returns the number of bytes read.
func (k *Kernel) Readfile(self *proc.Tcb_t, nameVA, bufVA, count, offset int) (int, defs.Err_t) {
	if count < 0 || offset < 0 {
		return 0, -defs.EINVAL
	}
	if k.FS == nil {
		return 0, -defs.ENOENT
	}
	as := self.Pcb.As
	name, err := as.Userstr(nameVA, MaxArgLen)
	if err != 0 {
		return 0, err
	}
	if count == 0 {
		return 0, 0
	}
	if err := as.CheckUserRegion(bufVA, count, true); err != 0 {
		return 0, err
	}

	staged := make([]uint8, count)
	n, err := k.FS.Readfile(name.String(), staged, offset)
	if err != 0 {
		return 0, err
	}
	if n == 0 {
		return 0, 0
	}

	k.Kern.RLockPages(self, bufVA, n)
	defer k.Kern.RUnlockPages(self, bufVA, n)
	if err := as.K2user(staged[:n], bufVA); err != 0 {
		return 0, err
	}
	return n, 0
}

// Sizefile implements sizefile(name): the total byte length of a P4
// disk file.
func (k *Kernel) Sizefile(self *proc.Tcb_t, nameVA int) (int, defs.Err_t) {
	if k.FS == nil {
		return 0, -defs.ENOENT
	}
	name, err := self.Pcb.As.Userstr(nameVA, MaxArgLen)
	if err != 0 {
		return 0, err
	}
	return k.FS.Sizefile(name.String())
}

// Statfile reports a P4 disk file's metadata as a Stat_t, the shape a
// stat-aware user library copies out of kernel memory.
func (k *Kernel) Statfile(name string) (*stat.Stat_t, defs.Err_t) {
	if k.FS == nil {
		return nil, -defs.ENOENT
	}
	node, ok := k.FS.Lookup(name)
	if !ok {
		return nil, -defs.ENOENT
	}
	st := &stat.Stat_t{}
	st.Wdev(uint(defs.D_DISK))
	st.Wino(uint(node.Ino))
	st.Wsize(uint(node.Size))
	return st, 0
}

// DeliverFault drives the software-exception channel for
// a fault raised while running self. Faults taken from kernel mode are
// fatal: the call chain is dumped and the kernel panics.
// From user mode, a registered handler is delivered one-shot; with no
// handler the thread is killed with the fault as its status and
// vanished, and DeliverFault reports that no handler ran.
func (k *Kernel) DeliverFault(self *proc.Tcb_t, fromUser bool, ureg proc.Ureg_t) (proc.SwexnHandler_t, bool) {
	if !fromUser {
		caller.Fatal("kernel mode fault")
	}
	h, ok := k.Kern.Deliver(self, ureg.Cause, ureg)
	if !ok {
		k.Kern.Vanish(self)
		return proc.SwexnHandler_t{}, false
	}
	return h, true
}

// Halt implements halt: the simulated machine stops -- the timer quits
// and no further ticks are delivered. Repeated halts are harmless.
func (k *Kernel) Halt() {
	if atomic.CompareAndSwapInt32(&k.halted, 0, 1) {
		k.Timer.Stop()
	}
}

// Halted reports whether Halt has been called.
func (k *Kernel) Halted() bool {
	return atomic.LoadInt32(&k.halted) != 0
}

// TaskVanish implements task_vanish(pid), killing the process tree
// rooted at pid.
func (k *Kernel) TaskVanish(self *proc.Tcb_t, pid defs.Pid_t) defs.Err_t {
	return k.Kern.TaskVanish(self, pid)
}

// Misbehave implements the misbehave(mode) debug call.
func (k *Kernel) Misbehave(self *proc.Tcb_t, mode int) {
	k.Kern.Misbehave(self, mode)
}

// SetTermColor, SetCursorPos, and GetCursorPos expose the console's
// cursor/color controls as syscalls.
func (k *Kernel) SetTermColor(color int) defs.Err_t { return k.Console.SetTermColor(color) }
func (k *Kernel) SetCursorPos(row, col int) defs.Err_t {
	return k.Console.SetCursorPos(row, col)
}
func (k *Kernel) GetCursorPos() (int, int) { return k.Console.GetCursorPos() }

// RegisterImage bakes an executable into the boot catalogue, standing
// in for the build step that links user programs into the kernel image.
// The data slice is shared, not copied; callers hand over ownership.
func (k *Kernel) RegisterImage(img *Image_t) {
	k.Catalogue.Register(img)
}

// MkFlatImage assembles a minimal single-text-section image whose entry
// is its load address, handy for tests and for catalogue stubs whose
// code is never actually interpreted. Rounded sizes keep LoadSegment's
// page-multiple contract satisfied.
func MkFlatImage(name string, loadVA int, text []byte) *Image_t {
	sz := util.Roundup(util.Max(len(text), 1), mem.PGSIZE)
	return &Image_t{
		Name:  name,
		Entry: loadVA,
		Sections: []Section_t{
			{Name: ".text", FileOff: 0, MemAddr: loadVA, Length: sz},
		},
		Data: text,
	}
}
