package kernel

import (
	"github.com/zhengguan/15410-sub000/bounds"
	"github.com/zhengguan/15410-sub000/defs"
	"github.com/zhengguan/15410-sub000/mem"
	"github.com/zhengguan/15410-sub000/proc"
	"github.com/zhengguan/15410-sub000/util"
	"github.com/zhengguan/15410-sub000/vmm"
)

// vmAS aliases vmm.Vm_t for brevity in this file's signatures.
type vmAS = vmm.Vm_t

// MaxArgv and MaxArgLen bound argv parsing; both are sized generously
// against ConsoleWidth-scale command lines.
const (
	MaxArgv   = 128
	MaxArgLen = 512
)

// execStackPages is the size, in pages, of the stack exec maps for
// the new image.
const execStackPages = 1

// ExecResult is the "iret frame" exec hands back: the fields real
// hardware would load from a trap frame to resume in user mode. There
// is no literal trap frame in this simulation, so Exec returns this
// directly to its caller instead of performing an actual mode switch;
// see proc's package doc comment for the same Go-has-no-dual-return
// accommodation made for fork.
type ExecResult struct {
	Entry int
	Esp   int
}

// segWritable reports whether name's section is writable:
// .text/.rodata read-only, .data/.bss writable.
func segWritable(name string) bool {
	return name == ".data" || name == ".bss"
}

// loadImage maps every section of img into as, per segWritable's
// read/write split, zero-padding each section out to whole pages.
func loadImage(as *vmAS, img *Image_t) defs.Err_t {
	for _, s := range img.Sections {
		if s.Length == 0 {
			continue
		}
		pageBase := util.Rounddown(s.MemAddr, mem.PGSIZE)
		pageEnd := util.Roundup(s.MemAddr+s.Length, mem.PGSIZE)
		buf := make([]byte, pageEnd-pageBase)
		copy(buf[s.MemAddr-pageBase:], img.bytesFor(s))
		if err := as.LoadSegment(pageBase, pageEnd-pageBase, segWritable(s.Name), buf); err != 0 {
			return err
		}
	}
	return 0
}

// validateImage implements exec's image checks: every section
// must lie entirely within user memory, and the entry point must fall
// inside .text.
func validateImage(img *Image_t) defs.Err_t {
	text, ok := img.section(".text")
	if !ok {
		return -defs.ENOEXEC
	}
	if img.Entry < text.MemAddr || img.Entry >= text.MemAddr+text.Length {
		return -defs.EINVAL
	}
	for _, s := range img.Sections {
		if s.MemAddr < bounds.USERMIN || s.MemAddr+s.Length > bounds.UserTop {
			return -defs.EINVAL
		}
	}
	return 0
}

// Exec implements exec(name, argv): validates the name
// and argv, requires the caller's process to have exactly one live
// thread, looks the name up in the boot catalogue, validates its
// section layout, destroys the caller's current user mappings, maps the
// new image's segments and a fresh stack, stages argv onto that stack,
// and returns the entry/esp pair the caller resumes at.
func (k *Kernel) Exec(self *proc.Tcb_t, nameVA, argvVA int) (ExecResult, defs.Err_t) {
	if self.Pcb.NThreads() != 1 {
		return ExecResult{}, -defs.EINVAL
	}

	as := self.Pcb.As
	name, err := as.Userstr(nameVA, MaxArgLen)
	if err != 0 {
		return ExecResult{}, err
	}

	argv, err := k.readArgv(as, argvVA)
	if err != 0 {
		return ExecResult{}, err
	}

	img, err := k.Catalogue.Lookup(name.String())
	if err != 0 {
		return ExecResult{}, err
	}
	return k.execImage(as, img, argv)
}

// execImage performs the load half of exec against an already-resolved
// catalogue image: validate the section layout, tear down the old user
// mappings, map the new segments and a fresh stack, and stage argv.
// The bootstrap path (LoadInit) shares it with the exec syscall.
func (k *Kernel) execImage(as *vmAS, img *Image_t, argv []string) (ExecResult, defs.Err_t) {
	if err := validateImage(img); err != 0 {
		return ExecResult{}, err
	}

	as.Destroy()
	if err := loadImage(as, img); err != 0 {
		return ExecResult{}, err
	}

	stackTop := bounds.UserTop
	stackBase := stackTop - execStackPages*mem.PGSIZE
	if err := as.LoadSegment(stackBase, execStackPages*mem.PGSIZE, true, nil); err != 0 {
		return ExecResult{}, err
	}
	esp, err := stageArgv(as, stackBase, stackTop, argv)
	if err != 0 {
		return ExecResult{}, err
	}

	return ExecResult{Entry: img.Entry, Esp: esp}, 0
}

// readArgv walks the user argv** array (a NULL-terminated list of
// pointers to NUL-terminated strings) and returns the decoded strings.
func (k *Kernel) readArgv(as *vmAS, argvVA int) ([]string, defs.Err_t) {
	if argvVA == 0 {
		return nil, 0
	}
	var argv []string
	for i := 0; i < MaxArgv; i++ {
		ptr, err := as.Userreadn(argvVA+i*4, 4)
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			return argv, 0
		}
		s, err := as.Userstr(ptr, MaxArgLen)
		if err != 0 {
			return nil, err
		}
		argv = append(argv, s.String())
	}
	return nil, -defs.E2BIG
}

// stageArgv writes argv's strings and a pointer array onto the fresh
// stack [stackBase, stackTop): the strings sit at the top, below them
// the NULL-terminated argv pointer array, and below that argc, which is
// where the returned esp points. There is no canonical C-runtime stack
// ABI to match here, so this lays out a
// self-consistent one a catalogue image's own _start would agree with:
// *esp == argc, esp+4 == &argv[0].
func stageArgv(as *vmAS, stackBase, stackTop int, argv []string) (int, defs.Err_t) {
	cursor := stackTop
	ptrs := make([]int, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		cursor -= len(s) + 1
		if cursor < stackBase {
			return 0, -defs.E2BIG
		}
		buf := append([]byte(s), 0)
		if err := as.K2user(buf, cursor); err != 0 {
			return 0, err
		}
		ptrs[i] = cursor
	}

	cursor &^= 3 // word-align below the strings
	words := append(ptrs, 0) // argv array plus its NULL terminator
	for i := len(words) - 1; i >= 0; i-- {
		cursor -= 4
		if cursor < stackBase {
			return 0, -defs.E2BIG
		}
		if err := as.Userwriten(cursor, 4, words[i]); err != 0 {
			return 0, err
		}
	}

	cursor -= 4
	if cursor < stackBase {
		return 0, -defs.E2BIG
	}
	if err := as.Userwriten(cursor, 4, len(argv)); err != 0 {
		return 0, err
	}
	return cursor, 0
}
