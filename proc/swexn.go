package proc

import (
	"github.com/zhengguan/15410-sub000/bounds"
	"github.com/zhengguan/15410-sub000/defs"
)

// Ureg_t is the register/fault-cause snapshot delivered to a user-mode
// exception handler. There is no
// literal x86 trap frame to capture, so this simulation carries the
// fault cause and the few general-purpose-register-shaped fields a
// handler might inspect or a resuming newureg might override.
type Ureg_t struct {
	Cause  defs.Err_t
	Eip    int
	Esp    int
	Eflags int
}

// eflagsKernelMask is the set of bits newureg may never set on resume:
// the interrupt flag and the IOPL field. All other flags (arithmetic,
// direction, overflow) pass through unmodified.
const eflagsKernelMask = 0x200 | 0x3000 // IF | IOPL

// Swexn implements the swexn system call's registration half: with
// stack or entry zero the current handler, if any, is de-registered;
// otherwise both must point into user memory and the triple is
// installed (replacing any previous registration -- a thread has at
// most one handler). If newureg is non-nil it is an immediate resume
// request: the control bits in eflagsKernelMask are cleared and the
// result is returned as the effective register state to resume with.
func (tcb *Tcb_t) Swexn(stack, entry, arg int, newureg *Ureg_t) (*Ureg_t, defs.Err_t) {
	if stack == 0 || entry == 0 {
		tcb.Handler = SwexnHandler_t{}
	} else {
		if stack < bounds.USERMIN || stack >= bounds.UserTop ||
			entry < bounds.USERMIN || entry >= bounds.UserTop {
			return nil, -defs.EINVAL
		}
		tcb.Handler = SwexnHandler_t{Entry: entry, Stack: stack, Arg: arg, Registered: true}
	}
	if newureg == nil {
		return nil, 0
	}
	resumed := *newureg
	resumed.Eflags &^= eflagsKernelMask
	return &resumed, 0
}

// uregSize is the room Deliver requires on the handler stack for the
// saved ureg, the arg, and a return slot.
const uregSize = 64

// Deliver implements the fault-delivery half of the exception channel: if a
// handler is registered and its stack still resolves to writable user
// memory, the handler is de-registered (one-shot), the faulting ureg is
// staged on the handler stack, and the triple is returned so the caller
// can resume at entry with esp set to the handler stack. With no
// handler (or an unmapped handler stack) the thread is killed with the
// fault as its status and Deliver reports that the caller must Vanish.
func (k *Kern_t) Deliver(self *Tcb_t, fault defs.Err_t, ureg Ureg_t) (SwexnHandler_t, bool) {
	h := self.Handler
	stackOK := false
	if h.Registered {
		esp := h.Stack - uregSize
		stackOK = self.Pcb.As.CheckUserRegion(esp, uregSize, true) == 0
	}
	if !h.Registered || !stackOK {
		self.Note.Kill(fault)
		k.SetStatus(self, int(fault))
		return SwexnHandler_t{}, false
	}
	self.Handler = SwexnHandler_t{}

	// Stage the ureg snapshot and arg where the handler expects them.
	esp := h.Stack - uregSize
	self.Pcb.As.Userwriten(esp, 4, h.Arg)
	self.Pcb.As.Userwriten(esp+4, 4, int(ureg.Cause))
	self.Pcb.As.Userwriten(esp+8, 4, ureg.Eip)
	self.Pcb.As.Userwriten(esp+12, 4, ureg.Esp)
	self.Pcb.As.Userwriten(esp+16, 4, ureg.Eflags)
	h.Stack = esp
	return h, true
}
