// Package defs holds the types and constants shared by every layer of the
// kernel core: the error code convention, thread/process identifiers, and
// the device and exception numbers referenced throughout the tree.
package defs

// Err_t is the kernel's universal fallible-return type. Zero means
// success; a negative value names the failure (see the E* constants
// below). Unlike the rest of the Go ecosystem the kernel core never
// returns a Go error -- every syscall, VM operation, and sync primitive
// follows this convention, mirroring the C kernel's negative errno style.
type Err_t int

// Tid_t identifies a thread. Tid_t(0) never names a real thread.
type Tid_t int

// Pid_t identifies a process. Pid_t(0) never names a real process.
type Pid_t int

// Error codes. Negate one of these to produce an Err_t failure, e.g.
// -defs.EINVAL.
const (
	EINVAL       Err_t = 1  /// invalid argument
	EFAULT       Err_t = 2  /// user pointer validation failed
	ENOMEM       Err_t = 3  /// out of physical frames
	ENOHEAP      Err_t = 4  /// out of kernel heap budget
	ESRCH        Err_t = 5  /// no such process or thread
	ECHILD       Err_t = 6  /// wait() called with no children
	ENAMETOOLONG Err_t = 7  /// user string exceeded its bound
	EBUSY        Err_t = 8  /// resource already in the requested state
	EEXIST       Err_t = 9  /// region already allocated / overlaps
	ENOENT       Err_t = 10 /// catalogue/file lookup failed
	E2BIG        Err_t = 11 /// argv/segment count exceeds bound
	ENOSYS       Err_t = 12 /// unimplemented or debug-only call misused
	ENOEXEC      Err_t = 13 /// catalogue image fails section-layout validation
)

// Device identifiers, named after the external collaborators the kernel
// core consumes but does not implement (console, keyboard, disk).
const (
	D_CONSOLE int = 1
	D_KEYBOARD int = 2
	D_DISK     int = 3
)

// Fault causes delivered through the software-exception channel and
// used to encode a killed thread's exit status.
const (
	FaultDivide Err_t = 100 + iota
	FaultPage
	FaultGP
	FaultOpcode
	FaultBreakpoint
)

// SEEK_END and friends are the subset of lseek whence values the kernel
// core's file-backed descriptors understand.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// O_RDONLY/O_RDWR/O_CREAT are the open-mode bits recognized by fdops
// implementations. The kernel itself never opens anything by mode
// (there is no general VFS, only the fixed boot catalogue and the
// disk's file list), but fdops implementations and tests share this
// vocabulary.
const (
	O_RDONLY = 0x0
	O_RDWR   = 0x2
	O_CREAT  = 0x40
)
