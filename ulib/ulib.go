// Package ulib is the user-side library: syscall stubs and helpers a
// program uses to talk to the kernel and to its own memory.
package ulib

import (
	"golang.org/x/sys/unix"

	"ukern/copyinout"
	"ukern/proc"
	"ukern/threadmgr"
	"ukern/trapframe"
	"ukern/vm"
)

// User context of a running program: the thread it runs on and its
// stack pointer.
type U struct {
	tr trapframe.Trap
	t  *threadmgr.Thread
	sp vm.Vaddr
}

func NewU(tr trapframe.Trap, t *threadmgr.Thread, sp vm.Vaddr) *U {
	return &U{tr: tr, t: t, sp: sp}
}

func (u *U) SP() vm.Vaddr {
	return u.sp
}

func (u *U) as() *vm.AddrSpace {
	return u.t.Proc().GetAddrSpace()
}

func (u *U) trap(tf *trapframe.Trapframe) (uint32, error) {
	tf.SP = uint32(u.sp)
	u.tr.Syscall(u.t, tf)
	if tf.A3 != 0 {
		return 0, unix.Errno(tf.V0)
	}
	return tf.V0, nil
}

// Raw system call: returns v0, or the errno in v0 if a3 is set.
func (u *U) Syscall(callno, a0, a1, a2 uint32) (uint32, error) {
	return u.trap(&trapframe.Trapframe{V0: callno, A0: a0, A1: a1, A2: a2})
}

func (u *U) Getpid() proc.Tpid {
	v, _ := u.Syscall(trapframe.SYS_getpid, 0, 0, 0)
	return proc.Tpid(v)
}

func (u *U) Exit(code int) {
	u.Syscall(trapframe.SYS__exit, uint32(code), 0, 0)
	panic("_exit returned")
}

// Fork the calling process. In the parent, Fork returns the child's
// pid. The child runs child with the value fork returned there (0); the
// child exits with child's return value.
func (u *U) Fork(child func(u *U, ret proc.Tpid) int) (proc.Tpid, error) {
	tf := &trapframe.Trapframe{V0: trapframe.SYS_fork}
	tf.Cont = func(t *threadmgr.Thread, ctf *trapframe.Trapframe) {
		cu := NewU(u.tr, t, vm.Vaddr(ctf.SP))
		cu.Exit(child(cu, proc.Tpid(ctf.V0)))
	}
	v, err := u.trap(tf)
	if err != nil {
		return proc.NO_PID, err
	}
	return proc.Tpid(v), nil
}

// Wait for pid with the status written to the raw user address status.
func (u *U) WaitpidAt(pid proc.Tpid, status vm.Vaddr, options int) (proc.Tpid, error) {
	v, err := u.Syscall(trapframe.SYS_waitpid, uint32(pid), uint32(status), uint32(options))
	if err != nil {
		return proc.NO_PID, err
	}
	return proc.Tpid(v), nil
}

// Wait for pid and return its wait status, read back from a word on
// the user stack.
func (u *U) Waitpid(pid proc.Tpid, options int) (proc.Tpid, proc.WaitStatus, error) {
	status := vm.RoundDown(u.sp, copyinout.PTR_SIZE) - copyinout.PTR_SIZE
	r, err := u.WaitpidAt(pid, status, options)
	if err != nil {
		return r, 0, err
	}
	v, err := copyinout.CopyInUint32(u.as(), status)
	if err != nil {
		return r, 0, err
	}
	return r, proc.WaitStatus(v), nil
}

// Exec with a path and argv already in user memory.
func (u *U) ExecvAt(upath, uargv vm.Vaddr) error {
	_, err := u.Syscall(trapframe.SYS_execv, uint32(upath), uint32(uargv), 0)
	return err
}

// Replace the program with path, run with args. Returns only on
// failure.
func (u *U) Execv(path string, args []string) error {
	upath, uargv, err := u.PushArgs(path, args)
	if err != nil {
		return err
	}
	return u.ExecvAt(upath, uargv)
}

// Place path and a NULL-terminated argv array for args below the stack
// pointer, without moving it.
func (u *U) PushArgs(path string, args []string) (vm.Vaddr, vm.Vaddr, error) {
	as := u.as()
	sp := vm.RoundDown(u.sp, copyinout.PTR_SIZE)
	push := func(s string) (vm.Vaddr, error) {
		n := vm.RoundUp(vm.Vaddr(len(s)+1), copyinout.PTR_SIZE)
		sp -= n
		return sp, copyinout.CopyOutStr(as, s, sp, int(n))
	}
	upath, err := push(path)
	if err != nil {
		return 0, 0, unix.EFAULT
	}
	uptrs := make([]vm.Vaddr, len(args))
	for i, a := range args {
		if uptrs[i], err = push(a); err != nil {
			return 0, 0, unix.EFAULT
		}
	}
	sp -= vm.Vaddr((len(args) + 1) * copyinout.PTR_SIZE)
	uargv := sp
	for i, p := range append(uptrs, 0) {
		if err := copyinout.CopyOutUint32(as, uint32(p), uargv+vm.Vaddr(i*copyinout.PTR_SIZE)); err != nil {
			return 0, 0, unix.EFAULT
		}
	}
	return upath, uargv, nil
}

// Read the argument strings a program was started with.
func (u *U) Args(argc int, argv vm.Vaddr) ([]string, error) {
	as := u.as()
	args := make([]string, argc)
	for i := 0; i < argc; i++ {
		uptr, err := copyinout.CopyInUint32(as, argv+vm.Vaddr(i*copyinout.PTR_SIZE))
		if err != nil {
			return nil, err
		}
		if args[i], err = copyinout.CopyInStr(as, vm.Vaddr(uptr), vm.PAGE_SIZE); err != nil {
			return nil, err
		}
	}
	if null, err := copyinout.CopyInUint32(as, argv+vm.Vaddr(argc*copyinout.PTR_SIZE)); err != nil || null != 0 {
		return nil, unix.EFAULT
	}
	return args, nil
}

// Read and write the program's own memory.
func (u *U) Load(va vm.Vaddr, n int) ([]byte, error) {
	return copyinout.CopyIn(u.as(), va, n)
}

func (u *U) Store(va vm.Vaddr, b []byte) error {
	return copyinout.CopyOut(u.as(), b, va)
}

// Wrap a Go main function as a program entry point: decode argv, run
// main and exit with its return value.
func Main(main func(u *U, args []string) int) trapframe.Entry {
	return func(tr trapframe.Trap, t *threadmgr.Thread, argc int, argv, sp vm.Vaddr) {
		u := NewU(tr, t, sp)
		args, err := u.Args(argc, argv)
		if err != nil {
			u.Exit(127)
		}
		u.Exit(main(u, args))
	}
}
