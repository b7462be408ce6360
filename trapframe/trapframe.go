// Package trapframe holds the saved user execution context and the
// calling convention between user code and the kernel.
package trapframe

import (
	"fmt"

	"ukern/threadmgr"
	"ukern/vm"
)

// Call numbers, passed in v0.
const (
	SYS_fork    = 0
	SYS_execv   = 2
	SYS__exit   = 3
	SYS_waitpid = 4
	SYS_getpid  = 5
)

const INSN_SIZE = 4

// Resume point in user code. A thread entering user mode with tf runs
// Cont(t, tf).
type Cont func(t *threadmgr.Thread, tf *Trapframe)

// Registers saved on a trap. Syscalls take the call number in v0 and
// arguments in a0-a3; they return a value (or errno) in v0 and set a3
// on error.
type Trapframe struct {
	V0   uint32
	V1   uint32
	A0   uint32
	A1   uint32
	A2   uint32
	A3   uint32
	SP   uint32
	EPC  uint32
	Cont Cont
}

// Independent copy of tf; the copy and tf don't share any state.
func (tf *Trapframe) Copy() *Trapframe {
	c := *tf
	return &c
}

func (tf *Trapframe) String() string {
	return fmt.Sprintf("&{ v0:%#x a0:%#x a1:%#x a2:%#x a3:%#x sp:%#x epc:%#x }", tf.V0, tf.A0, tf.A1, tf.A2, tf.A3, tf.SP, tf.EPC)
}

// The kernel's trap entry.
type Trap interface {
	Syscall(t *threadmgr.Thread, tf *Trapframe)
}

// Entry point of a program image. argv points at argc string pointers
// followed by NULL; sp is the initial stack pointer.
type Entry func(tr Trap, t *threadmgr.Thread, argc int, argv vm.Vaddr, sp vm.Vaddr)
