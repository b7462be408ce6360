package procsys

import (
	"fmt"

	db "ukern/debug"
	"ukern/copyinout"
	"ukern/serr"
	"ukern/vm"
)

const (
	ARG_ALIGN   = 4
	STACK_ALIGN = 8
)

// Copy the NULL-terminated argv array at uargv, and the strings it
// points to, into the kernel. The strings may total at most argMax
// bytes including terminators.
func copyInArgs(as *vm.AddrSpace, uargv vm.Vaddr, argMax int) ([]string, error) {
	args := make([]string, 0)
	total := 0
	for i := 0; ; i++ {
		uptr, err := copyinout.CopyInUint32(as, uargv+vm.Vaddr(i*copyinout.PTR_SIZE))
		if err != nil {
			return nil, err
		}
		if uptr == 0 {
			return args, nil
		}
		if total+(i+1)*copyinout.PTR_SIZE >= argMax {
			return nil, serr.NewErr(serr.TErrTooBig, fmt.Sprintf("%d args", i+1))
		}
		s, err := copyinout.CopyInStr(as, vm.Vaddr(uptr), argMax-total)
		if err != nil {
			if serr.IsErrCode(err, serr.TErrNameTooLong) {
				return nil, serr.NewErr(serr.TErrTooBig, fmt.Sprintf("arg %d", i))
			}
			return nil, err
		}
		total += len(s) + 1
		args = append(args, s)
	}
}

// Lay out args on the stack below stackptr: the strings first, highest
// address first and each padded to ARG_ALIGN, then the argv pointer
// array with a NULL terminator. Returns the address of argv, which is
// also the new stack pointer.
func copyOutArgs(as *vm.AddrSpace, stackptr vm.Vaddr, args []string) (vm.Vaddr, error) {
	sp := vm.RoundDown(stackptr, STACK_ALIGN)
	uptrs := make([]vm.Vaddr, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		n := vm.RoundUp(vm.Vaddr(len(args[i])+1), ARG_ALIGN)
		if n > sp {
			return 0, serr.NewErr(serr.TErrFault, "stack")
		}
		sp -= n
		if err := copyinout.CopyOutStr(as, args[i], sp, int(n)); err != nil {
			return 0, err
		}
		uptrs[i] = sp
	}
	sp = vm.RoundDown(sp, copyinout.PTR_SIZE)
	sp -= copyinout.PTR_SIZE
	if err := copyinout.CopyOutUint32(as, 0, sp); err != nil {
		return 0, err
	}
	for i := len(args) - 1; i >= 0; i-- {
		sp -= copyinout.PTR_SIZE
		if err := copyinout.CopyOutUint32(as, uint32(uptrs[i]), sp); err != nil {
			return 0, err
		}
	}
	db.DPrintf(db.EXEC, "argv at %#x argc %d", sp, len(args))
	return sp, nil
}
