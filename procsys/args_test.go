package procsys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ukern/copyinout"
	"ukern/serr"
	"ukern/vm"
)

func newStack(t *testing.T) (*vm.AddrSpace, vm.Vaddr) {
	as := vm.NewAddrSpace(vm.NewPool(16), 2)
	sp, err := as.DefineStack()
	assert.Nil(t, err, "DefineStack")
	return as, sp
}

func TestArgLayout(t *testing.T) {
	as, sp := newStack(t)
	args := []string{"prog", "a", "bcdef"}
	argv, err := copyOutArgs(as, sp, args)
	assert.Nil(t, err, "copyOutArgs")
	assert.Equal(t, vm.Vaddr(0), argv%copyinout.PTR_SIZE)

	// NULL terminator right after the pointers
	null, err := copyinout.CopyInUint32(as, argv+vm.Vaddr(len(args)*copyinout.PTR_SIZE))
	assert.Nil(t, err)
	assert.Equal(t, uint32(0), null)

	prev := argv
	for i, a := range args {
		uptr, err := copyinout.CopyInUint32(as, argv+vm.Vaddr(i*copyinout.PTR_SIZE))
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), uptr%ARG_ALIGN, "string alignment")
		assert.True(t, vm.Vaddr(uptr) > prev, "strings above argv in order")
		prev = vm.Vaddr(uptr)
		s, err := copyinout.CopyInStr(as, vm.Vaddr(uptr), 64)
		assert.Nil(t, err)
		assert.Equal(t, a, s)
	}
	assert.True(t, prev < sp)

	got, err := copyInArgs(as, argv, 1024)
	assert.Nil(t, err, "copyInArgs")
	assert.Equal(t, args, got)
}

func TestArgsEmpty(t *testing.T) {
	as, sp := newStack(t)
	argv, err := copyOutArgs(as, sp, []string{})
	assert.Nil(t, err)
	assert.Equal(t, vm.RoundDown(sp, STACK_ALIGN)-copyinout.PTR_SIZE, argv)
	got, err := copyInArgs(as, argv, 1024)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(got))
}

func TestArgsTooBig(t *testing.T) {
	as, sp := newStack(t)
	argv, err := copyOutArgs(as, sp, []string{strings.Repeat("x", 100), "y"})
	assert.Nil(t, err)
	_, err = copyInArgs(as, argv, 64)
	assert.True(t, serr.IsErrCode(err, serr.TErrTooBig), "err %v", err)
}

func TestArgsFault(t *testing.T) {
	as, sp := newStack(t)
	_, err := copyInArgs(as, 0x1000, 1024)
	assert.True(t, serr.IsErrCode(err, serr.TErrFault), "err %v", err)

	// A pointer into unmapped memory
	argv := sp - 8
	assert.Nil(t, copyinout.CopyOutUint32(as, 0x2000, argv))
	assert.Nil(t, copyinout.CopyOutUint32(as, 0, argv+4))
	_, err = copyInArgs(as, argv, 1024)
	assert.True(t, serr.IsErrCode(err, serr.TErrFault), "err %v", err)
}

func TestArgsStackOverflow(t *testing.T) {
	as, sp := newStack(t)
	_, err := copyOutArgs(as, sp, []string{strings.Repeat("x", 3*vm.PAGE_SIZE)})
	assert.NotNil(t, err)
}
