// Package copyinout moves data between kernel memory and a user address
// space. Every user address is untrusted: a bad address yields
// TErrFault rather than a crash.
package copyinout

import (
	"encoding/binary"
	"fmt"

	"ukern/serr"
	"ukern/vm"
)

const (
	PTR_SIZE = 4
)

// User memory is big-endian, like the MIPS machines the ABI comes from.
var order = binary.BigEndian

func CopyIn(as *vm.AddrSpace, uaddr vm.Vaddr, n int) ([]byte, error) {
	return as.Read(uaddr, n)
}

func CopyOut(as *vm.AddrSpace, b []byte, uaddr vm.Vaddr) error {
	return as.Write(uaddr, b)
}

func CopyInUint32(as *vm.AddrSpace, uaddr vm.Vaddr) (uint32, error) {
	b, err := as.Read(uaddr, 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func CopyOutUint32(as *vm.AddrSpace, v uint32, uaddr vm.Vaddr) error {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return as.Write(uaddr, b)
}

// Copy in a NUL-terminated string of at most maxlen bytes, including
// the terminator.
func CopyInStr(as *vm.AddrSpace, uaddr vm.Vaddr, maxlen int) (string, error) {
	b := make([]byte, 0, 64)
	for i := 0; i < maxlen; i++ {
		c, err := as.Read(uaddr+vm.Vaddr(i), 1)
		if err != nil {
			return "", err
		}
		if c[0] == 0 {
			return string(b), nil
		}
		b = append(b, c[0])
	}
	return "", serr.NewErr(serr.TErrNameTooLong, fmt.Sprintf("%#x", uaddr))
}

// Copy out s plus its terminator into a buffer of buflen bytes; the
// rest of the buffer is zero-filled.
func CopyOutStr(as *vm.AddrSpace, s string, uaddr vm.Vaddr, buflen int) error {
	if buflen < len(s)+1 {
		return serr.NewErr(serr.TErrNameTooLong, s)
	}
	b := make([]byte, buflen)
	copy(b, s)
	return as.Write(uaddr, b)
}
