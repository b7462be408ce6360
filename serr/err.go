package serr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

type Terror uint32

const (
	TErrNoError Terror = iota
	TErrInval
	TErrNoChild
	TErrNomem
	TErrNoProc
	TErrFault
	TErrNotfound
	TErrNoexec
	TErrNameTooLong
	TErrTooBig
	TErrNosys
	TErrError
)

func (err Terror) String() string {
	switch err {
	case TErrNoError:
		return "no error"
	case TErrInval:
		return "invalid argument"
	case TErrNoChild:
		return "no such child"
	case TErrNomem:
		return "out of memory"
	case TErrNoProc:
		return "too many processes"
	case TErrFault:
		return "bad address"
	case TErrNotfound:
		return "file not found"
	case TErrNoexec:
		return "bad executable"
	case TErrNameTooLong:
		return "name too long"
	case TErrTooBig:
		return "argument list too long"
	case TErrNosys:
		return "no such syscall"
	case TErrError:
		return "Error"
	default:
		return "unknown error"
	}
}

// Platform errno for each code. A process sees the errno in v0 when a
// syscall fails.
func (err Terror) Errno() unix.Errno {
	switch err {
	case TErrNoError:
		return 0
	case TErrInval:
		return unix.EINVAL
	case TErrNoChild:
		return unix.ECHILD
	case TErrNomem:
		return unix.ENOMEM
	case TErrNoProc:
		return unix.EAGAIN
	case TErrFault:
		return unix.EFAULT
	case TErrNotfound:
		return unix.ENOENT
	case TErrNoexec:
		return unix.ENOEXEC
	case TErrNameTooLong:
		return unix.ENAMETOOLONG
	case TErrTooBig:
		return unix.E2BIG
	case TErrNosys:
		return unix.ENOSYS
	default:
		return unix.EIO
	}
}

type Err struct {
	ErrCode Terror
	Obj     string
	Err     error
}

func NewErr(code Terror, obj interface{}) *Err {
	return &Err{code, fmt.Sprintf("%v", obj), nil}
}

// Wrap err; keeps the code if err already is an *Err.
func NewErrError(error error) *Err {
	if err, ok := IsErr(error); ok {
		return err
	}
	return &Err{TErrError, "", error}
}

func NewErrString(code Terror, obj interface{}, err error) *Err {
	return &Err{code, fmt.Sprintf("%v", obj), err}
}

func (err *Err) Code() Terror {
	return err.ErrCode
}

func (err *Err) Errno() unix.Errno {
	return err.ErrCode.Errno()
}

func (err *Err) Unwrap() error { return err.Err }

func (err *Err) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("{Err: %q Obj: %q (%v)}", err.ErrCode, err.Obj, err.Err)
	}
	return fmt.Sprintf("{Err: %q Obj: %q}", err.ErrCode, err.Obj)
}

func (err *Err) String() string {
	return err.Error()
}

func (err *Err) IsErrNotfound() bool {
	return err.Code() == TErrNotfound
}

func (err *Err) IsErrFault() bool {
	return err.Code() == TErrFault
}

func IsErr(error error) (*Err, bool) {
	var err *Err
	if errors.As(error, &err) {
		return err, true
	}
	return nil, false
}

func IsErrCode(error error, code Terror) bool {
	if err, ok := IsErr(error); ok {
		return err.Code() == code
	}
	return false
}

// Map a Go error to the errno a user process sees.
func Errno(error error) unix.Errno {
	if error == nil {
		return 0
	}
	if err, ok := IsErr(error); ok {
		return err.Errno()
	}
	return unix.EIO
}
