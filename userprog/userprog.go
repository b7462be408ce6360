// Package userprog contains the kernel's built-in user programs.
package userprog

import (
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	db "ukern/debug"
	"ukern/loader"
	"ukern/proc"
	"ukern/threadmgr"
	"ukern/ulib"
)

//go:embed images.yaml
var images []byte

// Output device shared by all programs.
type Console struct {
	sync.Mutex
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Printf(format string, v ...interface{}) {
	c.Lock()
	defer c.Unlock()
	fmt.Fprintf(c.w, format, v...)
}

// Register the built-in programs in r; they print to cons.
func Install(r *loader.Registry, cons *Console) error {
	r.RegisterSymbol("true", ulib.Main(func(u *ulib.U, args []string) int { return 0 }))
	r.RegisterSymbol("false", ulib.Main(func(u *ulib.U, args []string) int { return 1 }))
	r.RegisterSymbol("exitcode", ulib.Main(exitcode))
	r.RegisterSymbol("argecho", ulib.Main(func(u *ulib.U, args []string) int {
		cons.Printf("%s\n", strings.Join(args, " "))
		return len(args)
	}))
	r.RegisterSymbol("forktest", ulib.Main(forktest))
	r.RegisterSymbol("waitchain", ulib.Main(waitchain))
	r.RegisterSymbol("orphan", ulib.Main(orphan))
	r.RegisterSymbol("badexec", ulib.Main(badexec))
	r.RegisterSymbol("execargs", ulib.Main(execargs))
	r.RegisterSymbol("waitbad", ulib.Main(waitbad))
	return r.LoadManifests(images)
}

// exitcode N: exit with N.
func exitcode(u *ulib.U, args []string) int {
	if len(args) < 2 {
		return 2
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 2
	}
	return n
}

// forktest [N]: fork N children, child i exits with i+1; check every
// status and that each child saw fork return 0 and its own pid.
func forktest(u *ulib.U, args []string) int {
	n := 4
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[1]); err == nil {
			n = v
		}
	}
	me := u.Getpid()
	pids := make([]proc.Tpid, n)
	for i := 0; i < n; i++ {
		code := i + 1
		pid, err := u.Fork(func(cu *ulib.U, ret proc.Tpid) int {
			if ret != 0 || cu.Getpid() == me {
				return 100
			}
			return code
		})
		if err != nil {
			db.DPrintf(db.USER_ERR, "forktest fork %d err %v", i, err)
			return 1
		}
		pids[i] = pid
	}
	for i, pid := range pids {
		r, ws, err := u.Waitpid(pid, 0)
		if err != nil || r != pid || !ws.Exited() || ws.ExitStatus() != i+1 {
			db.DPrintf(db.USER_ERR, "forktest wait %v: %v %v %v", pid, r, ws, err)
			return 1
		}
	}
	return 0
}

// waitchain: a child forks a grandchild exiting with 5 and exits with
// the grandchild's status plus one.
func waitchain(u *ulib.U, args []string) int {
	pid, err := u.Fork(func(cu *ulib.U, ret proc.Tpid) int {
		gpid, err := cu.Fork(func(gu *ulib.U, ret proc.Tpid) int {
			return 5
		})
		if err != nil {
			return 100
		}
		_, ws, err := cu.Waitpid(gpid, 0)
		if err != nil {
			return 101
		}
		return ws.ExitStatus() + 1
	})
	if err != nil {
		return 1
	}
	_, ws, err := u.Waitpid(pid, 0)
	if err != nil || ws.ExitStatus() != 6 {
		return 1
	}
	return 0
}

// orphan: exit while a child is still running; the child yields a
// while and then exits on its own.
func orphan(u *ulib.U, args []string) int {
	_, err := u.Fork(func(cu *ulib.U, ret proc.Tpid) int {
		for i := 0; i < 100; i++ {
			threadmgr.Yield()
		}
		return 0
	})
	if err != nil {
		return 1
	}
	return 0
}

// badexec: exec of a missing program fails and leaves the pid alone.
func badexec(u *ulib.U, args []string) int {
	pid := u.Getpid()
	err := u.Execv("/bin/nonexistent", []string{"nonexistent"})
	if err != unix.ENOENT {
		return 1
	}
	if u.Getpid() != pid {
		return 2
	}
	return 0
}

// execargs PROG ARGS...: exec PROG with ARGS.
func execargs(u *ulib.U, args []string) int {
	if len(args) < 2 {
		return 2
	}
	err := u.Execv(args[1], args[1:])
	db.DPrintf(db.USER_ERR, "execargs %v err %v", args[1], err)
	return 1
}

// waitbad: check waitpid's error cases.
func waitbad(u *ulib.U, args []string) int {
	pid, err := u.Fork(func(cu *ulib.U, ret proc.Tpid) int {
		return 0
	})
	if err != nil {
		return 1
	}
	if _, _, err := u.Waitpid(pid, 1); err != unix.EINVAL {
		return 2
	}
	if _, _, err := u.Waitpid(u.Getpid(), 0); err != unix.ECHILD {
		return 3
	}
	if _, _, err := u.Waitpid(pid, 0); err != nil {
		return 4
	}
	if _, _, err := u.Waitpid(pid, 0); err != unix.ECHILD {
		return 5
	}
	return 0
}
