// Package procsys implements the process syscalls: fork, execv, _exit,
// waitpid and getpid.
package procsys

import (
	db "ukern/debug"
	"ukern/loader"
	"ukern/proc"
	"ukern/proctab"
	"ukern/serr"
	"ukern/stats"
	"ukern/threadmgr"
	"ukern/trapframe"
	"ukern/vm"
)

type Config struct {
	StackPages int
	ArgMax     int
	PathMax    int
}

type Sys struct {
	cfg     Config
	pt      *proctab.Table
	threads *threadmgr.ThreadTable
	pool    *vm.Pool
	loader  *loader.Registry
	st      *stats.StatInfo
}

func NewSys(cfg Config, pt *proctab.Table, tt *threadmgr.ThreadTable, pool *vm.Pool, ld *loader.Registry) *Sys {
	return &Sys{
		cfg:     cfg,
		pt:      pt,
		threads: tt,
		pool:    pool,
		loader:  ld,
		st:      stats.NewStatInfo(),
	}
}

func (s *Sys) Stats() *stats.StatInfo {
	return s.st
}

func curproc(t *threadmgr.Thread) *proc.Proc {
	p := t.Proc()
	if p == nil {
		db.DFatalf("thread %v has no process", t)
	}
	return p
}

func (s *Sys) Getpid(t *threadmgr.Thread) proc.Tpid {
	return curproc(t).Pid()
}

// Dispatch the syscall in tf. On return v0 holds the result, or an
// errno with a3 set, and epc points past the syscall instruction.
func (s *Sys) Syscall(t *threadmgr.Thread, tf *trapframe.Trapframe) {
	var retval uint32
	var err error

	callno := tf.V0
	db.DPrintf(db.SYSCALL, "%v call %d tf %v", t, callno, tf)
	s.st.Inc(callno)
	switch callno {
	case trapframe.SYS_fork:
		var pid proc.Tpid
		pid, err = s.Fork(t, tf)
		retval = uint32(pid)
	case trapframe.SYS_execv:
		err = s.Execv(t, vm.Vaddr(tf.A0), vm.Vaddr(tf.A1))
	case trapframe.SYS__exit:
		s.Exit(t, int(int32(tf.A0)))
	case trapframe.SYS_waitpid:
		var pid proc.Tpid
		pid, err = s.Waitpid(t, proc.Tpid(int32(tf.A0)), vm.Vaddr(tf.A1), int(int32(tf.A2)))
		retval = uint32(pid)
	case trapframe.SYS_getpid:
		retval = uint32(s.Getpid(t))
	default:
		err = serr.NewErr(serr.TErrNosys, callno)
	}
	if err != nil {
		db.DPrintf(db.SYSCALL_ERR, "%v call %d err %v", t, callno, err)
		stats.Inc(&s.st.Nerr, 1)
		tf.V0 = uint32(serr.Errno(err))
		tf.A3 = 1
	} else {
		tf.V0 = retval
		tf.A3 = 0
	}
	tf.EPC += trapframe.INSN_SIZE
}
