package procsys

import (
	db "ukern/debug"
	"ukern/proc"
	"ukern/stats"
	"ukern/threadmgr"
	"ukern/trapframe"
)

// Duplicate the calling process. The parent gets the child's pid; the
// child resumes from a copy of tf with v0 = 0. Any failure unwinds
// what was built so far and leaves the parent untouched.
func (s *Sys) Fork(t *threadmgr.Thread, tf *trapframe.Trapframe) (proc.Tpid, error) {
	parent := curproc(t)

	child, err := s.pt.Create(parent.Name())
	if err != nil {
		db.DPrintf(db.FORK_ERR, "Fork %v: create err %v", parent, err)
		return proc.NO_PID, err
	}

	pas := parent.GetAddrSpace()
	if pas == nil || !pas.IsActive() {
		db.DFatalf("Fork %v without active addrspace", parent)
	}
	as, err := pas.Copy()
	if err != nil {
		db.DPrintf(db.FORK_ERR, "Fork %v: copy addrspace err %v", parent, err)
		s.pt.Destroy(child)
		return proc.NO_PID, err
	}
	child.SetAddrSpace(as)

	// The parent keeps running with tf; the child gets its own copy.
	ctf := tf.Copy()

	_, err = s.threads.Fork("child", child, func(ct *threadmgr.Thread) {
		s.enterForkedProcess(ct, ctf)
	})
	if err != nil {
		db.DPrintf(db.FORK_ERR, "Fork %v: thread err %v", parent, err)
		// Destroy releases the child's address space.
		s.pt.Destroy(child)
		return proc.NO_PID, err
	}

	// The child blocks in enterForkedProcess until it is published, so
	// nobody can observe it before it is linked.
	if err := s.pt.Link(parent, child); err != nil {
		db.DFatalf("Fork link %v -> %v err %v", parent, child, err)
	}
	child.Publish()
	stats.Max(&s.st.MaxProcs, int64(s.pt.Len()))
	db.DPrintf(db.FORK, "Fork %v -> %v", parent, child)
	return child.Pid(), nil
}

// Entry trampoline of a forked thread: return 0 from fork in the child.
func (s *Sys) enterForkedProcess(t *threadmgr.Thread, tf *trapframe.Trapframe) {
	p := curproc(t)
	p.WaitPublished()
	p.GetAddrSpace().Activate()

	tf.V0 = 0
	tf.A3 = 0
	tf.EPC += trapframe.INSN_SIZE
	s.enterUser(t, func() {
		tf.Cont(t, tf)
	})
}

// Run user code on t. User code leaves through _exit.
func (s *Sys) enterUser(t *threadmgr.Thread, run func()) {
	run()
	db.DFatalf("%v returned from user mode", t)
}
