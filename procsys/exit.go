package procsys

import (
	db "ukern/debug"
	"ukern/copyinout"
	"ukern/proc"
	"ukern/serr"
	"ukern/threadmgr"
	"ukern/vm"
)

// Terminate the calling process with exitcode. Does not return.
func (s *Sys) Exit(t *threadmgr.Thread, exitcode int) {
	p := curproc(t)
	db.DPrintf(db.EXIT, "Exit %v code %d", p, exitcode)
	if exitcode&^0xff != 0 {
		db.DPrintf(db.EXIT_ERR, "Exit %v: code %d truncated to %d", p, exitcode, exitcode&0xff)
	}

	as := p.SetAddrSpace(nil)
	if as == nil || !as.IsActive() {
		db.DFatalf("Exit %v without active addrspace", p)
	}
	as.Deactivate()
	as.Destroy()

	s.orphanChildren(p)

	// t can't use p after this
	t.Detach()

	if !s.markExited(p, exitcode) {
		s.pt.Destroy(p)
	}

	t.Exit()
	db.DFatalf("return from thread exit in Exit")
}

// Give up on p's children: destroy the ones that already exited and
// orphan the others, which will destroy themselves when they exit.
func (s *Sys) orphanChildren(p *proc.Proc) {
	p.Lock()
	defer p.Unlock()

	for _, c := range p.ChildrenL() {
		p.RemoveChildL(c)
		c.Lock()
		if c.ExitStateL().IsExited() {
			c.Unlock()
			db.DPrintf(db.EXIT, "Exit %v: destroy zombie %v", p, c)
			s.pt.Destroy(c)
		} else {
			c.ClearParentL()
			c.Unlock()
			db.DPrintf(db.EXIT, "Exit %v: orphan %v", p, c)
		}
	}
}

// Record p's exit code if a running parent may still reap it. Returns
// false if nobody will, in which case the caller destroys p.
func (s *Sys) markExited(p *proc.Proc, exitcode int) bool {
	parent := p.GetParent()
	if parent == nil {
		return false
	}

	// Parent before child; re-check the link once both are held.
	parent.Lock()
	defer parent.Unlock()
	p.Lock()
	defer p.Unlock()

	if p.ParentL() != parent || !parent.ExitStateL().IsRunning() {
		db.DPrintf(db.EXIT, "Exit %v: parent %v gone", p, parent)
		return false
	}
	p.MarkExitedL(exitcode)
	db.DPrintf(db.EXIT, "Exit %v: zombie for %v", p, parent)
	return true
}

// Wait for p's child pid to exit, destroy it and return its exit code.
func (s *Sys) waitChild(p *proc.Proc, pid proc.Tpid, options int) (int, error) {
	if options != 0 {
		return 0, serr.NewErr(serr.TErrInval, options)
	}

	// From here on this call alone owns the child's destruction.
	c, err := s.pt.Reserve(p, pid)
	if err != nil {
		db.DPrintf(db.WAIT_ERR, "Waitpid %v pid %v err %v", p, pid, err)
		return 0, err
	}

	c.Lock()
	code := c.WaitExitedL()
	c.Unlock()

	s.pt.Destroy(c)
	db.DPrintf(db.WAIT, "Waitpid %v reaped %v code %d", p, c, code)
	return code, nil
}

// Wait for the caller's child pid to exit and store its encoded wait
// status at status, unless status is NULL.
func (s *Sys) Waitpid(t *threadmgr.Thread, pid proc.Tpid, status vm.Vaddr, options int) (proc.Tpid, error) {
	p := curproc(t)
	code, err := s.waitChild(p, pid, options)
	if err != nil {
		return proc.NO_PID, err
	}
	if status != 0 {
		ws := proc.MkWaitExit(code)
		if err := copyinout.CopyOutUint32(p.GetAddrSpace(), uint32(ws), status); err != nil {
			db.DPrintf(db.WAIT_ERR, "Waitpid %v copyout status err %v", p, err)
			return proc.NO_PID, err
		}
	}
	return pid, nil
}

// Wait on behalf of a process without a thread, such as the kernel's
// session process.
func (s *Sys) WaitChild(p *proc.Proc, pid proc.Tpid) (proc.WaitStatus, error) {
	code, err := s.waitChild(p, pid, 0)
	if err != nil {
		return 0, err
	}
	return proc.MkWaitExit(code), nil
}

// Destroy a process that has no thread, after giving up its children.
func (s *Sys) Retire(p *proc.Proc) {
	s.orphanChildren(p)
	s.pt.Destroy(p)
}
