package procsys

import (
	db "ukern/debug"
	"ukern/copyinout"
	"ukern/proc"
	"ukern/serr"
	"ukern/threadmgr"
	"ukern/vm"
)

// A fully built program image, ready to run.
type image struct {
	as    *vm.AddrSpace
	entry vm.Vaddr
	argc  int
	argv  vm.Vaddr
	sp    vm.Vaddr
}

// Build a new address space with path loaded into it and args on its
// stack. Nothing is torn down on the caller's side if this fails.
func (s *Sys) buildImage(path string, args []string) (*image, error) {
	img, err := s.loader.Open(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	as := vm.NewAddrSpace(s.pool, s.cfg.StackPages)
	entry, err := img.Load(as)
	if err != nil {
		as.Destroy()
		return nil, err
	}
	stackptr, err := as.DefineStack()
	if err != nil {
		as.Destroy()
		return nil, err
	}
	argv, err := copyOutArgs(as, stackptr, args)
	if err != nil {
		as.Destroy()
		return nil, err
	}
	return &image{as: as, entry: entry, argc: len(args), argv: argv, sp: argv}, nil
}

// Replace the calling process's image with the program at upath, run
// with the argument vector at uargv. Returns only on failure, in which
// case the caller still runs its old image.
func (s *Sys) Execv(t *threadmgr.Thread, upath vm.Vaddr, uargv vm.Vaddr) error {
	p := curproc(t)
	old := p.GetAddrSpace()
	if old == nil || !old.IsActive() {
		db.DFatalf("Execv %v without active addrspace", p)
	}

	path, err := copyinout.CopyInStr(old, upath, s.cfg.PathMax)
	if err != nil {
		db.DPrintf(db.EXEC_ERR, "Execv %v: path err %v", p, err)
		return err
	}
	args, err := copyInArgs(old, uargv, s.cfg.ArgMax)
	if err != nil {
		db.DPrintf(db.EXEC_ERR, "Execv %v: args err %v", p, err)
		return err
	}

	img, err := s.buildImage(path, args)
	if err != nil {
		db.DPrintf(db.EXEC_ERR, "Execv %v %q: err %v", p, path, err)
		return err
	}

	// Point of no return: switch to the new image.
	p.SetAddrSpace(img.as)
	img.as.Activate()
	old.Deactivate()
	old.Destroy()
	db.DPrintf(db.EXEC, "Execv %v %q %v", p, path, args)

	s.enterNewProcess(t, img)
	return nil
}

// Jump to the image's entry point in user mode.
func (s *Sys) enterNewProcess(t *threadmgr.Thread, img *image) {
	sym, ok := img.as.Symbol(img.entry)
	if !ok {
		db.DFatalf("no code at entry %#x", img.entry)
	}
	entry, ok := s.loader.Lookup(sym)
	if !ok {
		db.DFatalf("unknown symbol %q", sym)
	}
	s.enterUser(t, func() {
		entry(s, t, img.argc, img.argv, img.sp)
	})
}

// Start path with args as a new process. Its parent is parent, or none
// if parent is nil.
func (s *Sys) Spawn(parent *proc.Proc, path string, args []string) (proc.Tpid, error) {
	if len(path)+1 > s.cfg.PathMax {
		return proc.NO_PID, serr.NewErr(serr.TErrNameTooLong, path)
	}
	p, err := s.pt.Create(path)
	if err != nil {
		return proc.NO_PID, err
	}
	img, err := s.buildImage(path, args)
	if err != nil {
		db.DPrintf(db.EXEC_ERR, "Spawn %q: err %v", path, err)
		s.pt.Destroy(p)
		return proc.NO_PID, err
	}
	p.SetAddrSpace(img.as)
	_, err = s.threads.Fork(path, p, func(t *threadmgr.Thread) {
		p.WaitPublished()
		img.as.Activate()
		s.enterNewProcess(t, img)
	})
	if err != nil {
		s.pt.Destroy(p)
		return proc.NO_PID, err
	}
	if parent != nil {
		if err := s.pt.Link(parent, p); err != nil {
			db.DFatalf("Spawn link %v -> %v err %v", parent, p, err)
		}
	}
	p.Publish()
	db.DPrintf(db.EXEC, "Spawn %v %v parent %v", p, args, parent)
	return p.Pid(), nil
}
