// Package kernel boots the process subsystem: it creates the page
// pool, process table, thread table, program registry and syscall
// layer, and runs programs on behalf of the operator.
package kernel

import (
	"fmt"
	"sync"

	"github.com/sasha-s/go-deadlock"
	"github.com/thanhpk/randstr"

	db "ukern/debug"
	"ukern/loader"
	"ukern/proc"
	"ukern/procsys"
	"ukern/proctab"
	"ukern/serr"
	"ukern/threadmgr"
	"ukern/vm"
)

const (
	KERNEL_ID_LEN = 8
	SESSION       = "session"
)

type Kernel struct {
	sync.Mutex
	Param        *Param
	id           string
	pool         *vm.Pool
	pt           *proctab.Table
	threads      *threadmgr.ThreadTable
	loader       *loader.Registry
	sys          *procsys.Sys
	session      *proc.Proc // parent of programs started with Start
	spawnMu      sync.RWMutex // shared across a spawn; Shutdown takes it exclusively
	shuttingDown bool
}

func NewKernel(param *Param) (*Kernel, error) {
	if err := param.validate(); err != nil {
		return nil, err
	}
	k := &Kernel{Param: param}
	k.id = randstr.Hex(KERNEL_ID_LEN)
	db.SetTag(k.id)
	deadlock.Opts.DeadlockTimeout = param.DeadlockTimeout

	k.pool = vm.NewPool(param.PhysPages)
	k.pt = proctab.NewTable(param.MaxProcs, param.History)
	k.threads = threadmgr.NewThreadTable(param.MaxThreads)
	k.loader = loader.NewRegistry()
	k.sys = procsys.NewSys(procsys.Config{
		StackPages: param.StackPages,
		ArgMax:     param.ArgMax,
		PathMax:    param.PathMax,
	}, k.pt, k.threads, k.pool, k.loader)

	if param.Programs != "" {
		if err := k.loader.LoadDir(param.Programs); err != nil {
			db.DPrintf(db.KERNEL_ERR, "NewKernel load %v err %v", param.Programs, err)
			return nil, err
		}
	}
	session, err := k.pt.Create(SESSION)
	if err != nil {
		return nil, err
	}
	k.session = session
	db.DPrintf(db.KERNEL, "NewKernel %v param %v session %v", k.id, param, session)
	return k, nil
}

func (k *Kernel) Id() string {
	return k.id
}

func (k *Kernel) Loader() *loader.Registry {
	return k.loader
}

func (k *Kernel) Sys() *procsys.Sys {
	return k.sys
}

func (k *Kernel) Procs() *proctab.Table {
	return k.pt
}

func (k *Kernel) Session() *proc.Proc {
	return k.session
}

// A spawn that passes the shutdown check completes before Shutdown
// starts waiting, so it never links a child to a retired session.
func (k *Kernel) spawn(parent *proc.Proc, path string, args []string) (proc.Tpid, error) {
	k.spawnMu.RLock()
	defer k.spawnMu.RUnlock()

	k.Lock()
	down := k.shuttingDown
	k.Unlock()
	if down {
		return proc.NO_PID, serr.NewErr(serr.TErrInval, "kernel shutting down")
	}
	return k.sys.Spawn(parent, path, args)
}

// Run path with args as a process without a parent; nobody waits for
// it and it is destroyed when it exits.
func (k *Kernel) RunProgram(path string, args []string) (proc.Tpid, error) {
	return k.spawn(nil, path, args)
}

// Run path with args as a child of the session process; collect it
// with Wait.
func (k *Kernel) Start(path string, args []string) (proc.Tpid, error) {
	return k.spawn(k.session, path, args)
}

func (k *Kernel) Wait(pid proc.Tpid) (proc.WaitStatus, error) {
	return k.sys.WaitChild(k.session, pid)
}

// Start path and wait for it.
func (k *Kernel) Run(path string, args []string) (proc.WaitStatus, error) {
	pid, err := k.Start(path, args)
	if err != nil {
		return 0, err
	}
	return k.Wait(pid)
}

// Block until no user threads are running.
func (k *Kernel) WaitIdle() {
	k.threads.WaitIdle()
}

// Wait for all programs to finish and release the session process.
// Fails if any process record outlives its programs.
func (k *Kernel) Shutdown() error {
	k.spawnMu.Lock()
	k.Lock()
	down := k.shuttingDown
	k.shuttingDown = true
	k.Unlock()
	k.spawnMu.Unlock()
	if down {
		return serr.NewErr(serr.TErrInval, "double shutdown")
	}

	db.DPrintf(db.KERNEL, "Shutdown %v\n", k.id)
	k.WaitIdle()
	k.sys.Retire(k.session)
	if n := k.pt.Len(); n != 0 {
		db.DPrintf(db.KERNEL_ERR, "Shutdown %v: leaked %v", k.id, k.pt.Procs())
		return serr.NewErr(serr.TErrError, fmt.Sprintf("%d process records leaked", n))
	}
	if n := k.pool.Used(); n != 0 {
		return serr.NewErr(serr.TErrError, fmt.Sprintf("%d pages leaked", n))
	}
	db.DPrintf(db.KERNEL, "Shutdown %v done\n", k.id)
	return nil
}
