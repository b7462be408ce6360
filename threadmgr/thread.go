package threadmgr

import (
	"fmt"
	"runtime"
	"sync"

	db "ukern/debug"
	"ukern/proc"
)

// An execution unit. Each thread runs on its own goroutine and is
// attached to one process until it detaches on exit.
type Thread struct {
	sync.Mutex
	tt   *ThreadTable
	tid  uint64
	name string
	p    *proc.Proc
}

func newThread(tt *ThreadTable, tid uint64, name string, p *proc.Proc) *Thread {
	return &Thread{tt: tt, tid: tid, name: name, p: p}
}

func (t *Thread) String() string {
	return fmt.Sprintf("{tid %d %q proc %v}", t.tid, t.name, t.Proc())
}

func (t *Thread) Tid() uint64 {
	return t.tid
}

// Process the thread belongs to; nil once detached.
func (t *Thread) Proc() *proc.Proc {
	t.Lock()
	defer t.Unlock()
	return t.p
}

// Detach t from its process. t can't use its process afterwards.
func (t *Thread) Detach() {
	t.Lock()
	p := t.p
	t.p = nil
	t.Unlock()

	if p == nil {
		db.DFatalf("Detach %v: not attached", t)
	}
	p.RemThread()
	db.DPrintf(db.THREAD, "Detach tid %d from %v", t.tid, p)
}

// Terminate the calling thread. Does not return.
func (t *Thread) Exit() {
	if t.Proc() != nil {
		db.DFatalf("Exit %v still attached", t)
	}
	runtime.Goexit()
}

func Yield() {
	runtime.Gosched()
}

// A thread must be detached from its process by the time its entry
// returns or it calls Exit.
func (t *Thread) run(entry func(t *Thread)) {
	defer func() {
		t.tt.remove(t)
		if p := t.Proc(); p != nil {
			db.DFatalf("thread %d ended attached to %v", t.tid, p)
		}
		db.DPrintf(db.THREAD, "Exit tid %d", t.tid)
	}()
	entry(t)
}
