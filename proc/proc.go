package proc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"

	db "ukern/debug"
	"ukern/vm"
)

//
// Lock order: a process only ever holds its own lock, except when it
// holds a parent's lock and then one specific child's lock, in that
// order. Never take a parent's lock while holding a child's.
//

// Kernel bookkeeping for one process. The lock protects parent,
// children, state, the address space pointer and the thread count.
// The children of p are mutated under p's lock, not the child's.
type Proc struct {
	deadlock.Mutex
	cond      *sync.Cond
	pid       Tpid
	name      string
	parent    *Proc // weak: cleared when the parent exits first
	children  []*Proc
	state     ExitState
	as        *vm.AddrSpace
	nthread   int
	linked    atomic.Bool // present in some parent's children
	destroyed atomic.Bool
	ctime     time.Time
	published chan struct{}
	pubOnce   sync.Once
}

func NewProc(pid Tpid, name string) *Proc {
	p := &Proc{
		pid:       pid,
		name:      name,
		children:  make([]*Proc, 0),
		state:     Running(),
		ctime:     time.Now(),
		published: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.Mutex)
	return p
}

func (p *Proc) Pid() Tpid {
	return p.pid
}

func (p *Proc) Name() string {
	return p.name
}

func (p *Proc) Ctime() time.Time {
	return p.ctime
}

func (p *Proc) String() string {
	return fmt.Sprintf("{pid %v %q}", p.pid, p.name)
}

// Mark p visible to its own threads; called once fork has linked it
// into its parent's children.
func (p *Proc) Publish() {
	p.pubOnce.Do(func() {
		db.DPrintf(db.PROC, "Publish %v", p)
		close(p.published)
	})
}

func (p *Proc) WaitPublished() {
	<-p.published
}

func (p *Proc) GetAddrSpace() *vm.AddrSpace {
	p.Lock()
	defer p.Unlock()
	return p.as
}

// Set the address space and return the old one.
func (p *Proc) SetAddrSpace(as *vm.AddrSpace) *vm.AddrSpace {
	p.Lock()
	defer p.Unlock()
	old := p.as
	p.as = as
	return old
}

func (p *Proc) AddThread() {
	p.Lock()
	defer p.Unlock()
	p.nthread++
}

func (p *Proc) RemThread() {
	p.Lock()
	defer p.Unlock()
	if p.nthread <= 0 {
		db.DFatalf("RemThread %v without threads", p)
	}
	p.nthread--
}

func (p *Proc) Nthread() int {
	p.Lock()
	defer p.Unlock()
	return p.nthread
}

func (p *Proc) GetExitState() ExitState {
	p.Lock()
	defer p.Unlock()
	return p.state
}

func (p *Proc) GetParent() *Proc {
	p.Lock()
	defer p.Unlock()
	return p.parent
}

func (p *Proc) IsLinked() bool {
	return p.linked.Load()
}

// Caller holds p's lock
func (p *Proc) ExitStateL() ExitState {
	return p.state
}

// Caller holds p's lock
func (p *Proc) ParentL() *Proc {
	return p.parent
}

// Caller holds p's lock
func (p *Proc) SetParentL(parent *Proc) {
	p.parent = parent
}

// Orphan p. Caller holds p's lock.
func (p *Proc) ClearParentL() {
	p.parent = nil
}

// Caller holds p's lock. Wakes up a parent blocked in WaitExitedL.
func (p *Proc) MarkExitedL(code int) {
	if p.state.IsExited() {
		db.DFatalf("double exit %v state %v", p, p.state)
	}
	p.state = Exited(code)
	db.DPrintf(db.PROC, "MarkExited %v %v", p, p.state)
	p.cond.Broadcast()
}

// Block until p has exited and return its exit code. Caller holds p's
// lock; the lock is released while waiting.
func (p *Proc) WaitExitedL() int {
	for p.state.IsRunning() {
		p.cond.Wait()
	}
	code, _ := p.state.Code()
	return code
}

// Caller holds p's lock
func (p *Proc) ChildrenL() []*Proc {
	return slices.Clone(p.children)
}

// Caller holds p's lock
func (p *Proc) FindChildL(pid Tpid) *Proc {
	i := slices.IndexFunc(p.children, func(c *Proc) bool { return c.pid == pid })
	if i < 0 {
		return nil
	}
	return p.children[i]
}

// Caller holds p's lock
func (p *Proc) AddChildL(c *Proc) bool {
	if !c.linked.CompareAndSwap(false, true) {
		db.DPrintf(db.PROC_ERR, "AddChild %v -> %v: already linked", p, c)
		return false
	}
	p.children = append(p.children, c)
	return true
}

// Remove c from p's children; returns false if c isn't a child. Caller
// holds p's lock.
func (p *Proc) RemoveChildL(c *Proc) bool {
	i := slices.Index(p.children, c)
	if i < 0 {
		return false
	}
	p.children = slices.Delete(p.children, i, i+1)
	c.linked.Store(false)
	return true
}

// Caller holds p's lock
func (p *Proc) NchildrenL() int {
	return len(p.children)
}

// Mark p destroyed; returns false if it already was.
func (p *Proc) MarkDestroyed() bool {
	return p.destroyed.CompareAndSwap(false, true)
}

func (p *Proc) IsDestroyed() bool {
	return p.destroyed.Load()
}
