// Package proctab is the process table: it issues pids, maps pids to
// records, maintains parent/child links and destroys records.
package proctab

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2"

	db "ukern/debug"
	"ukern/proc"
	"ukern/serr"
)

// A destroyed record, kept for diagnostics.
type Reaped struct {
	Pid      proc.Tpid
	Name     string
	State    proc.ExitState
	Lifetime time.Duration
}

func (r *Reaped) String() string {
	return fmt.Sprintf("{pid %v %q %v %v}", r.Pid, r.Name, r.State, r.Lifetime)
}

type Table struct {
	sync.Mutex
	procs   map[proc.Tpid]*proc.Proc
	nextpid proc.Tpid
	max     int
	hist    *lru.Cache[proc.Tpid, *Reaped]
}

// A table holding at most maxProcs live records and remembering the
// last nhist destroyed ones.
func NewTable(maxProcs, nhist int) *Table {
	pt := &Table{
		procs:   make(map[proc.Tpid]*proc.Proc),
		nextpid: proc.PID_MIN,
		max:     maxProcs,
	}
	if nhist > 0 {
		c, err := lru.New[proc.Tpid, *Reaped](nhist)
		if err != nil {
			db.DFatalf("NewTable lru err %v\n", err)
		}
		pt.hist = c
	}
	return pt
}

// Allocate a record with a fresh pid. Pids are issued monotonically and
// never reused.
func (pt *Table) Create(name string) (*proc.Proc, error) {
	pt.Lock()
	defer pt.Unlock()

	if len(pt.procs) >= pt.max {
		db.DPrintf(db.PROCTAB_ERR, "Create %q: table full (%d)", name, len(pt.procs))
		return nil, serr.NewErr(serr.TErrNoProc, name)
	}
	if pt.nextpid < proc.PID_MIN {
		return nil, serr.NewErr(serr.TErrNoProc, "pids exhausted")
	}
	p := proc.NewProc(pt.nextpid, name)
	pt.nextpid++
	pt.procs[p.Pid()] = p
	db.DPrintf(db.PROCTAB, "Create %v", p)
	return p, nil
}

func (pt *Table) Lookup(pid proc.Tpid) (*proc.Proc, bool) {
	pt.Lock()
	defer pt.Unlock()
	p, ok := pt.procs[pid]
	return p, ok
}

// Make child a child of parent. Fails if child already is linked.
func (pt *Table) Link(parent, child *proc.Proc) error {
	parent.Lock()
	defer parent.Unlock()

	child.Lock()
	defer child.Unlock()

	if !parent.AddChildL(child) {
		return serr.NewErr(serr.TErrInval, fmt.Sprintf("%v already linked", child))
	}
	child.SetParentL(parent)
	db.DPrintf(db.PROCTAB, "Link %v -> %v", parent, child)
	return nil
}

// Remove child from parent's children; no-op if it isn't there.
func (pt *Table) Unlink(parent, child *proc.Proc) {
	parent.Lock()
	defer parent.Unlock()

	if parent.RemoveChildL(child) {
		db.DPrintf(db.PROCTAB, "Unlink %v -> %v", parent, child)
	}
}

// Find pid among parent's children and remove it. The caller then owns
// the child's eventual destruction.
func (pt *Table) Reserve(parent *proc.Proc, pid proc.Tpid) (*proc.Proc, error) {
	parent.Lock()
	defer parent.Unlock()

	c := parent.FindChildL(pid)
	if c == nil {
		return nil, serr.NewErr(serr.TErrNoChild, pid)
	}
	parent.RemoveChildL(c)
	db.DPrintf(db.PROCTAB, "Reserve %v -> %v", parent, c)
	return c, nil
}

// Release everything p owns. p must not be in any children collection,
// have children or threads, or have been destroyed before.
func (pt *Table) Destroy(p *proc.Proc) {
	if p.IsLinked() {
		db.DFatalf("Destroy %v still linked", p)
	}
	if n := p.Nthread(); n != 0 {
		db.DFatalf("Destroy %v with %d threads", p, n)
	}
	if !p.MarkDestroyed() {
		db.DFatalf("double Destroy %v", p)
	}
	if as := p.SetAddrSpace(nil); as != nil {
		as.Deactivate()
		as.Destroy()
	}
	p.Lock()
	state := p.ExitStateL()
	n := p.NchildrenL()
	p.Unlock()
	if n != 0 {
		db.DFatalf("Destroy %v with %d children", p, n)
	}

	pt.Lock()
	defer pt.Unlock()

	if _, ok := pt.procs[p.Pid()]; !ok {
		db.DFatalf("Destroy %v not in table", p)
	}
	delete(pt.procs, p.Pid())
	if pt.hist != nil {
		pt.hist.Add(p.Pid(), &Reaped{p.Pid(), p.Name(), state, time.Since(p.Ctime())})
	}
	db.DPrintf(db.PROCTAB, "Destroy %v %v", p, state)
}

func (pt *Table) Len() int {
	pt.Lock()
	defer pt.Unlock()
	return len(pt.procs)
}

// Snapshot of the live records, ordered by pid.
func (pt *Table) Procs() []*proc.Proc {
	pt.Lock()
	defer pt.Unlock()

	ps := make([]*proc.Proc, 0, len(pt.procs))
	for _, p := range pt.procs {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Pid() < ps[j].Pid() })
	return ps
}

// Records that have exited but are still waiting to be reaped. Each
// record is locked on its own, never under the table lock.
func (pt *Table) Zombies() []*proc.Proc {
	zs := make([]*proc.Proc, 0)
	for _, p := range pt.Procs() {
		if p.GetExitState().IsExited() {
			zs = append(zs, p)
		}
	}
	return zs
}

// Recently destroyed records, oldest first.
func (pt *Table) History() []*Reaped {
	if pt.hist == nil {
		return nil
	}
	return pt.hist.Values()
}
