package threadmgr

import (
	"sync"

	db "ukern/debug"
	"ukern/proc"
	"ukern/serr"
)

// Table of live threads. Fork fails with TErrNomem once max threads
// are running.
type ThreadTable struct {
	sync.Mutex
	cond    *sync.Cond
	threads map[*Thread]bool
	max     int
	ntid    uint64
}

func NewThreadTable(max int) *ThreadTable {
	tt := &ThreadTable{}
	tt.threads = make(map[*Thread]bool)
	tt.cond = sync.NewCond(&tt.Mutex)
	tt.max = max
	return tt
}

// Start a new thread attached to p, running entry.
func (tt *ThreadTable) Fork(name string, p *proc.Proc, entry func(t *Thread)) (*Thread, error) {
	tt.Lock()
	if len(tt.threads) >= tt.max {
		tt.Unlock()
		db.DPrintf(db.THREAD_ERR, "Fork %v: %d threads", name, tt.max)
		return nil, serr.NewErr(serr.TErrNomem, "thread "+name)
	}
	tt.ntid++
	t := newThread(tt, tt.ntid, name, p)
	tt.threads[t] = true
	tt.Unlock()

	p.AddThread()
	db.DPrintf(db.THREAD, "Fork %v", t)
	go t.run(entry)
	return t, nil
}

func (tt *ThreadTable) remove(t *Thread) {
	tt.Lock()
	defer tt.Unlock()

	delete(tt.threads, t)
	if len(tt.threads) == 0 {
		tt.cond.Broadcast()
	}
}

func (tt *ThreadTable) Nthread() int {
	tt.Lock()
	defer tt.Unlock()
	return len(tt.threads)
}

// Block until no threads are running.
func (tt *ThreadTable) WaitIdle() {
	tt.Lock()
	defer tt.Unlock()
	for len(tt.threads) > 0 {
		tt.cond.Wait()
	}
}
