package threadmgr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ukern/proc"
	"ukern/serr"
	"ukern/threadmgr"
)

func TestForkExit(t *testing.T) {
	tt := threadmgr.NewThreadTable(4)
	p := proc.NewProc(2, "p")
	ch := make(chan int)
	reached := false
	_, err := tt.Fork("t0", p, func(th *threadmgr.Thread) {
		ch <- p.Nthread()
		th.Detach()
		th.Exit()
		reached = true
	})
	assert.Nil(t, err, "Fork")
	assert.Equal(t, 1, <-ch)
	tt.WaitIdle()
	assert.False(t, reached, "Exit returned")
	assert.Equal(t, 0, p.Nthread())
	assert.Equal(t, 0, tt.Nthread())
}

func TestForkLimit(t *testing.T) {
	tt := threadmgr.NewThreadTable(1)
	p := proc.NewProc(2, "p")
	release := make(chan bool)
	_, err := tt.Fork("t0", p, func(th *threadmgr.Thread) {
		<-release
		th.Detach()
	})
	assert.Nil(t, err)
	th1, err := tt.Fork("t1", p, func(th *threadmgr.Thread) {})
	assert.True(t, serr.IsErrCode(err, serr.TErrNomem))
	assert.Nil(t, th1)
	assert.Equal(t, 1, p.Nthread())
	close(release)
	tt.WaitIdle()
}

func TestDetach(t *testing.T) {
	tt := threadmgr.NewThreadTable(4)
	p := proc.NewProc(2, "p")
	ch := make(chan *proc.Proc)
	_, err := tt.Fork("t0", p, func(th *threadmgr.Thread) {
		th.Detach()
		threadmgr.Yield()
		ch <- th.Proc()
	})
	assert.Nil(t, err)
	assert.Nil(t, <-ch)
	tt.WaitIdle()
}

func TestTids(t *testing.T) {
	tt := threadmgr.NewThreadTable(4)
	p := proc.NewProc(2, "p")
	tids := make(map[uint64]bool)
	for i := 0; i < 3; i++ {
		th, err := tt.Fork("t", p, func(th *threadmgr.Thread) {
			th.Detach()
		})
		assert.Nil(t, err, "Fork")
		tids[th.Tid()] = true
	}
	tt.WaitIdle()
	assert.Equal(t, 3, len(tids), "tids not unique")
}
