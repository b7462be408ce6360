package vm

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	db "ukern/debug"
	"ukern/serr"
)

const (
	PAGE_SIZE = 4096
)

// Physical pages backing all address spaces. Allocation fails with
// TErrNomem once npages are in use.
type Pool struct {
	sync.Mutex
	npages int
	used   int
}

func NewPool(npages int) *Pool {
	return &Pool{npages: npages}
}

func (pl *Pool) alloc(n int) error {
	pl.Lock()
	defer pl.Unlock()

	if pl.used+n > pl.npages {
		db.DPrintf(db.VM_ERR, "alloc %d pages: %d/%d in use", n, pl.used, pl.npages)
		return serr.NewErr(serr.TErrNomem, fmt.Sprintf("%d pages", n))
	}
	pl.used += n
	return nil
}

func (pl *Pool) free(n int) {
	pl.Lock()
	defer pl.Unlock()

	if n > pl.used {
		db.DFatalf("free %d pages, only %d in use", n, pl.used)
	}
	pl.used -= n
}

func (pl *Pool) Used() int {
	pl.Lock()
	defer pl.Unlock()
	return pl.used
}

func (pl *Pool) Total() int {
	return pl.npages
}

// Don't call with pl's lock held
func (pl *Pool) String() string {
	return fmt.Sprintf("%v/%v", humanize.IBytes(uint64(pl.Used())*PAGE_SIZE), humanize.IBytes(uint64(pl.npages)*PAGE_SIZE))
}
