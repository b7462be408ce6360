package kernel

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"ukern/proctab"
	"ukern/vm"
)

type Stats struct {
	Nproc      int
	Nzombie    int
	Nthread    int
	PagesUsed  int
	PagesTotal int
	Syscalls   map[string]int64
	History    []*proctab.Reaped
}

func (st *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "procs %d zombies %d threads %d memory %s/%s\n",
		st.Nproc, st.Nzombie, st.Nthread,
		humanize.IBytes(uint64(st.PagesUsed*vm.PAGE_SIZE)),
		humanize.IBytes(uint64(st.PagesTotal*vm.PAGE_SIZE)))
	fmt.Fprintf(&b, "syscalls total %d fork %d execv %d _exit %d waitpid %d getpid %d errors %d\n",
		st.Syscalls["Ntotal"], st.Syscalls["Nfork"], st.Syscalls["Nexecv"], st.Syscalls["Nexit"],
		st.Syscalls["Nwaitpid"], st.Syscalls["Ngetpid"], st.Syscalls["Nerr"])
	for _, r := range st.History {
		fmt.Fprintf(&b, "  reaped %v\n", r)
	}
	return b.String()
}

// Snapshot of the kernel's resource use. The session process is not
// counted.
func (k *Kernel) Stats() *Stats {
	st := &Stats{
		Nproc:      k.pt.Len(),
		Nzombie:    len(k.pt.Zombies()),
		Nthread:    k.threads.Nthread(),
		PagesUsed:  k.pool.Used(),
		PagesTotal: k.pool.Total(),
		Syscalls:   k.sys.Stats().Counters(),
		History:    k.pt.History(),
	}
	if !k.session.IsDestroyed() {
		st.Nproc--
	}
	return st
}
