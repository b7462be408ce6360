package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/montanaflynn/stats"

	db "ukern/debug"
	"ukern/kernel"
	"ukern/proc"
	"ukern/ulib"
)

const BENCH = "/bench/forkwait"

var param = flag.String("param", "", "YAML kernel parameter file")
var niter = flag.Int("n", 1000, "fork/waitpid iterations per program")
var nprog = flag.Int("p", 1, "programs running concurrently")

// Fork a child that exits at once and wait for it, n times; report the
// latency of each round trip.
func forkwait(n int, lats chan<- time.Duration) func(u *ulib.U, args []string) int {
	return func(u *ulib.U, args []string) int {
		for i := 0; i < n; i++ {
			start := time.Now()
			pid, err := u.Fork(func(cu *ulib.U, ret proc.Tpid) int {
				return 0
			})
			if err != nil {
				db.DPrintf(db.BENCH, "Fork err %v", err)
				return 1
			}
			if _, _, err := u.Waitpid(pid, 0); err != nil {
				db.DPrintf(db.BENCH, "Waitpid err %v", err)
				return 1
			}
			lats <- time.Since(start)
		}
		return 0
	}
}

func main() {
	flag.Parse()
	k, err := kernel.BootUp(*param)
	if err != nil {
		db.DFatalf("Boot err %v", err)
	}
	lats := make(chan time.Duration, *niter**nprog)
	if err := k.Loader().Register(BENCH, ulib.Main(forkwait(*niter, lats))); err != nil {
		db.DFatalf("Register err %v", err)
	}

	start := time.Now()
	pids := make([]proc.Tpid, 0, *nprog)
	for i := 0; i < *nprog; i++ {
		pid, err := k.Start(BENCH, []string{BENCH})
		if err != nil {
			db.DFatalf("Start err %v", err)
		}
		pids = append(pids, pid)
	}
	for _, pid := range pids {
		ws, err := k.Wait(pid)
		if err != nil || ws.ExitStatus() != 0 {
			db.DFatalf("Wait %v: %v err %v", pid, ws, err)
		}
	}
	elapsed := time.Since(start)
	close(lats)

	data := make(stats.Float64Data, 0, len(lats))
	for l := range lats {
		data = append(data, float64(l.Microseconds()))
	}
	mean, _ := data.Mean()
	median, _ := data.Median()
	p99, _ := data.Percentile(99)
	max, _ := data.Max()
	fmt.Printf("%d fork/waitpid in %v (%.0f/s)\n", len(data), elapsed, float64(len(data))/elapsed.Seconds())
	fmt.Printf("latency us: mean %.1f median %.1f p99 %.1f max %.1f\n", mean, median, p99, max)
	fmt.Print(k.Stats())
	if err := k.Shutdown(); err != nil {
		db.DFatalf("Shutdown err %v", err)
	}
	os.Exit(0)
}
