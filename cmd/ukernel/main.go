package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	db "ukern/debug"
	"ukern/kernel"
	"ukern/userprog"
)

var param = flag.String("param", "", "YAML kernel parameter file")
var debug = flag.String("debug", "", "debug labels (e.g., FORK;WAIT)")
var detach = flag.Bool("detach", false, "run without a parent and wait for all threads")
var list = flag.Bool("list", false, "list installed programs")
var stats = flag.Bool("stats", false, "print kernel stats on exit")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %v [flags] <program> [args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if *debug != "" {
		db.SetLabels(*debug)
	}

	k, err := kernel.BootUp(*param)
	if err != nil {
		db.DFatalf("Boot err %v", err)
	}
	if err := userprog.Install(k.Loader(), userprog.NewConsole(os.Stdout)); err != nil {
		db.DFatalf("Install err %v", err)
	}
	if *list {
		ps := k.Loader().Paths()
		sort.Strings(ps)
		for _, p := range ps {
			fmt.Println(p)
		}
		os.Exit(0)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	code := 0
	if *detach {
		pid, err := k.RunProgram(flag.Arg(0), flag.Args())
		if err != nil {
			db.DFatalf("Run %v err %v", flag.Arg(0), err)
		}
		k.WaitIdle()
		db.DPrintf(db.ALWAYS, "pid %v done", pid)
	} else {
		ws, err := k.Run(flag.Arg(0), flag.Args())
		if err != nil {
			db.DFatalf("Run %v err %v", flag.Arg(0), err)
		}
		db.DPrintf(db.KERNEL, "%v: %v", flag.Arg(0), ws)
		code = ws.ExitStatus()
	}
	if *stats {
		fmt.Fprint(os.Stderr, k.Stats())
	}
	if err := k.Shutdown(); err != nil {
		db.DFatalf("Shutdown err %v", err)
	}
	os.Exit(code)
}
