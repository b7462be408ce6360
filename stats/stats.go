// Package stats counts system calls.
package stats

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"

	db "ukern/debug"
	"ukern/trapframe"
)

const STATS = true

type Tcounter = atomic.Int64

func Inc(c *Tcounter, v int64) {
	if STATS {
		c.Add(v)
	}
}

// Raise max to v if v is larger.
func Max(max *Tcounter, v int64) {
	if STATS {
		for {
			old := max.Load()
			if v <= old {
				return
			}
			if max.CompareAndSwap(old, v) {
				return
			}
		}
	}
}

func Read(c *Tcounter) int64 {
	if STATS {
		return c.Load()
	}
	return 0
}

// XXX separate cache lines
type StatInfo struct {
	Ntotal   Tcounter
	Nfork    Tcounter
	Nexecv   Tcounter
	Nexit    Tcounter
	Nwaitpid Tcounter
	Ngetpid  Tcounter
	Nnosys   Tcounter
	Nerr     Tcounter
	MaxProcs Tcounter // most live records seen after a fork
}

func NewStatInfo() *StatInfo {
	return &StatInfo{}
}

func (si *StatInfo) Inc(callno uint32) {
	switch callno {
	case trapframe.SYS_fork:
		Inc(&si.Nfork, 1)
	case trapframe.SYS_execv:
		Inc(&si.Nexecv, 1)
	case trapframe.SYS__exit:
		Inc(&si.Nexit, 1)
	case trapframe.SYS_waitpid:
		Inc(&si.Nwaitpid, 1)
	case trapframe.SYS_getpid:
		Inc(&si.Ngetpid, 1)
	default:
		Inc(&si.Nnosys, 1)
	}
	Inc(&si.Ntotal, 1)
}

// Copy the counters while concurrent Inc()s may happen
func (si *StatInfo) Counters() map[string]int64 {
	m := make(map[string]int64)
	v := reflect.ValueOf(si).Elem()
	for i := 0; i < v.NumField(); i++ {
		if c, ok := v.Field(i).Addr().Interface().(*Tcounter); ok {
			m[v.Type().Field(i).Name] = Read(c)
		}
	}
	return m
}

func (si *StatInfo) Json() []byte {
	b, err := json.Marshal(si.Counters())
	if err != nil {
		db.DFatalf("stats: json failed %v\n", err)
	}
	return b
}

func (si *StatInfo) String() string {
	m := si.Counters()
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	fs := make([]string, 0, len(ks))
	for _, k := range ks {
		fs = append(fs, fmt.Sprintf("%s:%d", k, m[k]))
	}
	return "&{ " + strings.Join(fs, " ") + " }"
}
