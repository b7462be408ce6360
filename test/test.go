package test

import (
	"bytes"
	"flag"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	db "ukern/debug"
	"ukern/kernel"
	"ukern/userprog"
)

//
// Tests boot a fresh kernel with the built-in programs installed. With
// --ukern-param, the kernel's parameters come from that YAML file
// (plus UKERN_* environment overrides).
//

var paramFile string

func init() {
	flag.StringVar(&paramFile, "ukern-param", "", "YAML kernel parameter file")
}

// Console output shared between the test and the programs it runs.
type syncBuf struct {
	sync.Mutex
	buf bytes.Buffer
}

func (sb *syncBuf) Write(b []byte) (int, error) {
	sb.Lock()
	defer sb.Unlock()
	return sb.buf.Write(b)
}

func (sb *syncBuf) String() string {
	sb.Lock()
	defer sb.Unlock()
	return sb.buf.String()
}

type Tstate struct {
	*kernel.Kernel
	T   *testing.T
	out *syncBuf
}

func NewTstate(t *testing.T) *Tstate {
	return NewTstateParam(t, func(p *kernel.Param) {})
}

// Boot with parameters adjusted by f.
func NewTstateParam(t *testing.T, f func(p *kernel.Param)) *Tstate {
	param, err := kernel.ReadParam(paramFile)
	if err != nil {
		db.DFatalf("NewTstate: param %v err %v\n", paramFile, err)
	}
	f(param)
	k, err := kernel.NewKernel(param)
	if err != nil {
		db.DFatalf("NewTstate: kernel err %v\n", err)
	}
	ts := &Tstate{Kernel: k, T: t, out: &syncBuf{}}
	if err := userprog.Install(k.Loader(), userprog.NewConsole(ts.out)); err != nil {
		db.DFatalf("NewTstate: install err %v\n", err)
	}
	db.DPrintf(db.TEST, "NewTstate %v param %v", k.Id(), param)
	return ts
}

// Console output of the programs run so far.
func (ts *Tstate) Output() string {
	return ts.out.String()
}

// Run path and check that it exits with code.
func (ts *Tstate) RunExpect(code int, path string, args ...string) {
	ws, err := ts.Run(path, append([]string{path}, args...))
	assert.Nil(ts.T, err, "Run %v", path)
	assert.True(ts.T, ws.Exited(), "Exited %v", path)
	assert.Equal(ts.T, code, ws.ExitStatus(), "Exit status %v %v", path, args)
}

func (ts *Tstate) Shutdown() error {
	db.DPrintf(db.TEST, "Shutdown")
	defer db.DPrintf(db.TEST, "Done Shutdown")
	err := ts.Kernel.Shutdown()
	assert.Nil(ts.T, err, "Shutdown")
	return err
}
