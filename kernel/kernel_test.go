package kernel_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ukern/kernel"
	"ukern/proc"
	"ukern/serr"
	"ukern/test"
)

func writeParam(t *testing.T, s string) string {
	pn := filepath.Join(t.TempDir(), "param.yaml")
	err := os.WriteFile(pn, []byte(s), 0644)
	assert.Nil(t, err, "WriteFile")
	return pn
}

func TestDefaultParam(t *testing.T) {
	p, err := kernel.ReadParam("")
	assert.Nil(t, err, "ReadParam")
	assert.Equal(t, kernel.DefaultParam(), p)
}

func TestReadParam(t *testing.T) {
	pn := writeParam(t, `
max_procs: 16
phys_pages: 256
deadlock_timeout: 5s
`)
	p, err := kernel.ReadParam(pn)
	assert.Nil(t, err, "ReadParam")
	assert.Equal(t, 16, p.MaxProcs)
	assert.Equal(t, 256, p.PhysPages)
	assert.Equal(t, 5*time.Second, p.DeadlockTimeout)
	assert.Equal(t, kernel.DefaultParam().StackPages, p.StackPages)
}

func TestParamEnv(t *testing.T) {
	pn := writeParam(t, "max_procs: 16\n")
	t.Setenv("UKERN_MAX_PROCS", "32")
	t.Setenv("UKERN_HISTORY", "3")
	p, err := kernel.ReadParam(pn)
	assert.Nil(t, err, "ReadParam")
	assert.Equal(t, 32, p.MaxProcs)
	assert.Equal(t, 3, p.History)
}

func TestBadParam(t *testing.T) {
	_, err := kernel.ReadParam(writeParam(t, "max_prcs: 16\n"))
	assert.True(t, serr.IsErrCode(err, serr.TErrInval), "unknown key %v", err)

	_, err = kernel.ReadParam(writeParam(t, "stack_pages: 0\n"))
	assert.True(t, serr.IsErrCode(err, serr.TErrInval), "zero stack %v", err)

	_, err = kernel.ReadParam(writeParam(t, "stack_pages: 1\n"))
	assert.True(t, serr.IsErrCode(err, serr.TErrInval), "arg_max over stack %v", err)

	_, err = kernel.ReadParam(writeParam(t, "stack_pages: 1\narg_max: 2040\n"))
	assert.Nil(t, err, "arg_max fits stack")

	_, err = kernel.ReadParam(writeParam(t, "max_procs: [1, 2]\n"))
	assert.NotNil(t, err, "list")

	_, err = kernel.ReadParam(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err, "missing file")
}

func TestProgramsDir(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(`
programs:
  - path: /usr/bin/true
    entry: "true"
    segments:
      - {vaddr: 0x400000, memsz: 4096, perm: r-x}
`), 0644)
	assert.Nil(t, err, "WriteFile")

	ts := test.NewTstateParam(t, func(p *kernel.Param) {
		p.Programs = dir
	})
	ts.RunExpect(0, "/usr/bin/true")
	ts.Shutdown()
}

func TestBootShutdown(t *testing.T) {
	k, err := kernel.BootUp("")
	assert.Nil(t, err, "BootUp")
	assert.NotEmpty(t, k.Id())
	st := k.Stats()
	assert.Equal(t, 0, st.Nproc)
	assert.Equal(t, 0, st.PagesUsed)
	assert.Nil(t, k.Shutdown(), "Shutdown")
	assert.True(t, k.Session().IsDestroyed())

	_, err = k.Start("/bin/true", nil)
	assert.NotNil(t, err, "Start after shutdown")
	assert.NotNil(t, k.Shutdown(), "double Shutdown")
}

func TestRunBuiltins(t *testing.T) {
	ts := test.NewTstate(t)
	ts.RunExpect(0, "/bin/true")
	ts.RunExpect(1, "/bin/false")
	ts.RunExpect(42, "/bin/exitcode", "42")
	ts.RunExpect(0, "/testbin/forktest", "16")
	ts.RunExpect(0, "/testbin/waitchain")
	ts.RunExpect(0, "/testbin/badexec")
	ts.RunExpect(0, "/testbin/waitbad")
	ts.RunExpect(0, "/testbin/orphan")
	ts.RunExpect(2, "/bin/argecho", "hello")
	ts.WaitIdle()
	assert.Equal(t, "/bin/argecho hello\n", ts.Output())
	ts.Shutdown()
}

func TestConcurrentPrograms(t *testing.T) {
	const N = 8
	ts := test.NewTstate(t)
	pids := make([]proc.Tpid, 0, N)
	for i := 0; i < N; i++ {
		pid, err := ts.Start("/testbin/forktest", []string{"/testbin/forktest", "8"})
		assert.Nil(t, err, "Start")
		pids = append(pids, pid)
	}
	for _, pid := range pids {
		ws, err := ts.Wait(pid)
		assert.Nil(t, err, "Wait")
		assert.Equal(t, 0, ws.ExitStatus())
	}
	st := ts.Stats()
	assert.Equal(t, 0, st.Nproc)
	assert.Equal(t, 0, st.Nzombie)
	assert.Equal(t, int64(N*8), st.Syscalls["Nfork"])
	assert.Equal(t, int64(0), st.Syscalls["Nerr"])
	assert.True(t, strings.Contains(st.String(), "procs 0"), st.String())
	ts.Shutdown()
}

func TestStartDuringShutdown(t *testing.T) {
	const N = 4
	ts := test.NewTstate(t)
	started := make(chan bool, N)
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; ; j++ {
				var err error
				if i%2 == 0 {
					_, err = ts.Start("/bin/true", []string{"/bin/true"})
				} else {
					_, err = ts.RunProgram("/bin/true", []string{"/bin/true"})
				}
				if j == 0 {
					started <- err == nil
				}
				if err != nil {
					return
				}
			}
		}(i)
	}
	for i := 0; i < N; i++ {
		assert.True(t, <-started, "first start")
	}
	ts.Shutdown()
	wg.Wait()
	assert.Equal(t, 0, ts.Procs().Len(), "records after shutdown")
	_, err := ts.Start("/bin/true", []string{"/bin/true"})
	assert.NotNil(t, err, "Start after shutdown")
}
