package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"ukern/loader"
	"ukern/serr"
	"ukern/threadmgr"
	"ukern/trapframe"
	"ukern/vm"
)

const images = `
programs:
  - path: /bin/greet
    entry: greet
    segments:
      - vaddr: 0x400000
        memsz: 8192
        perm: r-x
      - vaddr: "0x10000000"
        memsz: 16
        perm: rw-
        data: "hello"
  - path: /bin/huge
    entry: greet
    segments:
      - vaddr: 0x400000
        memsz: 1048576
        perm: r-x
`

func nop(tr trapframe.Trap, t *threadmgr.Thread, argc int, argv, sp vm.Vaddr) {}

func TestLoadManifest(t *testing.T) {
	r := loader.NewRegistry()
	r.RegisterSymbol("greet", nop)
	err := r.LoadManifests([]byte(images))
	assert.Nil(t, err, "LoadManifests")

	pool := vm.NewPool(64)
	as := vm.NewAddrSpace(pool, 2)
	img, err := r.Open("/bin/greet")
	assert.Nil(t, err, "Open")
	entry, err := img.Load(as)
	img.Close()
	assert.Nil(t, err, "Load")
	assert.Equal(t, vm.Vaddr(0x400000), entry)
	assert.Equal(t, 3, pool.Used())

	b, err := as.Read(0x10000000, 5)
	assert.Nil(t, err)
	assert.Equal(t, "hello", string(b))
	// Text isn't writable once loaded
	assert.NotNil(t, as.Write(0x400000, []byte{0}))

	sym, ok := as.Symbol(entry)
	assert.True(t, ok)
	assert.Equal(t, "greet", sym)
	_, ok = r.Lookup(sym)
	assert.True(t, ok)
	as.Destroy()
}

func TestLoadNomem(t *testing.T) {
	r := loader.NewRegistry()
	r.RegisterSymbol("greet", nop)
	assert.Nil(t, r.LoadManifests([]byte(images)))
	as := vm.NewAddrSpace(vm.NewPool(16), 2)
	img, err := r.Open("/bin/huge")
	assert.Nil(t, err)
	_, err = img.Load(as)
	assert.True(t, serr.IsErrCode(err, serr.TErrNomem))
	img.Close()
	as.Destroy()
}

func TestOpenMissing(t *testing.T) {
	r := loader.NewRegistry()
	_, err := r.Open("/bin/nope")
	e, ok := serr.IsErr(err)
	assert.True(t, ok, "IsErr")
	assert.True(t, e.IsErrNotfound(), "Open %v", err)
}

func TestRegister(t *testing.T) {
	r := loader.NewRegistry()
	assert.Nil(t, r.Register("/bin/nop", nop))
	as := vm.NewAddrSpace(vm.NewPool(16), 2)
	img, err := r.Open("/bin/nop")
	assert.Nil(t, err)
	entry, err := img.Load(as)
	assert.Nil(t, err)
	assert.Equal(t, loader.TEXT_BASE, entry)
	assert.Equal(t, []string{"/bin/nop"}, r.Paths())
	img.Close()
	as.Destroy()
}

func TestBadManifests(t *testing.T) {
	r := loader.NewRegistry()
	err := r.LoadManifests([]byte("programs:\n  - path: /bin/x\n    entry: x\n"))
	assert.True(t, serr.IsErrCode(err, serr.TErrNoexec), "no segments")

	err = r.LoadManifests([]byte(`
programs:
  - path: /bin/x
    entry: x
    entry_vaddr: 0x10000000
    segments:
      - {vaddr: 0x400000, memsz: 4096, perm: r-x}
      - {vaddr: 0x10000000, memsz: 4096, perm: rw-}
`))
	assert.True(t, serr.IsErrCode(err, serr.TErrNoexec), "entry outside text")

	err = r.LoadManifests([]byte("programs:\n  - path: /bin/x\n    bogus: 1\n"))
	assert.NotNil(t, err, "unknown field")

	// Symbol never registered
	assert.Nil(t, r.Install(loader.NewManifest("/bin/x", "x")))
	img, err := r.Open("/bin/x")
	assert.Nil(t, err)
	as := vm.NewAddrSpace(vm.NewPool(16), 2)
	_, err = img.Load(as)
	assert.True(t, serr.IsErrCode(err, serr.TErrNoexec))
	img.Close()
	as.Destroy()
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "bin.yaml"), []byte(images), 0644)
	assert.Nil(t, err)
	r := loader.NewRegistry()
	assert.Nil(t, r.LoadDir(dir))
	_, err = r.Open("/bin/huge")
	assert.Nil(t, err)
}
