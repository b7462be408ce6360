package vm_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	db "ukern/debug"
	"ukern/serr"
	"ukern/vm"
)

func TestRegionReadWrite(t *testing.T) {
	pool := vm.NewPool(64)
	as := vm.NewAddrSpace(pool, 2)
	err := as.DefineRegion(0x400000, 100, vm.PERM_R|vm.PERM_W)
	assert.Nil(t, err, "DefineRegion")
	assert.Equal(t, 1, pool.Used())

	err = as.Write(0x400010, []byte("hello"))
	assert.Nil(t, err, "Write")
	b, err := as.Read(0x400010, 5)
	assert.Nil(t, err, "Read")
	assert.Equal(t, "hello", string(b))

	_, err = as.Read(0x500000, 1)
	assert.True(t, serr.IsErrCode(err, serr.TErrFault), "unmapped read")

	// Straddles the end of the region
	err = as.Write(0x400000+vm.PAGE_SIZE-2, []byte("abcd"))
	assert.True(t, serr.IsErrCode(err, serr.TErrFault), "partial write")
	b, err = as.Read(0x400000+vm.PAGE_SIZE-2, 2)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0, 0}, b, "no partial write")

	as.Destroy()
	assert.Equal(t, 0, pool.Used())
}

func TestReadOnlyRegion(t *testing.T) {
	pool := vm.NewPool(64)
	as := vm.NewAddrSpace(pool, 2)
	assert.Nil(t, as.DefineRegion(0x400000, vm.PAGE_SIZE, vm.PERM_R|vm.PERM_X))

	err := as.Write(0x400000, []byte{1})
	assert.True(t, serr.IsErrCode(err, serr.TErrFault))

	as.PrepareLoad()
	assert.Nil(t, as.Write(0x400000, []byte{1}))
	as.CompleteLoad()
	b, err := as.Read(0x400000, 1)
	assert.Nil(t, err)
	assert.Equal(t, []byte{1}, b)
	as.Destroy()
}

func TestOverlap(t *testing.T) {
	pool := vm.NewPool(64)
	as := vm.NewAddrSpace(pool, 2)
	assert.Nil(t, as.DefineRegion(0x400000, 2*vm.PAGE_SIZE, vm.PERM_R))
	err := as.DefineRegion(0x401000, 10, vm.PERM_R)
	assert.True(t, serr.IsErrCode(err, serr.TErrInval))
	assert.Equal(t, 2, pool.Used())
	as.Destroy()
}

func TestStack(t *testing.T) {
	pool := vm.NewPool(64)
	as := vm.NewAddrSpace(pool, 4)
	sp, err := as.DefineStack()
	assert.Nil(t, err)
	assert.Equal(t, vm.USERSTACK, sp)
	assert.Nil(t, as.Write(sp-4, []byte{1, 2, 3, 4}))
	_, err = as.Read(sp, 1)
	assert.NotNil(t, err, "above stack")
	assert.Equal(t, 4, as.Npages())
	as.Destroy()
}

func TestCopyIndependent(t *testing.T) {
	pool := vm.NewPool(64)
	as := vm.NewAddrSpace(pool, 2)
	assert.Nil(t, as.DefineRegion(0x10000000, 8, vm.PERM_R|vm.PERM_W))
	assert.Nil(t, as.Write(0x10000000, []byte("parent")))
	as.DefineSymbol(0x10000000, "main")

	c, err := as.Copy()
	assert.Nil(t, err, "Copy")
	assert.Equal(t, 2, pool.Used())

	assert.Nil(t, c.Write(0x10000000, []byte("child!")))
	b, _ := as.Read(0x10000000, 6)
	assert.Equal(t, "parent", string(b))
	b, _ = c.Read(0x10000000, 6)
	assert.Equal(t, "child!", string(b))
	sym, ok := c.Symbol(0x10000000)
	assert.True(t, ok)
	assert.Equal(t, "main", sym)

	c.Destroy()
	as.Destroy()
	assert.Equal(t, 0, pool.Used())
}

func TestPoolExhausted(t *testing.T) {
	pool := vm.NewPool(3)
	as := vm.NewAddrSpace(pool, 2)
	assert.Nil(t, as.DefineRegion(0x400000, 2*vm.PAGE_SIZE, vm.PERM_R))
	_, err := as.Copy()
	assert.True(t, serr.IsErrCode(err, serr.TErrNomem), "Copy")
	_, err = as.DefineStack()
	assert.True(t, serr.IsErrCode(err, serr.TErrNomem), "DefineStack")
	assert.Equal(t, 2, pool.Used())
	as.Destroy()
}

func TestPerm(t *testing.T) {
	p, err := vm.ParsePerm("r-x")
	assert.Nil(t, err)
	assert.Equal(t, vm.PERM_R|vm.PERM_X, p)
	assert.Equal(t, "r-x", p.String())
	_, err = vm.ParsePerm("rq")
	assert.NotNil(t, err)
}

func TestPoolExhaustedLogged(t *testing.T) {
	defer db.SetLabels(os.Getenv(db.DEBUG_ENV))
	db.SetLabels(string(db.VM_ERR))

	pool := vm.NewPool(1)
	ch := make(chan error)
	go func() {
		as := vm.NewAddrSpace(pool, 2)
		ch <- as.DefineRegion(0x400000, 2*vm.PAGE_SIZE, vm.PERM_R)
	}()
	select {
	case err := <-ch:
		assert.True(t, serr.IsErrCode(err, serr.TErrNomem), "DefineRegion %v", err)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "alloc hung")
		return
	}
	// The pool is usable afterwards
	as := vm.NewAddrSpace(pool, 1)
	assert.Nil(t, as.DefineRegion(0x400000, vm.PAGE_SIZE, vm.PERM_R))
	assert.Equal(t, "4.0 KiB/4.0 KiB", pool.String())
	as.Destroy()
}

func TestActivate(t *testing.T) {
	pool := vm.NewPool(4)
	as := vm.NewAddrSpace(pool, 1)
	assert.False(t, as.IsActive())
	as.Activate()
	assert.True(t, as.IsActive())
	as1, err := as.Copy()
	assert.Nil(t, err, "Copy")
	assert.False(t, as1.IsActive(), "copy starts inactive")
	as.Deactivate()
	assert.False(t, as.IsActive())
	as.Destroy()
	as1.Destroy()
}
