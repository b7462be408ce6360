package vm

import (
	"fmt"
	"sort"
	"sync"

	db "ukern/debug"
	"ukern/serr"
)

type Vaddr uint32

const (
	USERSTACK Vaddr = 0x80000000
)

type Tperm uint8

const (
	PERM_R Tperm = 1 << iota
	PERM_W
	PERM_X
)

func (p Tperm) String() string {
	b := []byte("---")
	if p&PERM_R != 0 {
		b[0] = 'r'
	}
	if p&PERM_W != 0 {
		b[1] = 'w'
	}
	if p&PERM_X != 0 {
		b[2] = 'x'
	}
	return string(b)
}

func ParsePerm(s string) (Tperm, error) {
	var p Tperm
	for _, c := range s {
		switch c {
		case 'r':
			p |= PERM_R
		case 'w':
			p |= PERM_W
		case 'x':
			p |= PERM_X
		case '-':
		default:
			return 0, serr.NewErr(serr.TErrInval, s)
		}
	}
	return p, nil
}

func RoundUp(a, n Vaddr) Vaddr {
	return (a + n - 1) / n * n
}

func RoundDown(a, n Vaddr) Vaddr {
	return a / n * n
}

type region struct {
	base Vaddr
	perm Tperm
	data []byte
}

func (r *region) end() uint64 {
	return uint64(r.base) + uint64(len(r.data))
}

func (r *region) npages() int {
	return len(r.data) / PAGE_SIZE
}

func (r *region) contains(va Vaddr) bool {
	return va >= r.base && uint64(va) < r.end()
}

func (r *region) String() string {
	return fmt.Sprintf("[%#x,%#x) %v", r.base, r.end(), r.perm)
}

// A simulated user address space: a set of page-aligned regions plus a
// stack region ending at USERSTACK, and the symbols loaded at code
// addresses.
type AddrSpace struct {
	sync.Mutex
	pool       *Pool
	stackPages int
	regions    []*region
	symbols    map[Vaddr]string
	loading    bool
	active     bool
	destroyed  bool
}

func NewAddrSpace(pool *Pool, stackPages int) *AddrSpace {
	return &AddrSpace{
		pool:       pool,
		stackPages: stackPages,
		symbols:    make(map[Vaddr]string),
	}
}

func (as *AddrSpace) String() string {
	as.Lock()
	defer as.Unlock()
	return fmt.Sprintf("&{ regions:%v active:%v }", as.regions, as.active)
}

// Caller holds lock
func (as *AddrSpace) defineRegion(base Vaddr, sz int, perm Tperm) error {
	if as.destroyed {
		db.DFatalf("defineRegion on destroyed addrspace")
	}
	if sz <= 0 {
		return serr.NewErr(serr.TErrInval, fmt.Sprintf("region size %d", sz))
	}
	start := RoundDown(base, PAGE_SIZE)
	end := uint64(base) + uint64(sz)
	npages := int((end - uint64(start) + PAGE_SIZE - 1) / PAGE_SIZE)
	r := &region{base: start, perm: perm}
	if uint64(start)+uint64(npages)*PAGE_SIZE > uint64(USERSTACK) {
		return serr.NewErr(serr.TErrInval, fmt.Sprintf("region %#x beyond user space", base))
	}
	for _, o := range as.regions {
		if uint64(start) < o.end() && uint64(o.base) < uint64(start)+uint64(npages)*PAGE_SIZE {
			return serr.NewErr(serr.TErrInval, fmt.Sprintf("region %#x overlaps %v", base, o))
		}
	}
	if err := as.pool.alloc(npages); err != nil {
		return err
	}
	r.data = make([]byte, npages*PAGE_SIZE)
	as.regions = append(as.regions, r)
	sort.Slice(as.regions, func(i, j int) bool { return as.regions[i].base < as.regions[j].base })
	db.DPrintf(db.VM, "define region %v", r)
	return nil
}

func (as *AddrSpace) DefineRegion(base Vaddr, sz int, perm Tperm) error {
	as.Lock()
	defer as.Unlock()
	return as.defineRegion(base, sz, perm)
}

// Define the user stack and return the initial stack pointer.
func (as *AddrSpace) DefineStack() (Vaddr, error) {
	as.Lock()
	defer as.Unlock()

	base := USERSTACK - Vaddr(as.stackPages*PAGE_SIZE)
	if err := as.defineRegion(base, as.stackPages*PAGE_SIZE, PERM_R|PERM_W); err != nil {
		return 0, err
	}
	return USERSTACK, nil
}

// While loading, every region is writable.
func (as *AddrSpace) PrepareLoad() {
	as.Lock()
	defer as.Unlock()
	as.loading = true
}

func (as *AddrSpace) CompleteLoad() {
	as.Lock()
	defer as.Unlock()
	as.loading = false
}

func (as *AddrSpace) DefineSymbol(va Vaddr, sym string) {
	as.Lock()
	defer as.Unlock()
	as.symbols[va] = sym
}

func (as *AddrSpace) Symbol(va Vaddr) (string, bool) {
	as.Lock()
	defer as.Unlock()
	sym, ok := as.symbols[va]
	return sym, ok
}

// Caller holds lock
func (as *AddrSpace) lookup(va Vaddr) *region {
	for _, r := range as.regions {
		if r.contains(va) {
			return r
		}
	}
	return nil
}

// Copy n bytes starting at va out of the address space. Fails with
// TErrFault if any byte is unmapped or unreadable.
func (as *AddrSpace) Read(va Vaddr, n int) ([]byte, error) {
	as.Lock()
	defer as.Unlock()

	b := make([]byte, 0, n)
	for len(b) < n {
		a := va + Vaddr(len(b))
		if uint64(va)+uint64(len(b)) > uint64(^Vaddr(0)) {
			return nil, serr.NewErr(serr.TErrFault, fmt.Sprintf("%#x", va))
		}
		r := as.lookup(a)
		if r == nil || r.perm&PERM_R == 0 {
			return nil, serr.NewErr(serr.TErrFault, fmt.Sprintf("%#x", a))
		}
		off := int(a - r.base)
		m := n - len(b)
		if m > len(r.data)-off {
			m = len(r.data) - off
		}
		b = append(b, r.data[off:off+m]...)
	}
	return b, nil
}

// Copy b into the address space at va.
func (as *AddrSpace) Write(va Vaddr, b []byte) error {
	as.Lock()
	defer as.Unlock()

	if uint64(va)+uint64(len(b)) > uint64(^Vaddr(0))+1 {
		return serr.NewErr(serr.TErrFault, fmt.Sprintf("%#x", va))
	}
	// Check the whole range before writing anything.
	for i := 0; i < len(b); {
		a := va + Vaddr(i)
		r := as.lookup(a)
		if r == nil || (r.perm&PERM_W == 0 && !as.loading) {
			return serr.NewErr(serr.TErrFault, fmt.Sprintf("%#x", a))
		}
		i += int(r.end() - uint64(a))
	}
	for i := 0; i < len(b); {
		a := va + Vaddr(i)
		r := as.lookup(a)
		off := int(a - r.base)
		i += copy(r.data[off:], b[i:])
	}
	return nil
}

// Duplicate the address space, including its contents and symbols.
func (as *AddrSpace) Copy() (*AddrSpace, error) {
	as.Lock()
	defer as.Unlock()

	if as.destroyed {
		db.DFatalf("Copy destroyed addrspace")
	}
	n := 0
	for _, r := range as.regions {
		n += r.npages()
	}
	if err := as.pool.alloc(n); err != nil {
		return nil, err
	}
	new := NewAddrSpace(as.pool, as.stackPages)
	for _, r := range as.regions {
		d := make([]byte, len(r.data))
		copy(d, r.data)
		new.regions = append(new.regions, &region{base: r.base, perm: r.perm, data: d})
	}
	for va, sym := range as.symbols {
		new.symbols[va] = sym
	}
	db.DPrintf(db.VM, "copy addrspace %d pages", n)
	return new, nil
}

func (as *AddrSpace) Npages() int {
	as.Lock()
	defer as.Unlock()
	n := 0
	for _, r := range as.regions {
		n += r.npages()
	}
	return n
}

func (as *AddrSpace) Activate() {
	as.Lock()
	defer as.Unlock()
	as.active = true
}

func (as *AddrSpace) Deactivate() {
	as.Lock()
	defer as.Unlock()
	as.active = false
}

func (as *AddrSpace) IsActive() bool {
	as.Lock()
	defer as.Unlock()
	return as.active
}

// Release all pages. An address space is destroyed at most once.
func (as *AddrSpace) Destroy() {
	as.Lock()
	defer as.Unlock()

	if as.destroyed {
		db.DFatalf("double destroy addrspace")
	}
	as.destroyed = true
	n := 0
	for _, r := range as.regions {
		n += r.npages()
	}
	as.regions = nil
	as.pool.free(n)
	db.DPrintf(db.VM, "destroy addrspace %d pages", n)
}
