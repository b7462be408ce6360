// Package loader keeps the program images the kernel can execute and
// loads them into address spaces.
package loader

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	db "ukern/debug"
	"ukern/serr"
	"ukern/trapframe"
	"ukern/vm"
)

type Registry struct {
	sync.Mutex
	images  map[string]*Manifest
	symbols map[string]trapframe.Entry
}

func NewRegistry() *Registry {
	return &Registry{
		images:  make(map[string]*Manifest),
		symbols: make(map[string]trapframe.Entry),
	}
}

func (r *Registry) RegisterSymbol(sym string, e trapframe.Entry) {
	r.Lock()
	defer r.Unlock()
	r.symbols[sym] = e
}

func (r *Registry) Lookup(sym string) (trapframe.Entry, bool) {
	r.Lock()
	defer r.Unlock()
	e, ok := r.symbols[sym]
	return e, ok
}

func (r *Registry) Install(m *Manifest) error {
	if err := m.validate(); err != nil {
		db.DPrintf(db.LOADER_ERR, "Install %v err %v", m, err)
		return err
	}
	r.Lock()
	defer r.Unlock()
	r.images[m.Path] = m
	db.DPrintf(db.LOADER, "Install %v", m)
	return nil
}

// Install a default image at path whose entry runs e.
func (r *Registry) Register(path string, e trapframe.Entry) error {
	r.RegisterSymbol(path, e)
	return r.Install(NewManifest(path, path))
}

// Install every program described in a manifest document.
func (r *Registry) LoadManifests(b []byte) error {
	ms, err := parseManifests(b)
	if err != nil {
		return serr.NewErrString(serr.TErrNoexec, "manifest", err)
	}
	for _, m := range ms {
		if err := r.Install(m); err != nil {
			return err
		}
	}
	return nil
}

// Install the manifests in every *.yaml file in dir.
func (r *Registry) LoadDir(dir string) error {
	fns, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, fn := range fns {
		b, err := os.ReadFile(fn)
		if err != nil {
			return err
		}
		if err := r.LoadManifests(b); err != nil {
			db.DPrintf(db.LOADER_ERR, "LoadDir %v err %v", fn, err)
			return err
		}
	}
	return nil
}

func (r *Registry) Paths() []string {
	r.Lock()
	defer r.Unlock()
	ps := make([]string, 0, len(r.images))
	for p := range r.images {
		ps = append(ps, p)
	}
	return ps
}

// An open program image.
type Image struct {
	r      *Registry
	m      *Manifest
	closed bool
}

func (r *Registry) Open(path string) (*Image, error) {
	r.Lock()
	defer r.Unlock()

	m, ok := r.images[path]
	if !ok {
		db.DPrintf(db.LOADER_ERR, "Open %q: not found", path)
		return nil, serr.NewErr(serr.TErrNotfound, path)
	}
	return &Image{r: r, m: m}, nil
}

func (img *Image) Path() string {
	return img.m.Path
}

func (img *Image) Close() {
	if img.closed {
		db.DFatalf("double close %v", img.m.Path)
	}
	img.closed = true
}

// Define the image's segments in as, copy in their contents and
// return the entry address.
func (img *Image) Load(as *vm.AddrSpace) (vm.Vaddr, error) {
	m := img.m
	if _, ok := img.r.Lookup(m.Entry); !ok {
		db.DPrintf(db.LOADER_ERR, "Load %v: no symbol %q", m.Path, m.Entry)
		return 0, serr.NewErr(serr.TErrNoexec, m.Entry)
	}
	for _, s := range m.Segments {
		perm, err := vm.ParsePerm(s.Perm)
		if err != nil {
			return 0, serr.NewErr(serr.TErrNoexec, s.Perm)
		}
		if err := as.DefineRegion(s.Vaddr, s.Memsz, perm); err != nil {
			db.DPrintf(db.LOADER_ERR, "Load %v: segment %v err %v", m.Path, &s, err)
			if serr.IsErrCode(err, serr.TErrInval) {
				return 0, serr.NewErrString(serr.TErrNoexec, m.Path, err)
			}
			return 0, err
		}
	}
	as.PrepareLoad()
	defer as.CompleteLoad()
	for _, s := range m.Segments {
		if s.Data == "" {
			continue
		}
		if err := as.Write(s.Vaddr, []byte(s.Data)); err != nil {
			return 0, err
		}
	}
	as.DefineSymbol(m.EntryVa, m.Entry)
	db.DPrintf(db.LOADER, "Load %v: %v entry %#x", m.Path, humanize.IBytes(uint64(m.size())), m.EntryVa)
	return m.EntryVa, nil
}
