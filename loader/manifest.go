package loader

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"ukern/serr"
	"ukern/vm"
)

const (
	TEXT_BASE vm.Vaddr = 0x00400000
	DATA_BASE vm.Vaddr = 0x10000000
)

type Segment struct {
	Vaddr vm.Vaddr `mapstructure:"vaddr"`
	Memsz int      `mapstructure:"memsz"`
	Perm  string   `mapstructure:"perm"`
	Data  string   `mapstructure:"data"`
}

func (s *Segment) String() string {
	return fmt.Sprintf("{%#x %d %v}", s.Vaddr, s.Memsz, s.Perm)
}

// Description of a program image: where its segments go and which
// registered symbol runs at its entry address.
type Manifest struct {
	Path     string    `mapstructure:"path"`
	Entry    string    `mapstructure:"entry"`
	EntryVa  vm.Vaddr  `mapstructure:"entry_vaddr"`
	Segments []Segment `mapstructure:"segments"`
}

func (m *Manifest) String() string {
	return fmt.Sprintf("&{ path:%v entry:%v@%#x segs:%v }", m.Path, m.Entry, m.EntryVa, m.Segments)
}

// Default image: one text page at TEXT_BASE running sym and one data
// page at DATA_BASE.
func NewManifest(path, sym string) *Manifest {
	return &Manifest{
		Path:    path,
		Entry:   sym,
		EntryVa: TEXT_BASE,
		Segments: []Segment{
			{Vaddr: TEXT_BASE, Memsz: vm.PAGE_SIZE, Perm: "r-x"},
			{Vaddr: DATA_BASE, Memsz: vm.PAGE_SIZE, Perm: "rw-"},
		},
	}
}

// Check that m describes a loadable image.
func (m *Manifest) validate() error {
	if m.Path == "" || m.Entry == "" {
		return serr.NewErr(serr.TErrNoexec, m)
	}
	if len(m.Segments) == 0 {
		return serr.NewErr(serr.TErrNoexec, m.Path+": no segments")
	}
	entryOk := false
	for _, s := range m.Segments {
		perm, err := vm.ParsePerm(s.Perm)
		if err != nil || s.Memsz <= 0 || len(s.Data) > s.Memsz {
			return serr.NewErr(serr.TErrNoexec, fmt.Sprintf("%v: segment %v", m.Path, &s))
		}
		if perm&vm.PERM_X != 0 && m.EntryVa >= s.Vaddr && uint64(m.EntryVa) < uint64(s.Vaddr)+uint64(s.Memsz) {
			entryOk = true
		}
	}
	if !entryOk {
		return serr.NewErr(serr.TErrNoexec, fmt.Sprintf("%v: entry %#x not in text", m.Path, m.EntryVa))
	}
	return nil
}

func (m *Manifest) size() int {
	n := 0
	for _, s := range m.Segments {
		n += s.Memsz
	}
	return n
}

type manifests struct {
	Programs []*Manifest `mapstructure:"programs"`
}

// Decode a YAML document with a top-level "programs" list.
func parseManifests(b []byte) ([]*Manifest, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	ms := &manifests{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           ms,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	for _, m := range ms.Programs {
		if m.EntryVa == 0 && len(m.Segments) > 0 {
			m.EntryVa = m.Segments[0].Vaddr
		}
	}
	return ms.Programs, nil
}
