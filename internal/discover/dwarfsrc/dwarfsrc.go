// Package dwarfsrc resolves a target's function symbols from an ELF image
// via debug/elf, standing in for the kernel's own symbol walk when this
// pipeline is rehosted in user space. No library in the example pack
// offers ELF symbol-table parsing; debug/elf is the purpose-built stdlib
// package for exactly this and is used directly (no DWARF data is read)
// (see DESIGN.md for the stdlib justification this repo otherwise avoids).
package dwarfsrc

import (
	"debug/elf"
	"fmt"

	"github.com/euspectre/kedr-go/internal/discover"
)

// Source resolves discover.Symbol/discover.TextArea from an open ELF file.
// It excludes init_module/cleanup_module aliases and anything outside the
// sections named coreSections (the target's init/core text, by analogy
// with a kernel module's two text areas).
type Source struct {
	f             *elf.File
	coreSections  map[string]bool
}

// Open parses path as an ELF file and restricts symbol lookup to the named
// sections (defaults to ".text" if none given).
func Open(path string, sections ...string) (*Source, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dwarfsrc: open %s: %w", path, err)
	}
	if len(sections) == 0 {
		sections = []string{".text"}
	}
	set := make(map[string]bool, len(sections))
	for _, s := range sections {
		set[s] = true
	}
	return &Source{f: f, coreSections: set}, nil
}

func (s *Source) Close() error { return s.f.Close() }

func (s *Source) Symbols() []discover.Symbol {
	syms, err := s.f.Symbols()
	if err != nil {
		return nil
	}
	areas := s.TextAreas()
	var out []discover.Symbol
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Name == "init_module" || sym.Name == "cleanup_module" {
			continue
		}
		if !inAnyArea(sym.Value, areas) {
			continue
		}
		out = append(out, discover.Symbol{Name: sym.Name, Addr: sym.Value})
	}
	return out
}

func (s *Source) TextAreas() []discover.TextArea {
	var out []discover.TextArea
	for _, sec := range s.f.Sections {
		if !s.coreSections[sec.Name] {
			continue
		}
		out = append(out, discover.TextArea{Name: sec.Name, Start: sec.Addr, End: sec.Addr + sec.Size})
	}
	return out
}

func inAnyArea(addr uint64, areas []discover.TextArea) bool {
	for _, a := range areas {
		if addr >= a.Start && addr < a.End {
			return true
		}
	}
	return false
}

// ReadMem reads raw bytes from whichever section contains addr.
func (s *Source) ReadMem(addr uint64, out []byte) error {
	for _, sec := range s.f.Sections {
		if addr < sec.Addr || addr+uint64(len(out)) > sec.Addr+sec.Size {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return fmt.Errorf("dwarfsrc: read section %s: %w", sec.Name, err)
		}
		off := addr - sec.Addr
		copy(out, data[off:off+uint64(len(out))])
		return nil
	}
	return fmt.Errorf("dwarfsrc: address 0x%x not in any section", addr)
}
