// Package discover turns a target's symbol table and text-section layout
// into a sorted, sized list of candidate functions for the rest of the
// pipeline to decode (§4.2).
package discover

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/euspectre/kedr-go/internal/insn"
)

// Symbol is one entry a SymbolSource reports: a named address belonging to
// the target, not yet known to be a real function (sentinels included).
type Symbol struct {
	Name string
	Addr uint64
}

// SymbolSource enumerates a target's symbols and its text-area bounds. A
// real implementation resolves these from the kernel module loader (or, in
// this user-space rehosting, from an ELF symbol table — see dwarfsrc.go);
// tests supply an in-process StaticSymbolSource.
type SymbolSource interface {
	// Symbols returns every named symbol belonging to the target,
	// already filtered to those lying in the init or core text areas
	// and excluding the init_module/cleanup_module aliases.
	Symbols() []Symbol
	// TextAreas returns the [start, end) ranges of the target's init and
	// core text sections, used to place sentinel records and validate
	// resolved sections (supplemented per SPEC_FULL §6/original_source
	// sections.c).
	TextAreas() []TextArea
}

// TextArea is one contiguous text section's bounds in the target's memory
// image.
type TextArea struct {
	Name  string
	Start uint64
	End   uint64
}

// MemReader reads bytes from the target's memory image, used both by IR
// build's jump-table walk and here to recover a truncated trailing
// instruction after zero-padding trim.
type MemReader interface {
	ReadMem(addr uint64, out []byte) error
}

// Candidate is one function discovered and sized, ready for IR.Build.
type Candidate struct {
	Name string
	Addr uint64
	Size int
}

const minNearJumpSize = 5

// record is an internal sentinel-augmented entry used only for sorting and
// sizing; it never escapes Discover.
type record struct {
	addr   uint64
	idx    int // insertion index, the stable sort tiebreaker
	isReal bool
	name   string
}

// Discover implements §4.2: collect real symbols, add section/end
// sentinels, stable-sort by (address, insertion index), size each real
// record to the distance to the next record (passing over sentinels at the
// record's own address), trim trailing zero padding
// (recovering any truncated trailing instruction by decoding it), and
// discard anything left too small to hold a near jump.
func Discover(src SymbolSource, mem MemReader, mode insn.Mode, logger *log.Entry) []Candidate {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	var recs []record
	idx := 0
	for _, s := range src.Symbols() {
		recs = append(recs, record{addr: s.Addr, idx: idx, isReal: true, name: s.Name})
		idx++
	}
	for _, area := range src.TextAreas() {
		recs = append(recs, record{addr: area.Start, idx: idx})
		idx++
		recs = append(recs, record{addr: area.End, idx: idx})
		idx++
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].addr != recs[j].addr {
			return recs[i].addr < recs[j].addr
		}
		return recs[i].idx < recs[j].idx
	})

	var out []Candidate
	for i, r := range recs {
		if !r.isReal {
			continue
		}
		// A sentinel at the record's own address (the start of the text
		// area this function opens) does not end the function.
		next := r.addr
		for j := i + 1; j < len(recs); j++ {
			if recs[j].isReal || recs[j].addr != r.addr {
				next = recs[j].addr
				break
			}
		}
		size := int(next - r.addr)
		size = trimTrailingZeros(mem, r.addr, size, mode, logger, r.name)
		if size < minNearJumpSize {
			logger.WithFields(log.Fields{"func": r.name, "addr": r.addr, "size": size}).
				Warn("discover: function too small for near jump, discarded")
			continue
		}
		out = append(out, Candidate{Name: r.name, Addr: r.addr, Size: size})
	}
	return out
}

// trimTrailingZeros drops trailing 0x00 padding bytes, then re-extends the
// size if the trim cut into the last real instruction (decoded from its
// start) rather than stopping exactly at an instruction boundary.
func trimTrailingZeros(mem MemReader, addr uint64, size int, mode insn.Mode, logger *log.Entry, name string) int {
	if size <= 0 {
		return size
	}
	buf := make([]byte, size)
	if err := mem.ReadMem(addr, buf); err != nil {
		logger.WithError(err).WithField("func", name).Warn("discover: read failed while sizing function")
		return size
	}
	trimmed := size
	for trimmed > 0 && buf[trimmed-1] == 0 {
		trimmed--
	}
	if trimmed == size || trimmed == 0 {
		return trimmed
	}

	// Re-decode forward from addr; if the instruction stream overruns
	// the zero-trimmed boundary, extend trimmed to that instruction's end
	// (the trim cut into a real trailing instruction, not padding).
	off := 0
	for off < trimmed {
		in, err := insn.Decode(buf[off:], addr+uint64(off), mode)
		if err != nil {
			break
		}
		off += in.Len
	}
	if off > trimmed {
		return off
	}
	return trimmed
}
