// Package fallback builds the relocated, verbatim-but-for-fixups copies of
// a target's init/core text areas that instrumented code jumps to when a
// wrapper declines to run the instrumented path, and that out-of-function
// thunks use as their resume point (§4.3).
package fallback

import (
	"encoding/binary"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/euspectre/kedr-go/internal/insn"
)

// Area is one relocated copy of a text section.
type Area struct {
	// OrigAddr/Size describe the source range in the target's image.
	OrigAddr uint64
	Size     int

	mem mmap.MMap
	// Addr is the address the copy was mapped at (== uintptr(&mem[0])
	// reinterpreted; kept separately since mmap.MMap is a []byte).
	Addr uint64
}

// Bytes returns the copy's backing buffer.
func (a *Area) Bytes() []byte { return a.mem }

// Close unmaps the buffer.
func (a *Area) Close() error { return a.mem.Unmap() }

// Build allocates an RWX buffer the size of code, copies code into it, and
// rewrites every CALL/JMP/Jcc rel32 (and, in 64-bit mode, every
// RIP-relative operand) whose target lies outside [origAddr, origAddr+len)
// so it still resolves to the same absolute address from the new
// location — the original's "copy the bytes across... rewrite its 32-bit
// operand" pass over §4.3.
func Build(code []byte, origAddr uint64, mode insn.Mode) (*Area, error) {
	anon, err := mmap.MapRegion(nil, len(code), mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
	if err != nil {
		return nil, err
	}
	copy(anon, code)

	area := &Area{OrigAddr: origAddr, Size: len(code), mem: anon}
	newBase := addrOf(anon)
	area.Addr = newBase

	off := 0
	for off < len(code) {
		in, err := insn.Decode(anon[off:], origAddr+uint64(off), mode)
		if err != nil {
			// A byte stream the original decoder rejects is left as-is;
			// the fallback is only ever entered at instruction
			// boundaries already validated during discovery/IR build.
			break
		}
		relocateOne(anon, off, in, origAddr, uint64(len(code)), newBase, mode)
		off += in.Len
	}
	return area, nil
}

func relocateOne(buf []byte, off int, in *insn.Inst, origAddr, size, newBase uint64, mode insn.Mode) {
	isDirect := in.Kind == insn.KindCallRel32 || in.Kind == insn.KindJumpRel32 || in.Kind == insn.KindJccRel32
	if isDirect && in.JumpTarget != 0 {
		if in.JumpTarget < origAddr || in.JumpTarget >= origAddr+size {
			newInsnAddr := newBase + uint64(off)
			newRel := int32(int64(in.JumpTarget) - int64(newInsnAddr) - int64(in.Len))
			binary.LittleEndian.PutUint32(buf[off+in.Len-4:], uint32(newRel))
		}
	}
	if mode == insn.Mode64 && in.IsRIPRelative {
		newInsnAddr := newBase + uint64(off)
		newDisp := int32(int64(in.RIPTarget) - int64(newInsnAddr) - int64(in.Len))
		dispOff := off + in.Len - in.ImmSize - 4
		binary.LittleEndian.PutUint32(buf[dispOff:], uint32(newDisp))
	}
}
