// Package transform implements the two IR transformation phases (§4.7,
// §4.8): inserting the entry prologue, exit epilogues, call/jump thunks
// and PUSHAD/POPAD fixups of phase 1, then the memory-event capture and
// locked-op/I/O/barrier wrapper calls of phase 2.
package transform

import (
	"encoding/binary"
	"fmt"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

// rexW/rexB/rexR/rexX bits, REX.W always set here since every synthesized
// sequence runs in 64-bit mode once on an x86-64 target; on 32-bit targets
// encode64 is never reached (see mode guards in transform.go).
const (
	rexBase = 0x40
	rexW    = 0x08
	rexR    = 0x04
	rexX    = 0x02
	rexB    = 0x01
)

// regLow3 returns the ModRM/opcode-extension low 3 bits of a register
// number, and whether REX.B/R must be set for registers 8-15.
func regLow3(r insn.Reg) (byte, bool) { return byte(r) & 7, r >= 8 }

// encMovRegReg encodes "mov src, dst" (64-bit).
func encMovRegReg(src, dst insn.Reg) []byte {
	sLow, sExt := regLow3(src)
	dLow, dExt := regLow3(dst)
	rex := byte(rexBase | rexW)
	if sExt {
		rex |= rexR
	}
	if dExt {
		rex |= rexB
	}
	modrm := 0xC0 | sLow<<3 | dLow
	return []byte{rex, 0x89, modrm}
}

// encLoadMem encodes "mov disp32(base), dst".
func encLoadMem(base insn.Reg, disp int32, dst insn.Reg) []byte {
	bLow, bExt := regLow3(base)
	dLow, dExt := regLow3(dst)
	rex := byte(rexBase | rexW)
	if dExt {
		rex |= rexR
	}
	if bExt {
		rex |= rexB
	}
	modrm := 0x80 | dLow<<3 | bLow
	buf := []byte{rex, 0x8B, modrm}
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(disp))
	return append(buf, d[:]...)
}

// encStoreMem encodes "mov src, disp32(base)".
func encStoreMem(src insn.Reg, base insn.Reg, disp int32) []byte {
	bLow, bExt := regLow3(base)
	sLow, sExt := regLow3(src)
	rex := byte(rexBase | rexW)
	if sExt {
		rex |= rexR
	}
	if bExt {
		rex |= rexB
	}
	modrm := 0x80 | sLow<<3 | bLow
	buf := []byte{rex, 0x89, modrm}
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(disp))
	return append(buf, d[:]...)
}

// encMovImm32 encodes "mov $imm32, dst" (sign-extended into the 64-bit
// register, matching §4.7's "mov imm32(original_func_addr), %eax").
func encMovImm32(imm int32, dst insn.Reg) []byte {
	dLow, dExt := regLow3(dst)
	rex := byte(rexBase | rexW)
	if dExt {
		rex |= rexB
	}
	modrm := 0xC0 | dLow
	buf := []byte{rex, 0xC7, modrm}
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(imm))
	return append(buf, d[:]...)
}

func encPushReg(r insn.Reg) []byte {
	low, ext := regLow3(r)
	if ext {
		return []byte{rexBase | rexB, 0x50 | low}
	}
	return []byte{0x50 | low}
}

func encPopReg(r insn.Reg) []byte {
	low, ext := regLow3(r)
	if ext {
		return []byte{rexBase | rexB, 0x58 | low}
	}
	return []byte{0x58 | low}
}

func encTestRegReg(r insn.Reg) []byte {
	low, ext := regLow3(r)
	rex := byte(rexBase | rexW)
	if ext {
		rex |= rexR | rexB
	}
	modrm := 0xC0 | low<<3 | low
	return []byte{rex, 0x85, modrm}
}

func encRet() []byte { return []byte{0xC3} }

// effectiveAddrBytes reconstructs "lea <operand>, dst" from a decoded
// instruction's own memory operand: the ModRM/SIB/displacement bytes
// already computed by the decoder address exactly the same location a
// LEA of that operand would, so this slices them straight out of the
// instruction's raw encoding (dropping any trailing immediate) and
// re-emits them behind a fresh 0x8D opcode with ModRM.reg repointed at
// dst, the same substitution loadTarget applies for indirect call/jmp
// targets. Any address-size (0x67) override on the original is carried
// over; segment overrides are not (no tracked instruction in practice
// needs one addressed outside the default segment).
func effectiveAddrBytes(in *insn.Inst, mode insn.Mode, dst insn.Reg) ([]byte, error) {
	if !in.ModRM.Present || in.ModRM.Mod == 3 {
		return nil, fmt.Errorf("transform: instruction at 0x%x has no memory operand to address", in.Addr)
	}
	tail := 1 // ModRM
	if in.SIB.Present {
		tail++
	}
	tail += in.DispSize
	raw := in.Bytes()
	end := len(raw) - in.ImmSize
	start := end - tail
	if start < 0 || end > len(raw) {
		return nil, fmt.Errorf("transform: malformed memory operand at 0x%x", in.Addr)
	}
	addr := append([]byte(nil), raw[start:end]...)

	dLow, dExt := regLow3(dst)
	addr[0] = addr[0]&0xC7 | dLow<<3

	var out []byte
	if in.Prefixes.AddrSize {
		out = append(out, 0x67)
	}
	if mode == insn.Mode64 {
		rex := byte(rexBase | rexW)
		if dExt {
			rex |= rexR
		}
		if in.REX.X {
			rex |= rexX
		}
		if in.REX.B {
			rex |= rexB
		}
		out = append(out, rex)
	}
	out = append(out, 0x8D)
	out = append(out, addr...)
	return out, nil
}

// encCallRel32/encJmpRel32 emit placeholder rel32 forms (operand zeroed);
// the emitter fills the real displacement once offsets are final, the
// same two-pass shape as §4.9's fix-point loop.
func encCallRel32() []byte { return []byte{0xE8, 0, 0, 0, 0} }
func encJmpRel32() []byte  { return []byte{0xE9, 0, 0, 0, 0} }
func encJmpRel8() []byte   { return []byte{0xEB, 0} }

// encJccRel32 encodes a Jcc with the given condition code (0x0-0xF,
// matching the low nibble of 0F 8x).
func encJccRel32(cc byte) []byte { return []byte{0x0F, 0x80 | cc&0xF, 0, 0, 0, 0} }

const ccNZ = 0x5 // JNZ/JNE

// add appends a synthesized instruction after "after", decoding its bytes
// so the node carries a real insn.Inst (kind, register masks) the way the
// original's kedr_mk_* helpers decode what they just generated. addr is a
// placeholder; the emitter's layout pass is the authority on final
// addresses and does not consult Inst.Addr for added nodes.
func add(f *ir.Func, after ir.NodeID, mode insn.Mode, code []byte) ir.NodeID {
	in, err := insn.Decode(code, 0, mode)
	if err != nil {
		// Every sequence synthesized here is a fixed, hand-verified
		// encoding; a decode failure means a bug in this package, not
		// malformed target input.
		panic("transform: synthesized sequence failed to decode: " + err.Error())
	}
	return f.Arena.InsertAfter(after, ir.Node{Inst: in})
}
