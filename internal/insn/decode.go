package insn

import (
	"encoding/binary"
	"fmt"
)

// DecodeError is returned when an instruction cannot be decoded: the
// opcode (or group/escape sub-opcode) is not present in the attribute
// tables, or the byte stream is truncated mid-instruction. The decoder
// never advances past the undecodable byte.
type DecodeError struct {
	Addr uint64
	Off  int
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("insn: decode error at addr 0x%x (byte %d): %s", e.Addr, e.Off, e.Msg)
}

const maxInsnLen = 15

// Decode decodes one instruction from the start of code, which is assumed
// to originate at the absolute address addr. mode selects 32- vs 64-bit
// semantics for REX, RIP-relative addressing and default operand size.
func Decode(code []byte, addr uint64, mode Mode) (*Inst, error) {
	in := &Inst{Addr: addr}
	pos := 0

	// 1. Legacy prefixes.
prefixLoop:
	for pos < len(code) {
		switch code[pos] {
		case 0xF0:
			in.Prefixes.Lock = true
		case 0xF2:
			in.Prefixes.RepNE = true
		case 0xF3:
			in.Prefixes.Rep = true
		case 0x66:
			in.Prefixes.OpSize = true
		case 0x67:
			in.Prefixes.AddrSize = true
		case 0x2E, 0x36, 0x3E, 0x26, 0x64, 0x65:
			in.Prefixes.Seg = code[pos]
		default:
			break prefixLoop
		}
		pos++
		if pos >= maxInsnLen {
			return nil, &DecodeError{addr, pos, "prefix run too long"}
		}
	}

	// 2. REX (64-bit mode only).
	if mode == Mode64 && pos < len(code) && code[pos]&0xF0 == 0x40 {
		b := code[pos]
		in.REX = REX{Present: true, W: b&8 != 0, R: b&4 != 0, X: b&2 != 0, B: b&1 != 0}
		pos++
	}

	if pos >= len(code) {
		return nil, &DecodeError{addr, pos, "truncated before opcode"}
	}

	// 3. Opcode + table lookup.
	var entry *opEntry
	first := code[pos]
	pos++
	if first == 0x0F {
		if pos >= len(code) {
			return nil, &DecodeError{addr, pos, "truncated 0F escape"}
		}
		second := code[pos]
		pos++
		in.OpcodeBytes[0], in.OpcodeBytes[1] = first, second
		in.OpcodeLen = 2
		entry = lookupEscape0F(second)
	} else {
		in.OpcodeBytes[0] = first
		in.OpcodeLen = 1
		entry = lookupPrimary(first)
	}
	if entry == nil {
		return nil, &DecodeError{addr, pos, "unrecognized opcode"}
	}

	// 4. Operand/address size.
	in.OperandSize = 32
	if in.Prefixes.OpSize {
		in.OperandSize = 16
	}
	if mode == Mode64 && in.REX.W {
		in.OperandSize = 64
	}
	if mode == Mode64 {
		in.AddressSize = 64
		if in.Prefixes.AddrSize {
			in.AddressSize = 32
		}
	} else {
		in.AddressSize = 32
		if in.Prefixes.AddrSize {
			in.AddressSize = 16
		}
	}

	// 5. ModRM / SIB / displacement, with group (ModRM.REG) resolution.
	if entry.hasModRM {
		if pos >= len(code) {
			return nil, &DecodeError{addr, pos, "truncated before modrm"}
		}
		mb := code[pos]
		pos++
		mod := mb >> 6 & 3
		regRaw := (mb >> 3) & 7
		rmRaw := mb & 7

		reg := regRaw
		if in.REX.R {
			reg += 8
		}
		in.ModRM = ModRM{Present: true, Mod: mod, Reg: reg, RM: rmRaw}

		if entry.group != nil {
			sub := entry.group.resolve(regRaw, mod)
			if sub == nil {
				return nil, &DecodeError{addr, pos, "unrecognized group sub-opcode"}
			}
			entry = sub
		}

		if mod != 3 {
			if rmRaw == 4 {
				if pos >= len(code) {
					return nil, &DecodeError{addr, pos, "truncated sib"}
				}
				sb := code[pos]
				pos++
				scale := sb >> 6 & 3
				idxRaw := (sb >> 3) & 7
				baseRaw := sb & 7

				sib := SIB{Present: true, Scale: scale}
				if idxRaw == 4 && !in.REX.X {
					sib.IndexPresent = false
				} else {
					sib.IndexPresent = true
					sib.Index = idxRaw
					if in.REX.X {
						sib.Index += 8
					}
				}
				if mod == 0 && baseRaw == 5 {
					sib.NoBase = true
					in.DispSize = 4
				} else {
					sib.Base = baseRaw
					if in.REX.B {
						sib.Base += 8
					}
				}
				in.SIB = sib
			} else if rmRaw == 5 && mod == 0 {
				in.ModRM.NoBaseDisp32 = true
				in.DispSize = 4
				if mode == Mode64 {
					in.IsRIPRelative = true
				}
			} else {
				in.ModRM.RM = rmRaw
				if in.REX.B {
					in.ModRM.RM = rmRaw + 8
				}
			}
			switch mod {
			case 1:
				in.DispSize = 1
			case 2:
				in.DispSize = 4
			}
		} else {
			in.ModRM.RM = rmRaw
			if in.REX.B {
				in.ModRM.RM = rmRaw + 8
			}
		}

		if in.DispSize > 0 {
			if pos+in.DispSize > len(code) {
				return nil, &DecodeError{addr, pos, "truncated displacement"}
			}
			switch in.DispSize {
			case 1:
				in.Disp = int32(int8(code[pos]))
			case 4:
				in.Disp = int32(binary.LittleEndian.Uint32(code[pos:]))
			}
			pos += in.DispSize
		}
	}

	// 6. Immediate.
	immSize := 0
	switch entry.imm {
	case imm8:
		immSize = 1
	case imm16:
		immSize = 2
	case imm32:
		immSize = 4
	case imm64:
		immSize = 8
	case immOpSz:
		if in.OperandSize == 16 {
			immSize = 2
		} else {
			immSize = 4
		}
	case immOpSzOr64:
		switch {
		case in.REX.W:
			immSize = 8
		case in.OperandSize == 16:
			immSize = 2
		default:
			immSize = 4
		}
	}
	if immSize > 0 {
		if pos+immSize > len(code) {
			return nil, &DecodeError{addr, pos, "truncated immediate"}
		}
		switch immSize {
		case 1:
			in.Imm = int64(int8(code[pos]))
		case 2:
			in.Imm = int64(int16(binary.LittleEndian.Uint16(code[pos:])))
		case 4:
			in.Imm = int64(int32(binary.LittleEndian.Uint32(code[pos:])))
		case 8:
			in.Imm = int64(binary.LittleEndian.Uint64(code[pos:]))
		}
		in.ImmSize = immSize
		pos += immSize
	}

	if pos == 0 || pos > maxInsnLen || pos > len(code) {
		return nil, &DecodeError{addr, pos, "zero-length or over-long instruction"}
	}

	in.Len = pos
	copy(in.raw[:], code[:pos])

	in.Mnemonic = entry.mnemonic
	in.Kind = entry.kind
	in.Attr = entry
	in.StringOp = entry.stringOp
	in.Barrier = entry.barrier
	in.Access = entry.access
	in.IsNop = entry.kind == KindNop
	in.IsLocked = (in.Prefixes.Lock && entry.lockable) ||
		(entry.mnemonic == "xchg" && in.ModRM.Present && in.ModRM.Mod != 3)

	computeRegMasks(in, entry)
	computeJumpTarget(in, mode)

	return in, nil
}

func addReg(mask *uint16, r uint8) { *mask |= 1 << uint(r&0xf) }

func computeRegMasks(in *Inst, entry *opEntry) {
	var use, addr uint16
	if in.ModRM.Present {
		addReg(&use, in.ModRM.Reg)
		if in.ModRM.Mod == 3 {
			addReg(&use, in.ModRM.RM)
		} else if in.SIB.Present {
			if !in.SIB.NoBase {
				addReg(&use, in.SIB.Base)
				addReg(&addr, in.SIB.Base)
			}
			if in.SIB.IndexPresent {
				addReg(&use, in.SIB.Index)
				addReg(&addr, in.SIB.Index)
			}
		} else if !in.ModRM.NoBaseDisp32 {
			addReg(&use, in.ModRM.RM)
			addReg(&addr, in.ModRM.RM)
		}
	}
	for _, r := range entry.fixedRegs {
		addReg(&use, uint8(r))
	}
	in.RegUseMask = use
	in.AddrRegMask = addr
}

func computeJumpTarget(in *Inst, mode Mode) {
	switch in.Kind {
	case KindJumpRel8, KindJccRel8, KindJcxzLoop, KindJumpRel32, KindJccRel32, KindCallRel32:
		in.JumpTarget = uint64(int64(in.Addr) + int64(in.Len) + in.Imm)
	}
	if in.IsRIPRelative && mode == Mode64 {
		in.RIPTarget = uint64(int64(in.Addr) + int64(in.Len) + int64(in.Disp))
		// An immediate may still follow the displacement for forms like
		// "cmpq $imm32, disp32(%rip)"; Len already accounts for it above,
		// so RIPTarget uses the final Len unconditionally. When the
		// instruction also reads an outward rel32 (call/jmp), JumpTarget
		// already captured that case above and RIPTarget is unused there.
	}
}

// IsIndirectJumpTableDispatch reports whether this instruction is the
// "jmp [disp32 + reg*scale]" form (FF /4, ModRM.Mod==0, SIB present with no
// base, an index register) that the IR builder treats as a jump-table
// dispatch site.
func (in *Inst) IsIndirectJumpTableDispatch() bool {
	return in.Kind == KindJmpIndirect && in.ModRM.Mod == 0 && in.SIB.Present &&
		in.SIB.NoBase && in.SIB.IndexPresent
}

// JumpTableDisp returns the disp32 operand of an indirect jump-table
// dispatch instruction (valid only when IsIndirectJumpTableDispatch is
// true).
func (in *Inst) JumpTableDisp() int32 { return in.Disp }
