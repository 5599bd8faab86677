package insn

// Kind classifies an instruction for the purposes of the rest of the
// pipeline: whether it transfers control, whether it is a candidate for
// a block boundary, etc. It mirrors the instruction groups enumerated in
// the block-splitting rules.
type Kind int

const (
	KindNormal Kind = iota
	KindJumpRel8
	KindJumpRel32
	KindJccRel8
	KindJccRel32
	KindJcxzLoop // JCXZ, LOOP, LOOPE, LOOPNE
	KindCallRel32
	KindCallIndirect  // CALL r/m
	KindJmpIndirect   // JMP r/m (near, through ModRM)
	KindCallFar
	KindJmpFar
	KindRet
	KindIRet
	KindUD2
	KindPushA
	KindPopA
	KindLockableGroup // instructions that support the LOCK prefix (or XCHG mem,reg)
	KindStringOp
	KindIOOp   // INS/OUTS (memory-accessing port I/O)
	KindBarrier // *FENCE, IN/OUT, INVD, WBINVD, INVLPG, CPUID, MOV to/from CR*/DR*
	KindNop
)

// StringOpWidth classifies a string instruction by how many memory operands
// (and therefore value slots) it touches: type X (one operand, e.g. STOS,
// SCAS), type Y (one operand, e.g. LODS), or type XY (two operands, e.g.
// MOVS, CMPS).
type StringOpWidth int

const (
	StringOpNone StringOpWidth = iota
	StringOpX
	StringOpY
	StringOpXY
)

// BarrierKind classifies a memory barrier instruction.
type BarrierKind int

const (
	BarrierNone BarrierKind = iota
	BarrierFull
	BarrierLoad
	BarrierStore
)

// AccessKind classifies how an instruction touches its memory operand, for
// the per-event (pc, addr, size, type) notifications a Common block's
// tracked accesses generate (§3/§4.5/§4.11). AccessNone marks an
// instruction that carries a ModRM memory form but never actually
// dereferences it (LEA): such an instruction is not a tracked access.
type AccessKind int

const (
	AccessNone AccessKind = iota
	AccessRead
	AccessWrite
	AccessUpdate // read-modify-write, e.g. ADD [mem], reg
)

// Prefixes records the legacy prefix bytes seen ahead of an instruction.
type Prefixes struct {
	Lock     bool // 0xF0
	RepNE    bool // 0xF2
	Rep      bool // 0xF3
	OpSize   bool // 0x66
	AddrSize bool // 0x67
	Seg      byte // segment-override byte, 0 if none
}

// lastMandatory returns which of 66/F2/F3 was seen last among the legacy
// prefix bytes, for the "last-prefix" escape/group table lookup rule. Since
// this decoder reads prefixes as a contiguous run before the opcode and does
// not track arrival order beyond presence, REPNE/REP win over 66 when both
// are present (matching the common case of F2/F3 0F xx encodings), and 66
// wins over neither.
func (p Prefixes) lastMandatory() variant {
	switch {
	case p.RepNE:
		return variantF2
	case p.Rep:
		return variantF3
	case p.OpSize:
		return variant66
	default:
		return variantNone
	}
}

// REX records the REX prefix byte, present only in 64-bit mode.
type REX struct {
	Present bool
	W, R, X, B bool
}

// ModRM records a decoded ModRM byte.
type ModRM struct {
	Present bool
	Mod     uint8
	Reg     uint8 // extended by REX.R
	RM      uint8 // extended by REX.B; a register operand when Mod==3

	// NoBaseDisp32 is true for the Mod==0, RM==5 (no SIB) encoding: a
	// bare disp32 address with no base register in 32-bit mode, or a
	// RIP-relative address in 64-bit mode (see Inst.IsRIPRelative).
	NoBaseDisp32 bool
}

// SIB records a decoded SIB byte.
type SIB struct {
	Present      bool
	Scale        uint8
	Index        uint8 // extended by REX.X; meaningful only if IndexPresent
	IndexPresent bool  // false when the raw index field is 100b with REX.X clear ("no index")
	Base         uint8 // extended by REX.B; meaningful only if !NoBase
	NoBase       bool  // true when Mod==0 and the raw base field is 101b (disp32, no base register)
}

// Inst is the decoded representation of one instruction. It owns a private
// copy of the raw bytes so that no decoded view aliases any other buffer.
type Inst struct {
	raw [15]byte
	Len int

	Addr uint64 // absolute address the instruction was decoded from

	Prefixes Prefixes
	REX      REX

	OpcodeBytes [3]byte
	OpcodeLen   int

	Mnemonic string
	Kind     Kind
	Attr     *opEntry

	ModRM ModRM
	SIB   SIB

	DispSize int
	Disp     int32

	ImmSize int
	Imm     int64

	OperandSize int // 16, 32 or 64
	AddressSize int // 16, 32 or 64

	// RegUseMask has one bit set per GP register (0..15) referenced by the
	// instruction, in any operand position.
	RegUseMask uint16
	// AddrRegMask has one bit set per GP register appearing in the
	// addressing expression (ModRM.RM when it is a memory operand,
	// SIB.Index, SIB.Base).
	AddrRegMask uint16

	StringOp StringOpWidth
	Barrier  BarrierKind
	Access   AccessKind

	IsLocked bool // LOCK prefix present, or XCHG reg,mem
	IsNop    bool

	// JumpTarget is the absolute destination address of a direct
	// control-transfer instruction (CALL/JMP/Jcc rel8/rel32), or 0 if the
	// instruction does not transfer control directly or computes its
	// target (indirect).
	JumpTarget uint64

	// IsRIPRelative is true for 64-bit instructions whose ModRM encodes
	// RIP-relative addressing (Mod==0, RM==5).
	IsRIPRelative bool
	// RIPTarget is the absolute address computed from a RIP-relative
	// operand (valid only when IsRIPRelative is true): Addr + Len + Disp.
	RIPTarget uint64
}

// Bytes returns the raw encoded bytes of the instruction.
func (in *Inst) Bytes() []byte {
	return in.raw[:in.Len]
}

// HasModRM reports whether the instruction carries a ModRM byte.
func (in *Inst) HasModRM() bool { return in.ModRM.Present }

// IsMemOperand reports whether ModRM (if present) addresses memory rather
// than a register.
func (in *Inst) IsMemOperand() bool {
	return in.ModRM.Present && in.ModRM.Mod != 3
}

// AccessSize reports the byte width of the instruction's memory-operand
// access: 1 for a byte-only encoding or MOVZX/MOVSX's narrower source
// operand (both recorded on the table entry as fixedAccessSize, since
// neither follows the instruction's general operand size), otherwise
// derived from OperandSize.
func (in *Inst) AccessSize() int {
	if in.Attr != nil && in.Attr.fixedAccessSize != 0 {
		return in.Attr.fixedAccessSize
	}
	switch in.OperandSize {
	case 16:
		return 2
	case 64:
		return 8
	default:
		return 4
	}
}

// UsesAllGPRegs reports whether the instruction's register-use mask covers
// every general purpose register available in the given mode. Used by base
// register selection to detect instructions (other than PUSHAD/POPAD) that
// leave no register free.
func (in *Inst) UsesAllGPRegs(mode Mode) bool {
	var all uint16
	if mode == Mode64 {
		all = 0xffff
	} else {
		all = 0xff
	}
	return in.RegUseMask&all == all
}
