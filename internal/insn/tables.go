package insn

// variant identifies which mandatory-prefix-selected form of an escape or
// group table entry applies, per the "last-prefix" rule in §4.1: 66, F2 and
// F3 select distinct instructions for the same opcode byte(s); absence of
// any of them selects the default entry.
type variant int

const (
	variantNone variant = iota
	variant66
	variantF2
	variantF3
)

// immKind describes how to size an instruction's immediate operand.
type immKind int

const (
	immNone  immKind = iota
	imm8             // always 1 byte (sign or zero extended depending on use)
	imm16            // always 2 bytes
	imm32            // always 4 bytes
	imm64            // always 8 bytes
	immOpSz          // operand-size dependent: 2 bytes if 16-bit, else 4
	immOpSzOr64      // operand-size dependent, but imm64 iff REX.W set (MOV r64, imm64)
)

// opEntry is one row of an opcode attribute table: primary, escape (0F /
// 0F38 / 0F3A) or group (ModRM.REG expansion).
type opEntry struct {
	mnemonic string
	hasModRM bool
	imm      immKind

	kind     Kind
	stringOp StringOpWidth
	barrier  BarrierKind
	lockable bool

	// access classifies how this entry's memory operand (if any) is
	// touched, for the per-event memory notifications a Common block's
	// tracked accesses generate. AccessNone (the zero value) on an entry
	// that has no memory operand at all is harmless; on one that does
	// (LEA) it marks the access as untracked.
	access AccessKind
	// fixedAccessSize overrides the operand-size-derived access width, in
	// bytes: set for an always-byte encoding (Eb forms) or for MOVZX/
	// MOVSX, whose source operand is narrower than the instruction's own
	// operand size. 0 means derive the width from OperandSize.
	fixedAccessSize int

	// fixedRegs lists GP registers referenced by the instruction encoding
	// itself, independent of any ModRM operand (e.g. string op SI/DI/CX,
	// IN/OUT AL/eAX/DX, shift-by-CL).
	fixedRegs []Reg

	// variants, when non-nil, maps a mandatory-prefix variant to the
	// actual entry to use; the table itself is consulted only when no
	// variant entry is found for the decoded prefix state (or fallthrough
	// to the entry's own fields when variants is nil).
	variants map[variant]*opEntry

	// group, when non-nil, selects the real entry via ModRM.Reg (and,
	// for a handful of x87/SSE-management opcodes, ModRM.Mod).
	group *groupTable
}

// groupTable expands an opcode whose meaning depends on ModRM.REG (0-7).
// regMod11, when non-nil, overrides the selection for entries that differ
// between register-direct (Mod==3) and memory (Mod!=3) forms of the same
// REG value (used for the 0F AE fence/CLFLUSH group).
type groupTable struct {
	byReg    [8]*opEntry
	regMod11 map[uint8]*opEntry // reg -> entry, used only when ModRM.Mod == 3
}

func (g *groupTable) resolve(reg uint8, mod uint8) *opEntry {
	if mod == 3 && g.regMod11 != nil {
		if e, ok := g.regMod11[reg]; ok {
			return e
		}
	}
	return g.byReg[reg]
}

var primaryTable [256]*opEntry
var escape0F [256]*opEntry

func e(mnemonic string, hasModRM bool, imm immKind, access AccessKind) *opEntry {
	return &opEntry{mnemonic: mnemonic, hasModRM: hasModRM, imm: imm, kind: KindNormal, access: access}
}

// aluFamily fills in the 6 standard encodings shared by ADD/OR/ADC/SBB/AND/
// SUB/XOR/CMP: Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev / AL,Ib / eAX,Iz. The r/m
// operand (destination in the +0/+1 forms) is read-modify-write for every
// member except CMP, which only ever reads it.
func aluFamily(base byte, mnemonic string, lockable bool) {
	rmAccess := AccessUpdate
	if mnemonic == "cmp" {
		rmAccess = AccessRead
	}
	primaryTable[base+0] = &opEntry{mnemonic: mnemonic, hasModRM: true, kind: KindNormal, lockable: lockable, access: rmAccess, fixedAccessSize: 1}
	primaryTable[base+1] = &opEntry{mnemonic: mnemonic, hasModRM: true, kind: KindNormal, lockable: lockable, access: rmAccess}
	primaryTable[base+2] = &opEntry{mnemonic: mnemonic, hasModRM: true, kind: KindNormal, access: AccessRead, fixedAccessSize: 1}
	primaryTable[base+3] = &opEntry{mnemonic: mnemonic, hasModRM: true, kind: KindNormal, access: AccessRead}
	primaryTable[base+4] = &opEntry{mnemonic: mnemonic, hasModRM: false, imm: imm8, kind: KindNormal, fixedRegs: []Reg{RegAX}}
	primaryTable[base+5] = &opEntry{mnemonic: mnemonic, hasModRM: false, imm: immOpSz, kind: KindNormal, fixedRegs: []Reg{RegAX}}
}

func init() {
	aluFamily(0x00, "add", true)
	aluFamily(0x08, "or", true)
	aluFamily(0x10, "adc", true)
	aluFamily(0x18, "sbb", true)
	aluFamily(0x20, "and", true)
	aluFamily(0x28, "sub", true)
	aluFamily(0x30, "xor", true)
	aluFamily(0x38, "cmp", false)

	for i := byte(0); i < 8; i++ {
		primaryTable[0x50+i] = &opEntry{mnemonic: "push", hasModRM: false, fixedRegs: []Reg{Reg(i)}}
		primaryTable[0x58+i] = &opEntry{mnemonic: "pop", hasModRM: false, fixedRegs: []Reg{Reg(i)}}
	}

	primaryTable[0x60] = &opEntry{mnemonic: "pusha", kind: KindPushA}
	primaryTable[0x61] = &opEntry{mnemonic: "popa", kind: KindPopA}
	primaryTable[0x63] = e("movsxd", true, immNone, AccessRead)

	primaryTable[0x68] = &opEntry{mnemonic: "push", imm: imm32}
	primaryTable[0x69] = &opEntry{mnemonic: "imul", hasModRM: true, imm: immOpSz, access: AccessRead}
	primaryTable[0x6A] = &opEntry{mnemonic: "push", imm: imm8}
	primaryTable[0x6B] = &opEntry{mnemonic: "imul", hasModRM: true, imm: imm8, access: AccessRead}

	for i := byte(0); i < 16; i++ {
		primaryTable[0x70+i] = &opEntry{mnemonic: "jcc", kind: KindJccRel8, imm: imm8}
	}

	group1 := [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}
	g80 := &groupTable{}
	g81 := &groupTable{}
	g83 := &groupTable{}
	for i, m := range group1 {
		lockable := m != "cmp"
		rmAccess := AccessUpdate
		if m == "cmp" {
			rmAccess = AccessRead
		}
		g80.byReg[i] = &opEntry{mnemonic: m, hasModRM: true, imm: imm8, lockable: lockable, access: rmAccess, fixedAccessSize: 1}
		g81.byReg[i] = &opEntry{mnemonic: m, hasModRM: true, imm: immOpSz, lockable: lockable, access: rmAccess}
		g83.byReg[i] = &opEntry{mnemonic: m, hasModRM: true, imm: imm8, lockable: lockable, access: rmAccess}
	}
	primaryTable[0x80] = &opEntry{hasModRM: true, group: g80}
	primaryTable[0x81] = &opEntry{hasModRM: true, group: g81}
	primaryTable[0x83] = &opEntry{hasModRM: true, group: g83}

	primaryTable[0x84] = e("test", true, immNone, AccessRead)
	primaryTable[0x84].fixedAccessSize = 1
	primaryTable[0x85] = e("test", true, immNone, AccessRead)
	primaryTable[0x86] = &opEntry{mnemonic: "xchg", hasModRM: true, lockable: true, access: AccessUpdate, fixedAccessSize: 1}
	primaryTable[0x87] = &opEntry{mnemonic: "xchg", hasModRM: true, lockable: true, access: AccessUpdate}
	primaryTable[0x88] = e("mov", true, immNone, AccessWrite)
	primaryTable[0x88].fixedAccessSize = 1
	primaryTable[0x89] = e("mov", true, immNone, AccessWrite)
	primaryTable[0x8A] = e("mov", true, immNone, AccessRead)
	primaryTable[0x8A].fixedAccessSize = 1
	primaryTable[0x8B] = e("mov", true, immNone, AccessRead)
	primaryTable[0x8D] = e("lea", true, immNone, AccessNone)

	g8F := &groupTable{}
	g8F.byReg[0] = e("pop", true, immNone, AccessWrite)
	primaryTable[0x8F] = &opEntry{hasModRM: true, group: g8F}

	primaryTable[0x90] = &opEntry{mnemonic: "nop", kind: KindNop}
	primaryTable[0x98] = &opEntry{mnemonic: "cwde"}
	primaryTable[0x99] = &opEntry{mnemonic: "cdq"}
	primaryTable[0x9C] = &opEntry{mnemonic: "pushf"}
	primaryTable[0x9D] = &opEntry{mnemonic: "popf"}

	primaryTable[0xA8] = &opEntry{mnemonic: "test", imm: imm8, fixedRegs: []Reg{RegAX}}
	primaryTable[0xA9] = &opEntry{mnemonic: "test", imm: immOpSz, fixedRegs: []Reg{RegAX}}

	primaryTable[0xA4] = &opEntry{mnemonic: "movsb", kind: KindStringOp, stringOp: StringOpXY, fixedRegs: []Reg{RegSI, RegDI, RegCX}, access: AccessUpdate, fixedAccessSize: 1}
	primaryTable[0xA5] = &opEntry{mnemonic: "movs", kind: KindStringOp, stringOp: StringOpXY, fixedRegs: []Reg{RegSI, RegDI, RegCX}, access: AccessUpdate}
	primaryTable[0xA6] = &opEntry{mnemonic: "cmpsb", kind: KindStringOp, stringOp: StringOpXY, fixedRegs: []Reg{RegSI, RegDI, RegCX}, access: AccessRead, fixedAccessSize: 1}
	primaryTable[0xA7] = &opEntry{mnemonic: "cmps", kind: KindStringOp, stringOp: StringOpXY, fixedRegs: []Reg{RegSI, RegDI, RegCX}, access: AccessRead}
	primaryTable[0xAA] = &opEntry{mnemonic: "stosb", kind: KindStringOp, stringOp: StringOpX, fixedRegs: []Reg{RegAX, RegDI, RegCX}, access: AccessWrite, fixedAccessSize: 1}
	primaryTable[0xAB] = &opEntry{mnemonic: "stos", kind: KindStringOp, stringOp: StringOpX, fixedRegs: []Reg{RegAX, RegDI, RegCX}, access: AccessWrite}
	primaryTable[0xAC] = &opEntry{mnemonic: "lodsb", kind: KindStringOp, stringOp: StringOpY, fixedRegs: []Reg{RegAX, RegSI, RegCX}, access: AccessRead, fixedAccessSize: 1}
	primaryTable[0xAD] = &opEntry{mnemonic: "lods", kind: KindStringOp, stringOp: StringOpY, fixedRegs: []Reg{RegAX, RegSI, RegCX}, access: AccessRead}
	primaryTable[0xAE] = &opEntry{mnemonic: "scasb", kind: KindStringOp, stringOp: StringOpX, fixedRegs: []Reg{RegAX, RegDI, RegCX}, access: AccessRead, fixedAccessSize: 1}
	primaryTable[0xAF] = &opEntry{mnemonic: "scas", kind: KindStringOp, stringOp: StringOpX, fixedRegs: []Reg{RegAX, RegDI, RegCX}, access: AccessRead}

	for i := byte(0); i < 8; i++ {
		primaryTable[0xB0+i] = &opEntry{mnemonic: "mov", imm: imm8, fixedRegs: []Reg{Reg(i)}}
		primaryTable[0xB8+i] = &opEntry{mnemonic: "mov", imm: immOpSzOr64, fixedRegs: []Reg{Reg(i)}}
	}

	gShift := func() *groupTable {
		g := &groupTable{}
		names := [8]string{"rol", "ror", "rcl", "rcr", "shl", "shr", "sal", "sar"}
		for i, m := range names {
			g.byReg[i] = &opEntry{mnemonic: m, hasModRM: true, access: AccessUpdate}
		}
		return g
	}
	gC0 := gShift()
	for i := range gC0.byReg {
		gC0.byReg[i].imm = imm8
		gC0.byReg[i].fixedAccessSize = 1
	}
	gC1 := gShift()
	for i := range gC1.byReg {
		gC1.byReg[i].imm = imm8
	}
	gD0 := gShift()
	for i := range gD0.byReg {
		gD0.byReg[i].fixedAccessSize = 1
	}
	gD1 := gShift()
	gD2 := gShift()
	for i := range gD2.byReg {
		gD2.byReg[i].fixedRegs = []Reg{RegCX}
		gD2.byReg[i].fixedAccessSize = 1
	}
	gD3 := gShift()
	for i := range gD3.byReg {
		gD3.byReg[i].fixedRegs = []Reg{RegCX}
	}
	primaryTable[0xC0] = &opEntry{hasModRM: true, group: gC0}
	primaryTable[0xC1] = &opEntry{hasModRM: true, group: gC1}
	primaryTable[0xD0] = &opEntry{hasModRM: true, group: gD0}
	primaryTable[0xD1] = &opEntry{hasModRM: true, group: gD1}
	primaryTable[0xD2] = &opEntry{hasModRM: true, group: gD2}
	primaryTable[0xD3] = &opEntry{hasModRM: true, group: gD3}

	primaryTable[0xC2] = &opEntry{mnemonic: "ret", kind: KindRet, imm: imm16}
	primaryTable[0xC3] = &opEntry{mnemonic: "ret", kind: KindRet}

	gC6 := &groupTable{}
	gC6.byReg[0] = &opEntry{mnemonic: "mov", hasModRM: true, imm: imm8, access: AccessWrite, fixedAccessSize: 1}
	gC7 := &groupTable{}
	gC7.byReg[0] = &opEntry{mnemonic: "mov", hasModRM: true, imm: immOpSz, access: AccessWrite}
	primaryTable[0xC6] = &opEntry{hasModRM: true, group: gC6}
	primaryTable[0xC7] = &opEntry{hasModRM: true, group: gC7}

	primaryTable[0xC9] = &opEntry{mnemonic: "leave"}
	primaryTable[0xCC] = &opEntry{mnemonic: "int3"}
	primaryTable[0xCD] = &opEntry{mnemonic: "int", imm: imm8}
	primaryTable[0xCF] = &opEntry{mnemonic: "iret", kind: KindIRet}

	primaryTable[0xE0] = &opEntry{mnemonic: "loopne", kind: KindJcxzLoop, imm: imm8, fixedRegs: []Reg{RegCX}}
	primaryTable[0xE1] = &opEntry{mnemonic: "loope", kind: KindJcxzLoop, imm: imm8, fixedRegs: []Reg{RegCX}}
	primaryTable[0xE2] = &opEntry{mnemonic: "loop", kind: KindJcxzLoop, imm: imm8, fixedRegs: []Reg{RegCX}}
	primaryTable[0xE3] = &opEntry{mnemonic: "jcxz", kind: KindJcxzLoop, imm: imm8, fixedRegs: []Reg{RegCX}}

	primaryTable[0xE4] = &opEntry{mnemonic: "in", imm: imm8, kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX}}
	primaryTable[0xE5] = &opEntry{mnemonic: "in", imm: imm8, kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX}}
	primaryTable[0xE6] = &opEntry{mnemonic: "out", imm: imm8, kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX}}
	primaryTable[0xE7] = &opEntry{mnemonic: "out", imm: imm8, kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX}}
	primaryTable[0xEC] = &opEntry{mnemonic: "in", kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX, RegDX}}
	primaryTable[0xED] = &opEntry{mnemonic: "in", kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX, RegDX}}
	primaryTable[0xEE] = &opEntry{mnemonic: "out", kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX, RegDX}}
	primaryTable[0xEF] = &opEntry{mnemonic: "out", kind: KindBarrier, barrier: BarrierFull, fixedRegs: []Reg{RegAX, RegDX}}

	primaryTable[0x6C] = &opEntry{mnemonic: "insb", kind: KindIOOp, fixedRegs: []Reg{RegDX, RegDI, RegCX}}
	primaryTable[0x6D] = &opEntry{mnemonic: "ins", kind: KindIOOp, fixedRegs: []Reg{RegDX, RegDI, RegCX}}
	primaryTable[0x6E] = &opEntry{mnemonic: "outsb", kind: KindIOOp, fixedRegs: []Reg{RegDX, RegSI, RegCX}}
	primaryTable[0x6F] = &opEntry{mnemonic: "outs", kind: KindIOOp, fixedRegs: []Reg{RegDX, RegSI, RegCX}}

	primaryTable[0xE8] = &opEntry{mnemonic: "call", kind: KindCallRel32, imm: imm32}
	primaryTable[0xE9] = &opEntry{mnemonic: "jmp", kind: KindJumpRel32, imm: imm32}
	primaryTable[0xEB] = &opEntry{mnemonic: "jmp", kind: KindJumpRel8, imm: imm8}

	primaryTable[0xF4] = &opEntry{mnemonic: "hlt"}
	primaryTable[0xF5] = &opEntry{mnemonic: "cmc"}

	g3 := &groupTable{}
	g3.byReg[0] = &opEntry{mnemonic: "test", hasModRM: true, imm: imm8, access: AccessRead, fixedAccessSize: 1}
	g3.byReg[1] = &opEntry{mnemonic: "test", hasModRM: true, imm: imm8, access: AccessRead, fixedAccessSize: 1}
	g3.byReg[2] = &opEntry{mnemonic: "not", hasModRM: true, lockable: true, access: AccessUpdate, fixedAccessSize: 1}
	g3.byReg[3] = &opEntry{mnemonic: "neg", hasModRM: true, lockable: true, access: AccessUpdate, fixedAccessSize: 1}
	g3.byReg[4] = &opEntry{mnemonic: "mul", hasModRM: true, access: AccessRead, fixedAccessSize: 1}
	g3.byReg[5] = &opEntry{mnemonic: "imul", hasModRM: true, access: AccessRead, fixedAccessSize: 1}
	g3.byReg[6] = &opEntry{mnemonic: "div", hasModRM: true, access: AccessRead, fixedAccessSize: 1}
	g3.byReg[7] = &opEntry{mnemonic: "idiv", hasModRM: true, access: AccessRead, fixedAccessSize: 1}
	g3w := &groupTable{}
	g3w.byReg[0] = &opEntry{mnemonic: "test", hasModRM: true, imm: immOpSz, access: AccessRead}
	g3w.byReg[1] = &opEntry{mnemonic: "test", hasModRM: true, imm: immOpSz, access: AccessRead}
	g3w.byReg[2] = &opEntry{mnemonic: "not", hasModRM: true, lockable: true, access: AccessUpdate}
	g3w.byReg[3] = &opEntry{mnemonic: "neg", hasModRM: true, lockable: true, access: AccessUpdate}
	g3w.byReg[4] = &opEntry{mnemonic: "mul", hasModRM: true, access: AccessRead}
	g3w.byReg[5] = &opEntry{mnemonic: "imul", hasModRM: true, access: AccessRead}
	g3w.byReg[6] = &opEntry{mnemonic: "div", hasModRM: true, access: AccessRead}
	g3w.byReg[7] = &opEntry{mnemonic: "idiv", hasModRM: true, access: AccessRead}
	primaryTable[0xF6] = &opEntry{hasModRM: true, group: g3}
	primaryTable[0xF7] = &opEntry{hasModRM: true, group: g3w}

	primaryTable[0xF8] = &opEntry{mnemonic: "clc"}
	primaryTable[0xF9] = &opEntry{mnemonic: "stc"}
	primaryTable[0xFA] = &opEntry{mnemonic: "cli"}
	primaryTable[0xFB] = &opEntry{mnemonic: "sti"}
	primaryTable[0xFC] = &opEntry{mnemonic: "cld"}
	primaryTable[0xFD] = &opEntry{mnemonic: "std"}

	g4 := &groupTable{}
	g4.byReg[0] = &opEntry{mnemonic: "inc", hasModRM: true, lockable: true, access: AccessUpdate, fixedAccessSize: 1}
	g4.byReg[1] = &opEntry{mnemonic: "dec", hasModRM: true, lockable: true, access: AccessUpdate, fixedAccessSize: 1}
	primaryTable[0xFE] = &opEntry{hasModRM: true, group: g4}

	g5 := &groupTable{}
	g5.byReg[0] = &opEntry{mnemonic: "inc", hasModRM: true, lockable: true, access: AccessUpdate}
	g5.byReg[1] = &opEntry{mnemonic: "dec", hasModRM: true, lockable: true, access: AccessUpdate}
	g5.byReg[2] = &opEntry{mnemonic: "call", hasModRM: true, kind: KindCallIndirect}
	g5.byReg[3] = &opEntry{mnemonic: "callf", hasModRM: true, kind: KindCallFar}
	g5.byReg[4] = &opEntry{mnemonic: "jmp", hasModRM: true, kind: KindJmpIndirect}
	g5.byReg[5] = &opEntry{mnemonic: "jmpf", hasModRM: true, kind: KindJmpFar}
	g5.byReg[6] = &opEntry{mnemonic: "push", hasModRM: true, access: AccessRead}
	primaryTable[0xFF] = &opEntry{hasModRM: true, group: g5}

	initEscape0F()
}

func initEscape0F() {
	escape0F[0x00] = &opEntry{mnemonic: "sldt/str/...", hasModRM: true}
	escape0F[0x01] = &opEntry{mnemonic: "invlpg/sgdt/...", hasModRM: true, kind: KindBarrier, barrier: BarrierFull}
	escape0F[0x05] = &opEntry{mnemonic: "syscall"}
	escape0F[0x08] = &opEntry{mnemonic: "invd", kind: KindBarrier, barrier: BarrierFull}
	escape0F[0x09] = &opEntry{mnemonic: "wbinvd", kind: KindBarrier, barrier: BarrierFull}
	escape0F[0x0B] = &opEntry{mnemonic: "ud2", kind: KindUD2}
	escape0F[0x1F] = &opEntry{mnemonic: "nop", hasModRM: true, kind: KindNop}

	escape0F[0x20] = &opEntry{mnemonic: "mov", hasModRM: true, kind: KindBarrier, barrier: BarrierFull}
	escape0F[0x21] = &opEntry{mnemonic: "mov", hasModRM: true, kind: KindBarrier, barrier: BarrierFull}
	escape0F[0x22] = &opEntry{mnemonic: "mov", hasModRM: true, kind: KindBarrier, barrier: BarrierFull}
	escape0F[0x23] = &opEntry{mnemonic: "mov", hasModRM: true, kind: KindBarrier, barrier: BarrierFull}

	escape0F[0xA2] = &opEntry{mnemonic: "cpuid", kind: KindBarrier, barrier: BarrierFull}

	escape0F[0xB6] = &opEntry{mnemonic: "movzx", hasModRM: true, access: AccessRead, fixedAccessSize: 1}
	escape0F[0xB7] = &opEntry{mnemonic: "movzx", hasModRM: true, access: AccessRead, fixedAccessSize: 2}
	escape0F[0xBE] = &opEntry{mnemonic: "movsx", hasModRM: true, access: AccessRead, fixedAccessSize: 1}
	escape0F[0xBF] = &opEntry{mnemonic: "movsx", hasModRM: true, access: AccessRead, fixedAccessSize: 2}

	for i := byte(0); i < 16; i++ {
		escape0F[0x80+i] = &opEntry{mnemonic: "jcc", kind: KindJccRel32, imm: imm32}
	}

	gAE := &groupTable{regMod11: map[uint8]*opEntry{}}
	gAE.byReg[0] = &opEntry{mnemonic: "fxsave", hasModRM: true}
	gAE.byReg[1] = &opEntry{mnemonic: "fxrstor", hasModRM: true}
	gAE.byReg[2] = &opEntry{mnemonic: "ldmxcsr", hasModRM: true}
	gAE.byReg[3] = &opEntry{mnemonic: "stmxcsr", hasModRM: true}
	gAE.byReg[4] = &opEntry{mnemonic: "xsave", hasModRM: true}
	gAE.byReg[5] = &opEntry{mnemonic: "lfence", hasModRM: true}
	gAE.byReg[6] = &opEntry{mnemonic: "mfence", hasModRM: true}
	gAE.byReg[7] = &opEntry{mnemonic: "clflush", hasModRM: true}
	gAE.regMod11[5] = &opEntry{mnemonic: "lfence", hasModRM: true, kind: KindBarrier, barrier: BarrierLoad}
	gAE.regMod11[6] = &opEntry{mnemonic: "mfence", hasModRM: true, kind: KindBarrier, barrier: BarrierFull}
	gAE.regMod11[7] = &opEntry{mnemonic: "sfence", hasModRM: true, kind: KindBarrier, barrier: BarrierStore}
	escape0F[0xAE] = &opEntry{hasModRM: true, group: gAE}
}

// lookupPrimary resolves a primary opcode byte to its table entry.
func lookupPrimary(op byte) *opEntry { return primaryTable[op] }

// lookupEscape0F resolves a 0F xx opcode byte to its table entry.
func lookupEscape0F(op byte) *opEntry { return escape0F[op] }
