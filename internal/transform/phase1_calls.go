package transform

import (
	"fmt"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

// loadTarget builds the byte sequence that evaluates an indirect
// CALL/JMP's r/m operand into wreg: both the register form ("call %reg",
// target == the register's value) and the memory form ("call m64",
// target == the qword at that address) are exactly what a MOV r/m->reg
// with the same ModRM/SIB/displacement computes, so this substitutes the
// FF /2 or FF /4 opcode byte for 0x8B and repoints ModRM.reg at wreg,
// leaving the rest of the original encoding — including any SIB and
// displacement — untouched.
func loadTarget(in *insn.Inst, wreg insn.Reg) ([]byte, error) {
	raw := append([]byte(nil), in.Bytes()...)
	modrmOff := -1
	for i, b := range raw {
		if b == 0xFF {
			modrmOff = i + 1
			break
		}
	}
	if modrmOff < 0 || modrmOff >= len(raw) {
		return nil, fmt.Errorf("transform: could not locate FF opcode byte in indirect call/jmp at 0x%x", in.Addr)
	}
	wLow, wExt := regLow3(wreg)
	if wExt && !in.REX.Present {
		return nil, fmt.Errorf("transform: indirect call/jmp at 0x%x has no REX byte to extend the work register into", in.Addr)
	}
	if in.REX.Present {
		for i := range raw {
			if raw[i]&0xF0 == 0x40 {
				if wExt {
					raw[i] |= rexR
				} else {
					raw[i] &^= rexR
				}
				break
			}
		}
	}
	raw[modrmOff-1] = 0x8B
	raw[modrmOff] = raw[modrmOff]&0xC7 | wLow<<3
	return raw, nil
}

// emitIndirectCallThunk implements §4.7's "Indirect call CALL *<expr>":
// evaluate the target into a work register, stash it plus the call
// descriptor address into local storage, call kedr_fill_call_info, then
// replace the original CALL with a CALL to the call thunk.
func emitIndirectCallThunk(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config) error {
	mode, base := cfg.Mode, cfg.BaseReg
	wreg, ok := pickWorkReg(n, base, mode)
	if !ok {
		return &RegisterError{f.Name, n.OrigAddr}
	}
	code, err := loadTarget(n.Inst, wreg)
	if err != nil {
		return err
	}

	insertBefore(f, id, mode, encPushReg(insn.RegAX))
	insertBefore(f, id, mode, code)
	insertBefore(f, id, mode, encStoreMem(wreg, base, int32(spillSlotOffset(base))))
	insertBefore(f, id, mode, encMovRegReg(base, insn.RegAX))
	fillID := insertBefore(f, id, mode, encCallRel32())
	f.Arena.Get(fillID).IPRelAddr = cfg.W.FillCallInfo
	insertBefore(f, id, mode, encPopReg(insn.RegAX))

	replaceWithThunkCall(f, id, cfg.W.CallThunk)
	return nil
}

// emitIndirectJumpOutward implements "Indirect outward JMP *<expr>": same
// preamble as the call case, but the original becomes a JMP to the jump
// thunk, which additionally restores %base before handing control away.
func emitIndirectJumpOutward(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config) error {
	mode, base := cfg.Mode, cfg.BaseReg
	wreg, ok := pickWorkReg(n, base, mode)
	if !ok {
		return &RegisterError{f.Name, n.OrigAddr}
	}
	code, err := loadTarget(n.Inst, wreg)
	if err != nil {
		return err
	}

	insertBefore(f, id, mode, encPushReg(insn.RegAX))
	insertBefore(f, id, mode, code)
	insertBefore(f, id, mode, encStoreMem(wreg, base, int32(spillSlotOffset(base))))
	insertBefore(f, id, mode, encMovRegReg(base, insn.RegAX))
	fillID := insertBefore(f, id, mode, encCallRel32())
	f.Arena.Get(fillID).IPRelAddr = cfg.W.FillCallInfo
	insertBefore(f, id, mode, encPopReg(insn.RegAX))

	replaceWithThunkJump(f, id, cfg.W.JumpThunkOut)
	return nil
}

// emitIndirectJumpInner implements the jump-table dispatch case: if %base
// doesn't appear in the operand expression, the instruction is left
// untouched (the table's absolute targets already account for
// instrumentation); otherwise the target is materialized in a work
// register, pushed, and returned to via RET, with %base saved/restored
// around the sequence.
func emitIndirectJumpInner(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config) {
	mode, base := cfg.Mode, cfg.BaseReg
	if n.Inst.AddrRegMask&base.Mask() == 0 {
		n.InnerJmpIndirect = true
		return
	}
	// %base currently holds the local-storage pointer, not the logical
	// value the original addressing expression expects, so it must be
	// swapped in and back out around evaluating the target. wreg holds
	// the computed jump target; lsReg holds the local-storage pointer
	// while %base temporarily carries the logical value.
	wreg, ok := pickWorkReg(n, base, mode)
	if !ok {
		wreg = insn.RegCX
	}
	excl := *n
	excl.RegUseMask |= wreg.Mask()
	lsReg, ok := pickWorkReg(&excl, base, mode)
	if !ok {
		lsReg = insn.RegDX
	}
	code, err := loadTarget(n.Inst, wreg)
	if err != nil {
		return
	}
	insertBefore(f, id, mode, encMovRegReg(base, lsReg))
	insertBefore(f, id, mode, encLoadMem(lsReg, int32(spillSlotOffset(base)), base))
	tableReadID := insertBefore(f, id, mode, code)
	// The synthesized MOV now reads the table entry that the original
	// FF /4 would have; it, not the unlinked original, is what
	// internal/deploy's jump-table relocation must patch to point at
	// the instrumented-side table.
	f.Arena.Get(tableReadID).JumpTable = n.JumpTable
	n.JumpTable.ReplaceReferencer(id, tableReadID)
	insertBefore(f, id, mode, encPushReg(wreg))
	insertBefore(f, id, mode, encMovRegReg(lsReg, base))
	insertBefore(f, id, mode, encRet())
	f.Arena.Unlink(id)
	n.InnerJmpIndirect = true
}

// emitDirectOutwardThunk implements "Direct call/Jxx rel32 outward": spill
// %rax, load %base (the local-storage pointer) into %rax to pass it to
// the thunk under the single-argument convention, restoring %base to its
// logical value first for outward jumps (the destination expects ordinary
// register conventions, not the hijacked %base). The original destination
// is already captured as n.IPRelAddr for the emitter's relocation pass.
//
// The call descriptor for this site is resolved by the thunk itself from
// the return address already on the stack (the thunk's own return address
// for CALL sites, the value pushed just ahead of it here for JMP sites)
// rather than by writing the descriptor's address into local storage
// inline: embedding an absolute 8-byte pointer here would need a
// relocation kind beyond the 32-bit fields §4.9 defines, so the lookup is
// pushed to the thunk side instead (see DESIGN.md).
func emitDirectOutwardThunk(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config) {
	mode, base := cfg.Mode, cfg.BaseReg
	isCall := n.Inst.Kind == insn.KindCallRel32

	insertBefore(f, id, mode, encPushReg(insn.RegAX))
	insertBefore(f, id, mode, encMovRegReg(base, insn.RegAX))
	if !isCall {
		insertBefore(f, id, mode, encLoadMem(insn.RegAX, int32(spillSlotOffset(base)), base))
	}

	if isCall {
		replaceWithThunkCall(f, id, cfg.W.CallThunk)
	} else {
		replaceWithThunkJump(f, id, cfg.W.JumpThunkOut)
	}
}

// emitGeneralCase wraps an instruction that reads/writes %base (and is not
// one of the special control-transfer forms above): save a work register,
// load the logical %base from its spill slot, run the original
// instruction, then reverse the steps so the instrumented value of %base
// is current again afterward.
func emitGeneralCase(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config) error {
	mode, base := cfg.Mode, cfg.BaseReg
	wreg, ok := pickWorkReg(n, base, mode)
	if !ok {
		return &RegisterError{f.Name, n.OrigAddr}
	}
	insertBefore(f, id, mode, encPushReg(wreg))
	insertBefore(f, id, mode, encMovRegReg(base, wreg))
	insertBefore(f, id, mode, encLoadMem(wreg, int32(spillSlotOffset(base)), base))
	insertAfter(f, id, mode, encStoreMem(base, wreg, int32(spillSlotOffset(base))))
	afterRestore := insertAfter(f, id, mode, encMovRegReg(wreg, base))
	insertAfter(f, afterRestore, mode, encPopReg(wreg))
	return nil
}

// replaceWithThunkCall/Jump unlink the original node and splice in a
// CALL/JMP rel32 to the thunk address in its place, preserving position
// in the instruction chain for anything whose DestInner pointed at it.
func replaceWithThunkCall(f *ir.Func, id ir.NodeID, thunkAddr uint64) {
	newID := f.Arena.InsertAfter(id, ir.Node{})
	in, _ := insn.Decode(encCallRel32(), 0, insn.Mode64)
	nn := f.Arena.Get(newID)
	nn.Inst = in
	nn.IPRelAddr = thunkAddr
	f.Arena.Unlink(id)
}

func replaceWithThunkJump(f *ir.Func, id ir.NodeID, thunkAddr uint64) {
	newID := f.Arena.InsertAfter(id, ir.Node{})
	in, _ := insn.Decode(encJmpRel32(), 0, insn.Mode64)
	nn := f.Arena.Get(newID)
	nn.Inst = in
	nn.IPRelAddr = thunkAddr
	f.Arena.Unlink(id)
}
