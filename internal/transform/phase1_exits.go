package transform

import (
	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

// emitSimpleExit prepends §4.7's exit sequence before a RET/IRET/UD2/JMP
// far node; the original instruction itself is left untouched immediately
// after.
//
//	push %rax
//	mov  %base, %rax
//	mov  spill(%rax), %base
//	call kedr_on_function_exit
//	pop  %rax
func emitSimpleExit(f *ir.Func, at ir.NodeID, cfg Config) {
	mode, base := cfg.Mode, cfg.BaseReg
	insertBefore(f, at, mode, encPushReg(insn.RegAX))
	insertBefore(f, at, mode, encMovRegReg(base, insn.RegAX))
	insertBefore(f, at, mode, encLoadMem(insn.RegAX, int32(spillSlotOffset(base)), base))
	callID := insertBefore(f, at, mode, encCallRel32())
	f.Arena.Get(callID).IPRelAddr = cfg.W.OnFunctionExit
	insertBefore(f, at, mode, encPopReg(insn.RegAX))
}

// emitPushadFixup runs the original PUSHAD, then overwrites the saved
// copy of %base on the stack (at its known PUSHAD slot offset) with the
// logical value from its spill slot, so a POPAD elsewhere in the function
// restores the logical rather than the instrumented value.
func emitPushadFixup(f *ir.Func, at ir.NodeID, cfg Config) {
	mode, base := cfg.Mode, cfg.BaseReg
	wreg, ok := pickWorkReg(f.Arena.Get(at), base, mode)
	if !ok {
		wreg = insn.RegCX
	}
	after := insertAfter(f, at, mode, encLoadMem(base, int32(spillSlotOffset(base)), wreg))
	insertAfter(f, after, mode, encStoreMem(wreg, stackPtrReg(mode), pushadSlotOffset(base)))
}

// emitPopadFixup runs before the original POPAD: copies the current %base
// into both the spill slot and the stack's saved-PUSHAD slot, so whatever
// POPAD pops back matches the spill slot's logical value.
func emitPopadFixup(f *ir.Func, at ir.NodeID, cfg Config) {
	mode, base := cfg.Mode, cfg.BaseReg
	insertBefore(f, at, mode, encStoreMem(base, insn.RegAX, int32(spillSlotOffset(base))))
	insertBefore(f, at, mode, encStoreMem(base, stackPtrReg(mode), pushadSlotOffset(base)))
}

func stackPtrReg(mode insn.Mode) insn.Reg { return insn.RegSP }

// pushadSlotOffset locates %base's saved copy within the block PUSHAD/POPAD
// pushes onto the stack: one slot per GP register, in register-number
// order, %base's own slot among them.
func pushadSlotOffset(base insn.Reg) int32 { return int32(base) * 8 }

func insertAfter(f *ir.Func, after ir.NodeID, mode insn.Mode, code []byte) ir.NodeID {
	in, err := insn.Decode(code, 0, mode)
	if err != nil {
		panic("transform: synthesized sequence failed to decode: " + err.Error())
	}
	return f.Arena.InsertAfter(after, ir.Node{Inst: in})
}
