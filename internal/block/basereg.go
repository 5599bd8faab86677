package block

import (
	"fmt"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

// scratchRegs lists registers the transformer itself reserves (the entry
// prologue's push/pop %rax dance around kedr_on_function_entry) and that
// therefore can never double as the function's base register.
var scratchRegs = map[insn.Reg]bool{insn.RegAX: true}

// BaseRegError reports that no candidate register satisfies §4.6's rules.
type BaseRegError struct {
	Func string
	Msg  string
}

func (e *BaseRegError) Error() string { return fmt.Sprintf("block: %s: %s", e.Func, e.Msg) }

// SelectBaseReg implements §4.6: pick the general-purpose register that
// will persistently hold the local storage address during instrumented
// execution.
//
// Disallowed: scratch registers, SP, and (applied uniformly across 32- and
// 64-bit targets, a deliberate generalization of spec.md's 32-bit example
// — see DESIGN.md) any register a string instruction in the function uses
// implicitly: SI when INS/MOVS/LODS is present, DI when OUTS/MOVS/STOS is
// present. Among the remaining candidates, the one referenced the fewest
// times across the function wins. Any instruction that uses every GP
// register and is not PUSHAD/POPAD fails the function outright; an
// outward call/jump is assumed (conservatively) to clobber every scratch
// register, counted the same as an explicit reference for tie-breaking.
func SelectBaseReg(f *ir.Func, mode insn.Mode) (insn.Reg, error) {
	numRegs := 8
	if mode == insn.Mode64 {
		numRegs = 16
	}

	var needSI, needDI bool
	refCount := make([]int, numRegs)

	var failErr error
	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		if !n.IsReference() {
			return true
		}
		in := n.Inst
		if in.UsesAllGPRegs(mode) && in.Kind != insn.KindPushA && in.Kind != insn.KindPopA {
			failErr = &BaseRegError{f.Name, fmt.Sprintf("instruction at 0x%x uses all GP registers", in.Addr)}
			return false
		}
		if in.StringOp == insn.StringOpXY {
			needSI, needDI = true, true
		}
		needDI = needDI || isStosLike(in)
		needSI = needSI || isLodsLike(in)
		for r := 0; r < numRegs; r++ {
			if in.RegUseMask&(1<<uint(r)) != 0 {
				refCount[r]++
			}
		}
		outward := (in.Kind == insn.KindCallIndirect || in.Kind == insn.KindJmpIndirect ||
			((in.Kind == insn.KindCallRel32 || in.Kind == insn.KindJumpRel32 || in.Kind == insn.KindJccRel32) && n.IPRelAddr != 0))
		if outward {
			for r := range scratchRegs {
				refCount[int(r)]++
			}
		}
		return true
	})
	if failErr != nil {
		return insn.RegNone, failErr
	}

	disallowed := map[insn.Reg]bool{insn.RegSP: true}
	for r := range scratchRegs {
		disallowed[r] = true
	}
	if needSI {
		disallowed[insn.RegSI] = true
	}
	if needDI {
		disallowed[insn.RegDI] = true
	}

	best := insn.RegNone
	bestCount := -1
	for r := 0; r < numRegs; r++ {
		reg := insn.Reg(r)
		if disallowed[reg] {
			continue
		}
		if bestCount == -1 || refCount[r] < bestCount {
			best = reg
			bestCount = refCount[r]
		}
	}
	if best == insn.RegNone {
		return insn.RegNone, &BaseRegError{f.Name, "no candidate register survives the exclusion rules"}
	}

	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		if n.BlockDesc != nil {
			n.BlockDesc.BaseReg = best
		}
		return true
	})

	return best, nil
}

// isStosLike/isLodsLike match, by mnemonic (byte forms included), the
// instructions whose presence disallows DI and SI respectively: DI for
// OUTS/MOVS/STOS, SI for INS/MOVS/LODS. INS/OUTS decode as KindIOOp with
// no StringOp, so they are recognized by mnemonic alone.
func isStosLike(in *insn.Inst) bool {
	switch in.Mnemonic {
	case "stos", "stosb", "movs", "movsb", "outs", "outsb":
		return true
	}
	return false
}

func isLodsLike(in *insn.Inst) bool {
	switch in.Mnemonic {
	case "lods", "lodsb", "movs", "movsb", "ins", "insb":
		return true
	}
	return false
}
