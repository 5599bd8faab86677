package transform

import (
	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
	"github.com/euspectre/kedr-go/internal/runtime"
)

// Phase2 performs the §4.8 transformation over f in place, after Phase1 has
// already run: memory-event capture at each tracked access within a Common
// block, a trailing call to kedr_on_common_block_end for that block,
// pre/post wrapper calls around locked updates and I/O memory operations,
// and pre/post wrapper calls (with the barrier kind staged ahead of them)
// around barriers that do not themselves touch memory.
//
// Phase2 never needs to coordinate with Phase1's general-case wrapping by
// name: lsHolderFor recomputes, from the same inputs, which register holds
// the local-storage pointer at the point a given node executes, since
// pickWorkReg is a pure function of the node and Phase1 made exactly the
// same choice when it wrapped that node.
func Phase2(f *ir.Func, cfg Config) error {
	var funcErr error
	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		if !n.BlockStart {
			return true
		}
		var err error
		switch n.BlockType {
		case ir.BlockCommon:
			err = processCommonBlock(f, id, n, cfg)
		case ir.BlockLockedUpdate:
			err = processSingletonBlock(f, id, n, cfg, cfg.W.OnLockedOpPre, cfg.W.OnLockedOpPost, true)
		case ir.BlockIoMemOp:
			err = processSingletonBlock(f, id, n, cfg, cfg.W.OnIOMemPre, cfg.W.OnIOMemPost, false)
		case ir.BlockBarrierOther:
			err = processBarrierBlock(f, id, n, cfg)
		}
		if err != nil {
			funcErr = err
			return false
		}
		return true
	})
	return funcErr
}

// lsHolderFor reports which register holds the local-storage pointer at
// the point n executes: %base itself, unless n's own operands reference
// base (in which case Phase1's emitGeneralCase already swapped base to n's
// logical value and parked the local-storage pointer in the same work
// register pickWorkReg deterministically picks here).
func lsHolderFor(n *ir.Node, base insn.Reg, mode insn.Mode) insn.Reg {
	if n.RegUseMask&base.Mask() != 0 {
		if r, ok := pickWorkReg(n, base, mode); ok {
			return r
		}
	}
	return base
}

func valuesOffset(slot int) int32 { return int32(runtime.OffValues) + int32(slot)*8 }
func destAddrOffset() int32       { return int32(runtime.OffDestAddr) }
func tempOffset() int32           { return int32(runtime.OffTemp) }

// callWrapperBefore emits "push %rax; mov lsHolder,%rax; call wrapperAddr; pop
// %rax" immediately before "before".
func callWrapperBefore(f *ir.Func, before ir.NodeID, mode insn.Mode, lsHolder insn.Reg, wrapperAddr uint64) {
	insertBefore(f, before, mode, encPushReg(insn.RegAX))
	insertBefore(f, before, mode, encMovRegReg(lsHolder, insn.RegAX))
	callID := insertBefore(f, before, mode, encCallRel32())
	f.Arena.Get(callID).IPRelAddr = wrapperAddr
	insertBefore(f, before, mode, encPopReg(insn.RegAX))
}

// callWrapperAfter does the same, chained immediately after "after".
func callWrapperAfter(f *ir.Func, after ir.NodeID, mode insn.Mode, lsHolder insn.Reg, wrapperAddr uint64) {
	a1 := insertAfter(f, after, mode, encPushReg(insn.RegAX))
	a2 := insertAfter(f, a1, mode, encMovRegReg(lsHolder, insn.RegAX))
	a3 := insertAfter(f, a2, mode, encCallRel32())
	f.Arena.Get(a3).IPRelAddr = wrapperAddr
	insertAfter(f, a3, mode, encPopReg(insn.RegAX))
}

// processCommonBlock captures the effective address (and, for string ops,
// the implicit address register and %ecx count) of every tracked access in
// [start, end], then calls kedr_on_common_block_end once at the end.
func processCommonBlock(f *ir.Func, start ir.NodeID, head *ir.Node, cfg Config) error {
	mode, base := cfg.Mode, cfg.BaseReg
	end := head.EndNode
	slot := 0
	for id := start; id <= end; id++ {
		if f.Arena.Deleted(id) {
			continue
		}
		n := f.Arena.Get(id)
		if !n.IsReference() || !n.IsTrackedMemOp {
			continue
		}
		next, err := captureAccess(f, id, n, cfg, slot)
		if err != nil {
			return err
		}
		slot = next
	}
	last := f.Arena.Get(end)
	lsHolder := lsHolderFor(last, base, mode)
	callWrapperAfter(f, end, mode, lsHolder, cfg.W.OnCommonBlockEnd)
	return nil
}

// captureAccess emits the capture sequence for one tracked access at id,
// returning the next free value slot.
func captureAccess(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config, slot int) (int, error) {
	mode, base := cfg.Mode, cfg.BaseReg
	lsHolder := lsHolderFor(n, base, mode)

	if n.IsStringOp || n.IsStringOpXY {
		return captureStringOp(f, id, n, mode, lsHolder, slot), nil
	}

	excl := *n
	excl.RegUseMask |= lsHolder.Mask()
	addrReg, ok := pickWorkReg(&excl, base, mode)
	if !ok {
		return slot, &RegisterError{f.Name, n.OrigAddr}
	}
	code, err := effectiveAddrBytes(n.Inst, mode, addrReg)
	if err != nil {
		return slot, err
	}
	insertBefore(f, id, mode, encPushReg(addrReg))
	insertBefore(f, id, mode, code)
	insertBefore(f, id, mode, encStoreMem(addrReg, lsHolder, valuesOffset(slot)))
	insertBefore(f, id, mode, encPopReg(addrReg))
	return slot + 1, nil
}

// captureStringOp stores the implicit address register(s) a string
// instruction uses, plus the %ecx repeat count, directly: no LEA is
// needed, the address is already sitting in %esi/%edi.
func captureStringOp(f *ir.Func, id ir.NodeID, n *ir.Node, mode insn.Mode, lsHolder insn.Reg, slot int) int {
	if n.IsStringOpXY {
		insertBefore(f, id, mode, encStoreMem(insn.RegSI, lsHolder, valuesOffset(slot)))
		insertBefore(f, id, mode, encStoreMem(insn.RegDI, lsHolder, valuesOffset(slot+1)))
		insertBefore(f, id, mode, encStoreMem(insn.RegCX, lsHolder, valuesOffset(slot+2)))
		return slot + 4
	}
	insertBefore(f, id, mode, encStoreMem(stringAddrReg(n.Inst), lsHolder, valuesOffset(slot)))
	insertBefore(f, id, mode, encStoreMem(insn.RegCX, lsHolder, valuesOffset(slot+1)))
	return slot + 2
}

// stringAddrReg reports which implicit register a type-X/type-Y string
// instruction addresses memory through.
func stringAddrReg(in *insn.Inst) insn.Reg {
	switch in.Mnemonic {
	case "stos", "stosb", "scas", "scasb", "outs":
		return insn.RegDI
	default: // lods, lodsb, ins
		return insn.RegSI
	}
}

// processSingletonBlock wraps a locked-update or I/O memory-op instruction
// with pre/post wrapper calls, capturing the instruction's effective
// address into ls.DestAddr first when withAddr is set and the instruction
// has a ModRM memory operand to take one from (plain IN/OUT address an I/O
// port, not memory, and are left unaddressed).
func processSingletonBlock(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config, pre, post uint64, withAddr bool) error {
	mode, base := cfg.Mode, cfg.BaseReg
	lsHolder := lsHolderFor(n, base, mode)

	if withAddr && n.Inst.HasModRM() && n.Inst.IsMemOperand() {
		excl := *n
		excl.RegUseMask |= lsHolder.Mask()
		addrReg, ok := pickWorkReg(&excl, base, mode)
		if ok {
			if code, err := effectiveAddrBytes(n.Inst, mode, addrReg); err == nil {
				insertBefore(f, id, mode, encPushReg(addrReg))
				insertBefore(f, id, mode, code)
				insertBefore(f, id, mode, encStoreMem(addrReg, lsHolder, destAddrOffset()))
				insertBefore(f, id, mode, encPopReg(addrReg))
			}
		}
	} else if n.IsStringOp {
		insertBefore(f, id, mode, encStoreMem(stringAddrReg(n.Inst), lsHolder, destAddrOffset()))
	}

	callWrapperBefore(f, id, mode, lsHolder, pre)
	callWrapperAfter(f, id, mode, lsHolder, post)
	return nil
}

// processBarrierBlock stages the barrier kind into ls.Temp ahead of the
// pre-call and wraps the (operand-free) barrier instruction with
// kedr_on_barrier_pre/post.
func processBarrierBlock(f *ir.Func, id ir.NodeID, n *ir.Node, cfg Config) error {
	mode, base := cfg.Mode, cfg.BaseReg
	lsHolder := lsHolderFor(n, base, mode)

	excl := *n
	excl.RegUseMask |= lsHolder.Mask()
	wreg, ok := pickWorkReg(&excl, base, mode)
	if !ok {
		return &RegisterError{f.Name, n.OrigAddr}
	}
	insertBefore(f, id, mode, encPushReg(wreg))
	insertBefore(f, id, mode, encMovImm32(barrierKindImm(n.Barrier), wreg))
	insertBefore(f, id, mode, encStoreMem(wreg, lsHolder, tempOffset()))
	insertBefore(f, id, mode, encPopReg(wreg))

	callWrapperBefore(f, id, mode, lsHolder, cfg.W.OnBarrierPre)
	callWrapperAfter(f, id, mode, lsHolder, cfg.W.OnBarrierPost)
	return nil
}

func barrierKindImm(bk insn.BarrierKind) int32 {
	switch bk {
	case insn.BarrierFull:
		return 1
	case insn.BarrierLoad:
		return 2
	case insn.BarrierStore:
		return 3
	default:
		return 0
	}
}
