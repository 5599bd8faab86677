// Package block implements block analysis (§4.5) and base-register
// selection (§4.6) over a built ir.Func.
package block

import (
	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

const maxValueSlots = 16

// Analyze partitions f's nodes into blocks per §4.5: certain instructions
// form a block by themselves, every jump-table destination starts a
// block, and a straight-line run of instructions closes as soon as the
// next tracked memory access would overflow the 16-slot capacity.
func Analyze(f *ir.Func, mode insn.Mode) error {
	forced := map[ir.NodeID]bool{f.EntryNode: true}
	for _, jt := range f.JumpTables {
		for _, e := range jt.Entries {
			forced[e] = true
		}
	}

	var blockStart ir.NodeID = ir.NoNode
	var prev ir.NodeID = ir.NoNode
	slots := 0
	hasMem := false
	var curSlots []ir.ValueSlot

	flush := func(end ir.NodeID) {
		if blockStart == ir.NoNode {
			return
		}
		typ := ir.BlockCommonNoMemOps
		if hasMem {
			typ = ir.BlockCommon
		}
		finish(f, blockStart, end, typ, curSlots)
		if hasMem {
			markJumpsPastLast(f, blockStart, end)
		}
	}

	var walkErr error
	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		if !n.IsReference() {
			return true // added nodes are wired during transform, not blocked
		}
		typ, isSingleton, err := classifySingleton(n)
		if err != nil {
			walkErr = err
			return false
		}
		if isSingleton {
			flush(prev)
			finish(f, id, id, typ, nil)
			blockStart = ir.NoNode
			prev = id
			return true
		}

		if blockStart == ir.NoNode || forced[id] {
			flush(prev)
			blockStart = id
			slots, hasMem = 0, false
			curSlots = nil
		}

		width, tracked := trackedWidth(n)
		if tracked {
			if slots+width > maxValueSlots {
				flush(prev)
				blockStart = id
				slots, hasMem = 0, false
				curSlots = nil
			}
			slots += width
			hasMem = true
			n.IsTrackedMemOp = true
			curSlots = append(curSlots, ir.ValueSlot{
				Node:  id,
				Width: width,
				Addr:  ir.NoNode,
				PC:    n.OrigAddr,
				Size:  n.Inst.AccessSize(),
				Kind:  n.Inst.Access,
			})
		}
		prev = id
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	flush(prev)
	return nil
}

func finish(f *ir.Func, start, end ir.NodeID, typ ir.BlockType, slots []ir.ValueSlot) {
	sn := f.Arena.Get(start)
	sn.BlockStart = true
	sn.BlockType = typ
	sn.EndNode = end
	if !typ.HasMemEvents() {
		return
	}
	desc := &ir.BlockDescriptor{Type: typ, Start: start, End: end, MaxEvents: maxValueSlots}
	for _, s := range slots {
		i := uint(len(desc.Slots))
		desc.Slots = append(desc.Slots, s)
		desc.SlotsUsed += s.Width
		switch s.Kind {
		case insn.AccessRead:
			desc.ReadMask |= 1 << i
		case insn.AccessWrite:
			desc.WriteMask |= 1 << i
		case insn.AccessUpdate:
			desc.ReadMask |= 1 << i
			desc.WriteMask |= 1 << i
		}
		if s.Width > 1 {
			desc.StringOpMask |= 1 << i
		}
	}
	sn.BlockDesc = desc
}

// trackedWidth reports the value-slot cost of a memory-accessing
// instruction: 1 for an ordinary trackable access, 2 for a type-X/Y
// string op, 4 for a type-XY string op (MOVS/CMPS). An instruction whose
// ModRM addresses memory but never actually accesses it (LEA) is not
// tracked.
func trackedWidth(n *ir.Node) (int, bool) {
	switch {
	case n.IsStringOpXY:
		return 4, true
	case n.IsStringOp:
		return 2, true
	case n.Inst.IsMemOperand() && n.Inst.Access != insn.AccessNone:
		return 1, true
	default:
		return 0, false
	}
}

// classifySingleton reports whether n's instruction must form a block by
// itself, and which type that block is tagged with.
func classifySingleton(n *ir.Node) (ir.BlockType, bool, error) {
	in := n.Inst
	switch {
	case in.Kind == insn.KindJmpIndirect:
		if n.JumpTable != nil {
			return ir.BlockJumpIndirectInner, true, nil
		}
		return ir.BlockJumpIndirectOut, true, nil
	case in.Kind == insn.KindCallIndirect:
		return ir.BlockCallIndirect, true, nil
	case in.Kind == insn.KindCallRel32 && n.IPRelAddr != 0:
		return ir.BlockCallRel32Out, true, nil
	case (in.Kind == insn.KindJumpRel32 || in.Kind == insn.KindJccRel32) && n.IPRelAddr != 0:
		return ir.BlockJumpRel32Out, true, nil
	case (in.Kind == insn.KindJumpRel32 || in.Kind == insn.KindJccRel32) && n.DestInner != ir.NoNode && n.DestAddr < n.OrigAddr:
		return ir.BlockJumpBackwards, true, nil
	case in.IsLocked:
		return ir.BlockLockedUpdate, true, nil
	case in.Kind == insn.KindIOOp:
		return ir.BlockIoMemOp, true, nil
	case in.Kind == insn.KindBarrier:
		return ir.BlockBarrierOther, true, nil
	case in.Kind == insn.KindRet, in.Kind == insn.KindIRet, in.Kind == insn.KindUD2,
		in.Kind == insn.KindJmpFar, in.Kind == insn.KindCallFar:
		return ir.BlockControlOutOther, true, nil
	default:
		return ir.BlockNone, false, nil
	}
}

// markJumpsPastLast walks [start, end] of a Common block with tracked
// accesses and marks every forward jump whose destination lies after end
// (jump_past_last), setting block_has_jumps_out on the block head when any
// are found.
func markJumpsPastLast(f *ir.Func, start, end ir.NodeID) {
	hasOut := false
	for id := start; id <= end; id++ {
		if f.Arena.Deleted(id) {
			continue
		}
		n := f.Arena.Get(id)
		if n.DestInner != ir.NoNode && n.DestInner > end {
			n.JumpPastLast = true
			hasOut = true
		}
	}
	if hasOut {
		f.Arena.Get(start).BlockHasJumpsOut = true
	}
}
