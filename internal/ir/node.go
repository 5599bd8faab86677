// Package ir implements the intermediate representation used to analyze
// and transform a decoded function's instructions: an arena of nodes with
// stable indices (rather than the original's intrusive, pointer-cyclic
// linked list), jump tables, relocations and per-function metadata.
package ir

import "github.com/euspectre/kedr-go/internal/insn"

// NodeID indexes a Node within an Arena. NoNode marks an unset reference.
type NodeID int

// NoNode is the sentinel for "no node" (dest_inner unset, etc).
const NoNode NodeID = -1

// Range bounds a contiguous, inclusive run of node indices: the group of
// nodes a reference node expanded into (first == last for nodes that were
// not expanded).
type Range struct {
	First, Last NodeID
}

// BlockType classifies the block a block-start node begins, per the
// splitting rules. BlockNone marks nodes that are not the first in their
// block.
type BlockType int

const (
	BlockNone BlockType = iota
	BlockCommon
	BlockCommonNoMemOps
	BlockLockedUpdate
	BlockIoMemOp
	BlockBarrierOther
	BlockJumpBackwards
	BlockCallRel32Out
	BlockJumpRel32Out
	BlockCallIndirect
	BlockJumpIndirectInner
	BlockJumpIndirectOut
	BlockControlOutOther
)

func (t BlockType) String() string {
	switch t {
	case BlockCommon:
		return "common"
	case BlockCommonNoMemOps:
		return "common_no_mem_ops"
	case BlockLockedUpdate:
		return "locked_update"
	case BlockIoMemOp:
		return "io_mem_op"
	case BlockBarrierOther:
		return "barrier_other"
	case BlockJumpBackwards:
		return "jump_backwards"
	case BlockCallRel32Out:
		return "call_rel32_out"
	case BlockJumpRel32Out:
		return "jump_rel32_out"
	case BlockCallIndirect:
		return "call_indirect"
	case BlockJumpIndirectInner:
		return "jump_indirect_inner"
	case BlockJumpIndirectOut:
		return "jump_indirect_out"
	case BlockControlOutOther:
		return "control_out_other"
	default:
		return "none"
	}
}

// HasMemEvents reports whether a block of this type ever gets a block
// descriptor allocated (Common, LockedUpdate, IoMemOp — the only types that
// emit memory-event notifications).
func (t BlockType) HasMemEvents() bool {
	switch t {
	case BlockCommon, BlockLockedUpdate, BlockIoMemOp:
		return true
	default:
		return false
	}
}

// Node is one element of a function's IR: either a "reference" node that
// mirrors an original instruction (nonzero OrigAddr) or an "added" node
// created during transformation (zero OrigAddr).
type Node struct {
	Inst *insn.Inst

	OrigAddr uint64 // 0 for added nodes

	// Offset is the byte offset this node is emitted at, assigned by the
	// code emitter's layout pass.
	Offset int

	// First/Last bound the contiguous group of nodes this reference node
	// expanded into during short-form rewriting (e.g. JCXZ/LOOP -> 3
	// nodes). For a node that was not expanded, First == Last == its own
	// index.
	Bounds Range

	// DestInner links a direct jump (or the group of nodes preceding a
	// JCXZ/LOOP's trailing unconditional jump) to the node its
	// destination address decodes to, when the destination lies inside
	// this function. NoNode otherwise.
	DestInner NodeID

	// DestAddr is the absolute destination address of a control-transfer
	// instruction, or 0 if the instruction does not transfer control
	// directly (indirect, or no control transfer).
	DestAddr uint64

	// IPRelAddr is nonzero when this instruction needs an address fixed
	// up at deployment time: RIP-relative addressing, or an outward
	// call/jmp rel32. It holds the absolute address the fixed-up operand
	// must resolve to.
	IPRelAddr uint64

	BlockStart bool
	BlockType  BlockType
	// EndNode is set on a block-start node: the last reference node of
	// that block.
	EndNode NodeID

	BlockDesc *BlockDescriptor
	CallDesc  *CallDescriptor

	RegUseMask  uint16
	Barrier     insn.BarrierKind

	JumpPastLast     bool
	InnerJmpIndirect bool
	BlockHasJumpsOut bool
	IsTrackedMemOp   bool
	IsStringOp       bool
	IsStringOpXY     bool

	JumpTable *JumpTable // non-nil when this node dispatches through one

	// Next/Prev thread the function's actual instruction order as a
	// doubly linked list over stable NodeIDs. Build leaves them equal to
	// plain index order (see Arena.LinkSequential); transform then
	// inserts prologues/epilogues/thunks by relinking a handful of these
	// fields instead of renumbering the arena, the way the original
	// threads kedr_ir_node through a list_head without ever reindexing.
	Next, Prev NodeID

	deleted bool
}

// IsReference reports whether the node mirrors an original instruction.
func (n *Node) IsReference() bool { return n.OrigAddr != 0 }
