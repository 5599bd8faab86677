package ir

import "github.com/euspectre/kedr-go/internal/insn"

// maxValueSlots is the per-block capacity for captured memory-access
// values: each tracked access claims 1 slot (plain access), 2 (type-X or
// type-Y string op) or 4 (type-XY string op), and a block is closed once a
// further access would overflow this.
const maxValueSlots = 16

// ValueSlot describes one captured memory access within a block: the
// instruction that performs it, how many of the block's value slots it
// claims, and the (pc, size, access kind) the block-end dispatch reports
// for it once the runtime has filled in the address (§3, §4.11).
type ValueSlot struct {
	Node  NodeID
	Width int // 1, 2 or 4 raw value slots
	Addr  NodeID // node computing the effective address, when split out

	PC   uint64 // Node's OrigAddr, the event's reported pc
	Size int    // byte width of the access
	Kind insn.AccessKind
}

// BlockDescriptor holds the per-analysis-block bookkeeping a block-start
// node's BlockDesc points to: the instructions it spans, the function's
// base register (the one holding the local-storage pointer), and the
// value-slot layout of any tracked memory accesses.
type BlockDescriptor struct {
	Type BlockType

	Start, End NodeID

	// BaseReg is the register selected per the base-register rules: not a
	// scratch register, not implicitly used by a string op, not the stack
	// pointer, and the least-referenced candidate across the whole
	// function. SelectBaseReg picks one register per function and stores
	// it in every block's descriptor, whether or not the block has
	// tracked memory accesses.
	BaseReg insn.Reg

	// NeedsSaveRestore marks a BaseReg that held a live value the block
	// must restore on exit. No part of the pipeline sets it, so it is
	// always false; transform saves and restores the base register around
	// each instruction that uses it (the general case of §4.7) instead.
	NeedsSaveRestore bool

	Slots []ValueSlot

	// SlotsUsed is the running count of value slots claimed; analysis
	// stops admitting more instructions to the block once adding the next
	// access would push this past maxValueSlots.
	SlotsUsed int

	// MaxEvents bounds len(Slots): a block never admits more tracked
	// accesses than maxValueSlots raw value slots allow.
	MaxEvents int

	// ReadMask/WriteMask/StringOpMask carry one bit per entry in Slots
	// (bit i for Slots[i]), set when that access reads, writes (including
	// the write half of an update), or is a string op, per §3's block
	// descriptor data model.
	ReadMask, WriteMask, StringOpMask uint32
}

// Remaining reports how many value slots are still free in the block.
func (b *BlockDescriptor) Remaining() int { return maxValueSlots - b.SlotsUsed }

// CanAdmit reports whether an access of the given width still fits.
func (b *BlockDescriptor) CanAdmit(width int) bool { return b.SlotsUsed+width <= maxValueSlots }
