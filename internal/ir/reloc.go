package ir

// RelocKind classifies a fixup applied once the instrumented instance is
// deployed at its final address and the detour buffer's address is known.
type RelocKind int

const (
	// RelocRIPLike fixes up a RIP-relative disp32 operand (or outward
	// call/jmp rel32) whose target must keep resolving to the same
	// absolute address after the instruction moved.
	RelocRIPLike RelocKind = iota
	// RelocJumpTable fixes up a dispatch instruction's disp32 operand to
	// point at the translated jump table internal/deploy allocates for
	// the instrumented instance (relocations are only recorded and applied
	// for the instrumented copy). Target is unused for this kind: the table
	// to resolve against is found via the node's own JumpTable field.
	RelocJumpTable
)

// Relocation is one fixup site recorded against a node's emitted bytes.
type Relocation struct {
	Node NodeID
	Kind RelocKind
	// FieldOffset is the byte offset, within the function's emitted code
	// (the node's Offset plus the field's position inside the
	// instruction), of the 4-byte field to patch.
	FieldOffset int
	// Target is the absolute address the field must resolve to.
	Target uint64
}
