package ir

// JumpTable records one switch-style jump table discovered while scanning
// a function's indirect jumps (an "jmp disp32(,reg,scale)" dispatch site
// with no base register — see insn.Inst.IsIndirectJumpTableDispatch).
//
// The original keeps one kedr_jtable per jump instruction and later folds
// tables that turn out to alias the same memory (two dispatch sites
// sharing a table, or a discovered table overlapping one found earlier).
// Here a Func owns a flat slice of JumpTable and nodes that use one hold a
// pointer into it, so folding is just repointing that pointer rather than
// patching a linked list.
type JumpTable struct {
	// Addr is the table's address in the target's original memory image.
	Addr uint64
	// NumEntries is how many 32-bit entries the table holds, determined
	// by how far dispatch addresses computed from consecutive indices
	// keep landing on valid instruction boundaries inside the function.
	NumEntries int
	// Entries holds, for each index, the node the entry resolves to once
	// decoding has located it (NoNode until resolved).
	Entries []NodeID
	// ReferencedBy lists every node whose indirect jump dispatches
	// through this table (normally one, but folding can merge sites);
	// phase 1 repoints an entry here if it replaces the dispatching
	// instruction with a synthesized one (§4.7's "%base in <expr>" case).
	ReferencedBy []NodeID

	// OrigDispatcher is the node ID of the first-discovered FF /4
	// dispatch instruction exactly as it came out of Build, before any
	// transform phase touches it. internal/fallback's relocated copy
	// preserves that instruction verbatim (fallback never sees IR
	// insertions), so internal/deploy uses this — not ReferencedBy — to
	// locate the disp32 field it must repoint at the fallback-side
	// table.
	OrigDispatcher NodeID

	// Offsets holds, per entry, the instrumented instance's byte offset
	// of Entries[i]'s node, filled in by internal/emit's layout pass
	// (spec.md §4.9 step 6: "write each entry's final offset, not yet
	// absolute"). internal/deploy turns these into the two absolute
	// tables below once it has placed both copies of the function.
	Offsets []int

	// InstrumentedAddr/FallbackAddr are the addresses internal/deploy
	// allocates for the two translated copies of this table: one whose
	// entries resolve into the instrumented instance, one into the
	// fallback copy. Neither aliases Addr (the original table is left
	// untouched in the target's image).
	InstrumentedAddr uint64
	FallbackAddr     uint64
}

// ReplaceReferencer swaps old for replacement in ReferencedBy, used when a
// transform phase removes the original dispatch instruction and splices in
// a synthesized one that reads the table in its place.
func (jt *JumpTable) ReplaceReferencer(old, replacement NodeID) {
	for i, id := range jt.ReferencedBy {
		if id == old {
			jt.ReferencedBy[i] = replacement
		}
	}
}

// Overlaps reports whether the table's entry ranges [Addr, Addr+4*N) and
// other's intersect.
func (jt *JumpTable) Overlaps(other *JumpTable) bool {
	a0, a1 := jt.Addr, jt.Addr+4*uint64(jt.NumEntries)
	b0, b1 := other.Addr, other.Addr+4*uint64(other.NumEntries)
	return a0 < b1 && b0 < a1
}
