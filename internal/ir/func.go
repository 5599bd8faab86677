package ir

// Func is the IR of one target function: its own Arena of nodes plus the
// jump tables, relocations and deployment addresses discovered or assigned
// while it moves through the pipeline (build -> block analysis ->
// transform -> emit -> deploy). It plays the role of the original's
// struct kedr_ifunc, but owns its node storage directly instead of through
// a list_head threaded into a module-wide list.
type Func struct {
	Name string

	// Addr and Size describe the function as found in the target's
	// original memory image.
	Addr uint64
	Size int

	Arena *Arena

	JumpTables  []*JumpTable
	Relocations []Relocation

	// FallbackAddr/FallbackSize locate the verbatim relocated copy built
	// by internal/fallback, used by thunks and by calls made before
	// deployment completes.
	FallbackAddr uint64
	FallbackSize int

	// InstrumentedAddr/InstrumentedSize locate the final instrumented
	// instance once internal/deploy has placed it in the detour buffer.
	InstrumentedAddr uint64
	InstrumentedSize int

	// TrampolineAddr is the short sequence written over the function's
	// original entry point: an E9 rel32 to InstrumentedAddr followed by
	// 0xCC padding out to Size.
	TrampolineAddr uint64

	// EntryNode is the first node of the IR (the function's first
	// instruction); ExitNodes lists every RET, IRET, UD2, far JMP and far
	// CALL node. Outward tail jumps are not included.
	EntryNode NodeID
	ExitNodes []NodeID
}

// NewFunc creates an empty Func with a fresh Arena sized for capacity
// instructions.
func NewFunc(name string, addr uint64, size int, capacity int) *Func {
	return &Func{
		Name:      name,
		Addr:      addr,
		Size:      size,
		Arena:     NewArena(capacity),
		EntryNode: NoNode,
	}
}

// AddJumpTable registers jt, first checking whether it overlaps (and
// should therefore be folded into) a table already recorded for this
// function — the way the original resolves a newly discovered table that
// turns out to alias one found from an earlier dispatch site.
func (f *Func) AddJumpTable(jt *JumpTable) *JumpTable {
	for _, existing := range f.JumpTables {
		if existing.Overlaps(jt) {
			existing.ReferencedBy = append(existing.ReferencedBy, jt.ReferencedBy...)
			if jt.NumEntries > existing.NumEntries {
				existing.NumEntries = jt.NumEntries
			}
			return existing
		}
	}
	f.JumpTables = append(f.JumpTables, jt)
	return jt
}

// AddReloc records a relocation to be applied at deployment time.
func (f *Func) AddReloc(r Relocation) {
	f.Relocations = append(f.Relocations, r)
}
