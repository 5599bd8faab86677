package ir

import (
	"encoding/binary"
	"fmt"

	"github.com/euspectre/kedr-go/internal/insn"
)

// BuildError reports a function that cannot be instrumented and must be
// left untouched (the caller falls back to never patching its entry).
type BuildError struct {
	Func string
	Addr uint64
	Msg  string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("ir: %s@0x%x: %s", e.Func, e.Addr, e.Msg)
}

// MemReader reads the target's original memory image so the builder can
// follow jump tables and RIP-relative loads without needing the function
// mapped executable yet.
type MemReader interface {
	ReadMem(addr uint64, out []byte) error
}

// Build decodes code (the bytes of one function, starting at addr) into a
// Func's IR, performing the steps of the build algorithm in order: plain
// decode, address-map linking, short-form rewriting/expansion, then jump
// table extraction.
//
// Short-form rewriting and the 3-node JCXZ/LOOP expansion are folded into
// the initial decode pass rather than done as a later in-place rewrite of
// an already-linked arena: since added nodes never carry an OrigAddr and so
// can never be a direct-jump target looked up by address, building the
// fully expanded node sequence before linking dest_inner produces the same
// links the two-pass algorithm would, without needing to renumber already
// assigned NodeIDs when a single instruction grows into several.
func Build(name string, addr uint64, code []byte, mode insn.Mode, mem MemReader) (*Func, error) {
	f := NewFunc(name, addr, len(code), len(code)/2+4)

	addrToNode := make(map[uint64]NodeID, len(code)/3+1)

	off := 0
	for off < len(code) {
		instAddr := addr + uint64(off)
		in, err := insn.Decode(code[off:], instAddr, mode)
		if err != nil {
			return nil, &BuildError{name, instAddr, err.Error()}
		}

		if in.IsRIPRelative && in.RIPTarget >= addr && in.RIPTarget < addr+uint64(len(code)) {
			return nil, &BuildError{name, instAddr, "RIP-relative operand targets this function"}
		}

		id, expandErr := appendExpanded(f, in, addr, uint64(len(code)), mode)
		if expandErr != nil {
			return nil, expandErr
		}
		addrToNode[instAddr] = id

		off += in.Len
	}
	if f.Arena.Len() == 0 {
		return nil, &BuildError{name, addr, "empty function"}
	}
	f.EntryNode = f.Arena.First()

	// Step 2: link direct jumps (including the trailing JMP rel32 left by
	// JCXZ/LOOP expansion, and the shortened-to-rel32 forms) to their
	// inner destination, and record exits.
	f.Arena.Walk(func(id NodeID, n *Node) bool {
		in := n.Inst
		switch in.Kind {
		case insn.KindRet, insn.KindIRet, insn.KindUD2, insn.KindJmpFar, insn.KindCallFar:
			f.ExitNodes = append(f.ExitNodes, id)
		}
		if n.DestAddr == 0 {
			return true
		}
		if n.DestAddr >= addr && n.DestAddr < addr+uint64(len(code)) {
			dst, ok := addrToNode[n.DestAddr]
			if !ok {
				return true // resolved below as a hard error
			}
			n.DestInner = dst
		} else {
			n.IPRelAddr = n.DestAddr
		}
		return true
	})
	// Any in-function direct jump whose destination didn't line up with an
	// instruction boundary is a hard failure.
	var linkErr error
	f.Arena.Walk(func(id NodeID, n *Node) bool {
		in := n.Inst
		isDirectJump := in.Kind == insn.KindJumpRel32 || in.Kind == insn.KindJccRel32 ||
			in.Kind == insn.KindCallRel32
		if isDirectJump && n.DestAddr >= addr && n.DestAddr < addr+uint64(len(code)) && n.DestInner == NoNode {
			linkErr = &BuildError{name, n.OrigAddr, "jump lands mid-instruction"}
			return false
		}
		return true
	})
	if linkErr != nil {
		return nil, linkErr
	}

	if err := extractJumpTables(f, mem, addrToNode, addr, uint64(len(code))); err != nil {
		return nil, err
	}

	f.Arena.LinkSequential()

	return f, nil
}

// appendExpanded appends the node(s) corresponding to one decoded
// instruction: a single reference node for most instructions, or a 3-node
// group for JCXZ/LOOP (§4.4 step 3).
func appendExpanded(f *Func, in *insn.Inst, funcAddr, funcSize uint64, mode insn.Mode) (NodeID, error) {
	switch in.Kind {
	case insn.KindJumpRel8, insn.KindJccRel8:
		// Rewritten to the rel32 kind in place: emit's fix-point pass
		// downgrades it back to rel8 on its own once real offsets are
		// known, the same safe-default-then-shrink approach it applies to
		// every other direct jump/call.
		if in.Kind == insn.KindJumpRel8 {
			in.Kind = insn.KindJumpRel32
		} else {
			in.Kind = insn.KindJccRel32
		}
		n := refNode(in)
		n.DestAddr = in.JumpTarget
		id := f.Arena.Add(n)
		f.Arena.Get(id).Bounds = Range{id, id}
		return id, nil

	case insn.KindJcxzLoop:
		if in.Addr+uint64(in.Len) >= funcAddr+funcSize {
			return NoNode, &BuildError{f.Name, in.Addr, "JCXZ/LOOP at end of function"}
		}
		first := f.Arena.Add(refNode(in))

		// Added: "JMP rel32" skipping the far jump below when the
		// original condition (ECX==0 / loop continues) isn't taken.
		skipIn, err := insn.Decode([]byte{0xE9, 0, 0, 0, 0}, 0, mode)
		if err != nil {
			return NoNode, &BuildError{f.Name, in.Addr, "internal: JCXZ skip jump: " + err.Error()}
		}
		skipID := f.Arena.Add(Node{Inst: skipIn, DestInner: NoNode})

		// Added: "JMP rel32" carrying the true (possibly far) destination.
		farIn, err := insn.Decode([]byte{0xE9, 0, 0, 0, 0}, 0, mode)
		if err != nil {
			return NoNode, &BuildError{f.Name, in.Addr, "internal: JCXZ far jump: " + err.Error()}
		}
		farID := f.Arena.Add(Node{Inst: farIn, DestInner: NoNode, DestAddr: in.JumpTarget})

		fn := f.Arena.Get(first)
		fn.Bounds = Range{first, farID}
		fn.DestAddr = 0                     // hand-wired below, not address-resolved
		fn.DestInner = farID                // taken path: straight to the far jump
		sn := f.Arena.Get(skipID)
		sn.Bounds = Range{first, farID}
		sn.DestInner = farID + 1 // not-taken path: the next instruction after the group
		gn := f.Arena.Get(farID)
		gn.Bounds = Range{first, farID}
		return first, nil

	default:
		n := refNode(in)
		if in.JumpTarget != 0 {
			n.DestAddr = in.JumpTarget
		}
		if in.IsRIPRelative {
			n.IPRelAddr = in.RIPTarget
		}
		id := f.Arena.Add(n)
		fn := f.Arena.Get(id)
		fn.Bounds = Range{id, id}
		return id, nil
	}
}

func refNode(in *insn.Inst) Node {
	return Node{
		Inst:             in,
		OrigAddr:         in.Addr,
		DestInner:        NoNode,
		RegUseMask:       in.RegUseMask,
		Barrier:          in.Barrier,
		IsStringOp:       in.StringOp == insn.StringOpX || in.StringOp == insn.StringOpY,
		IsStringOpXY:     in.StringOp == insn.StringOpXY,
	}
}

// extractJumpTables implements §4.4 step 4: for every indirect jump of the
// "jmp disp32(,reg,scale)" shape, read the table from the target's memory
// image until an entry stops resolving inside the function, then fold it
// against any previously extracted table it overlaps.
func extractJumpTables(f *Func, mem MemReader, addrToNode map[uint64]NodeID, funcAddr, funcSize uint64) error {
	var err error
	f.Arena.Walk(func(id NodeID, n *Node) bool {
		in := n.Inst
		if !in.IsIndirectJumpTableDispatch() {
			return true
		}
		tableAddr := uint64(int64(in.JumpTableDisp()))
		jt := &JumpTable{Addr: tableAddr, ReferencedBy: []NodeID{id}, OrigDispatcher: id}

		var buf [4]byte
		for {
			entryAddr := tableAddr + uint64(jt.NumEntries)*4
			if rerr := mem.ReadMem(entryAddr, buf[:]); rerr != nil {
				break
			}
			target := uint64(binary.LittleEndian.Uint32(buf[:]))
			if target < funcAddr || target >= funcAddr+funcSize {
				break
			}
			node, ok := addrToNode[target]
			if !ok {
				break
			}
			jt.Entries = append(jt.Entries, node)
			jt.NumEntries++
		}
		if jt.NumEntries == 0 {
			err = &BuildError{f.Name, in.Addr, "indirect jump table has no resolvable entries"}
			return false
		}
		n.JumpTable = f.AddJumpTable(jt)
		return true
	})
	return err
}
