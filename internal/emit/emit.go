// Package emit implements §4.9: laying out a transformed function's nodes
// into their final byte sequence. Every direct jump/call starts out in its
// worst-case (near, rel32) encoded length; a fix-point pass then downgrades
// any whose destination turns out to be in rel8 range once real offsets are
// known, repeating until no further node changes form (shrinking a jump can
// only ever bring other destinations closer, never push one out of range).
// RIP-relative operands and the outward call/jump thunks phase 1 built are
// left as placeholder zero displacements and recorded as Relocations for
// internal/deploy to patch once the function's final address is known.
package emit

import (
	"encoding/binary"
	"fmt"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

// Emit lays out f's nodes (in actual instruction order, following the
// linked list phase 1/2 built) into a single byte slice, recording
// relocations against f.Relocations and the per-node Offset emitted at.
func Emit(f *ir.Func) ([]byte, error) {
	if f.EntryNode == ir.NoNode {
		return nil, fmt.Errorf("emit: %s: no entry node", f.Name)
	}

	var ordered []ir.NodeID
	f.Arena.WalkLinked(f.EntryNode, func(id ir.NodeID, n *ir.Node) bool {
		ordered = append(ordered, id)
		return true
	})

	forms := make(map[ir.NodeID]bool, len(ordered)) // true once downgraded to short (rel8)
	offsets := make(map[ir.NodeID]int, len(ordered))

	for {
		off := 0
		for _, id := range ordered {
			offsets[id] = off
			off += lengthOf(f.Arena.Get(id), forms[id])
		}

		changed := false
		for _, id := range ordered {
			n := f.Arena.Get(id)
			if !isDowngradable(n) || forms[id] {
				continue
			}
			disp := offsets[n.DestInner] - (offsets[id] + 2)
			if disp >= -128 && disp <= 127 {
				forms[id] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	total := 0
	if len(ordered) > 0 {
		last := ordered[len(ordered)-1]
		total = offsets[last] + lengthOf(f.Arena.Get(last), forms[last])
	}
	code := make([]byte, 0, total)

	for _, id := range ordered {
		n := f.Arena.Get(id)
		n.Offset = offsets[id]

		bytes, err := encodeNode(f, id, n, offsets, forms)
		if err != nil {
			return nil, err
		}
		code = append(code, bytes...)

		if n.IPRelAddr != 0 {
			f.AddReloc(ir.Relocation{
				Node:        id,
				Kind:        ir.RelocRIPLike,
				FieldOffset: n.Offset + ipRelFieldOffset(n),
				Target:      n.IPRelAddr,
			})
		}
		if n.JumpTable != nil {
			f.AddReloc(ir.Relocation{
				Node:        id,
				Kind:        ir.RelocJumpTable,
				FieldOffset: n.Offset + ipRelFieldOffset(n),
			})
		}
	}

	fillJumpTableOffsets(f)

	return code, nil
}

// fillJumpTableOffsets implements §4.9 step 6: once every node's final
// offset is known, record each jump table's instrumented-side entries as
// offsets (not yet absolute — internal/deploy turns these into real
// addresses once it knows where both copies of the function land).
func fillJumpTableOffsets(f *ir.Func) {
	for _, jt := range f.JumpTables {
		jt.Offsets = make([]int, len(jt.Entries))
		for i, entry := range jt.Entries {
			jt.Offsets[i] = f.Arena.Get(entry).Offset
		}
	}
}

// isDowngradable reports whether n is a direct Jcc/Jmp to another node in
// this function whose encoded length is still undecided between near
// (rel32) and short (rel8) form.
func isDowngradable(n *ir.Node) bool {
	return n.Inst != nil && n.DestInner != ir.NoNode &&
		(n.Inst.Kind == insn.KindJumpRel32 || n.Inst.Kind == insn.KindJccRel32)
}

func isJcxz(n *ir.Node) bool {
	return n.Inst != nil && n.Inst.Kind == insn.KindJcxzLoop && n.DestInner != ir.NoNode
}

func isFixedCall(n *ir.Node) bool {
	return n.Inst != nil && n.Inst.Kind == insn.KindCallRel32 && n.DestInner != ir.NoNode
}

func lengthOf(n *ir.Node, short bool) int {
	switch {
	case isDowngradable(n):
		if short {
			return 2
		}
		if isJcc(n.Inst) {
			return 6
		}
		return 5
	case isJcxz(n):
		return n.Inst.Len
	case isFixedCall(n):
		return 5
	default:
		return n.Inst.Len
	}
}

// isJcc distinguishes a conditional jump from a plain unconditional one, by
// inspecting the opcode bytes the decoder already captured: a 1-byte 0x7x
// (the short form's own encoding, kept as-is by the build step's in-place
// rewrite) or a 2-byte 0F 8x (an originally-near Jcc).
func isJcc(in *insn.Inst) bool {
	switch {
	case in.OpcodeLen == 1 && in.OpcodeBytes[0]&0xF0 == 0x70:
		return true
	case in.OpcodeLen == 2 && in.OpcodeBytes[0] == 0x0F && in.OpcodeBytes[1]&0xF0 == 0x80:
		return true
	default:
		return false
	}
}

func ccOf(in *insn.Inst) byte {
	if in.OpcodeLen == 1 {
		return in.OpcodeBytes[0] & 0xF
	}
	return in.OpcodeBytes[1] & 0xF
}

func encodeNode(f *ir.Func, id ir.NodeID, n *ir.Node, offsets map[ir.NodeID]int, forms map[ir.NodeID]bool) ([]byte, error) {
	switch {
	case isDowngradable(n):
		return encodeJccOrJmp(n, forms[id], offsets[id], offsets[n.DestInner]), nil
	case isJcxz(n):
		return encodeJcxz(n, offsets[id], offsets[n.DestInner]), nil
	case isFixedCall(n):
		return encodeFixedCall(offsets[id], offsets[n.DestInner]), nil
	case n.Inst == nil:
		return nil, fmt.Errorf("emit: %s: node %d has no instruction", f.Name, id)
	default:
		return n.Inst.Bytes(), nil
	}
}

func encodeJccOrJmp(n *ir.Node, short bool, thisOff, destOff int) []byte {
	if short {
		disp := int8(destOff - (thisOff + 2))
		if isJcc(n.Inst) {
			return []byte{0x70 | ccOf(n.Inst), byte(disp)}
		}
		return []byte{0xEB, byte(disp)}
	}
	if isJcc(n.Inst) {
		disp := int32(destOff - (thisOff + 6))
		var d [4]byte
		binary.LittleEndian.PutUint32(d[:], uint32(disp))
		return append([]byte{0x0F, 0x80 | ccOf(n.Inst)}, d[:]...)
	}
	disp := int32(destOff - (thisOff + 5))
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(disp))
	return append([]byte{0xE9}, d[:]...)
}

// encodeJcxz recomputes JCXZ/LOOP's single rel8 byte in place; the opcode
// byte (which of JCXZ/LOOP/LOOPE/LOOPNE this is) is preserved verbatim.
func encodeJcxz(n *ir.Node, thisOff, destOff int) []byte {
	raw := append([]byte(nil), n.Inst.Bytes()...)
	disp := int8(destOff - (thisOff + len(raw)))
	raw[len(raw)-1] = byte(disp)
	return raw
}

func encodeFixedCall(thisOff, destOff int) []byte {
	disp := int32(destOff - (thisOff + 5))
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(disp))
	return append([]byte{0xE8}, d[:]...)
}

// ipRelFieldOffset locates the 4-byte field a relocation patches, within
// the node's own emitted bytes: right after the single opcode byte for the
// fixed 5-byte CALL/JMP rel32 stubs phase 1 synthesizes, or the trailing
// disp32 (ahead of any immediate) for a reference instruction's original
// RIP-relative operand.
func ipRelFieldOffset(n *ir.Node) int {
	// A jump-table dispatch's disp32 sits at the same Len-ImmSize-4
	// position whether the node is the original (untouched) instruction
	// or the synthesized MOV loadTarget built in its place (§4.7's
	// "%base in <expr>" branch) — both decode to a real ModRM/SIB/disp32
	// operand, unlike the fixed 5-byte CALL/JMP rel32 stubs below.
	if n.JumpTable != nil {
		return n.Inst.Len - n.Inst.ImmSize - 4
	}
	if !n.IsReference() {
		return 1
	}
	return n.Inst.Len - n.Inst.ImmSize - 4
}
