package block

import (
	"testing"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

type nilMem struct{}

func (nilMem) ReadMem(addr uint64, out []byte) error { return nil }

func TestAnalyzeStraightLineRead(t *testing.T) {
	// mov eax,[ebx]; mov ecx,[ebx+4]; ret — two plain memory reads, one
	// common block, no singleton instructions in between.
	code := []byte{
		0x8B, 0x03, // mov eax,[ebx]
		0x8B, 0x4B, 0x04, // mov ecx,[ebx+4]
		0xC3, // ret
	}
	f, err := ir.Build("straight", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	entry := f.Arena.Get(f.EntryNode)
	if !entry.BlockStart {
		t.Fatal("entry node should start a block")
	}
	if entry.BlockType != ir.BlockCommon {
		t.Errorf("BlockType = %v, want BlockCommon", entry.BlockType)
	}
}

func TestAnalyzeLockedUpdateIsSingleton(t *testing.T) {
	// lock add [eax],ebx ; ret
	code := []byte{0xF0, 0x01, 0x18, 0xC3}
	f, err := ir.Build("locked", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	entry := f.Arena.Get(f.EntryNode)
	if entry.BlockType != ir.BlockLockedUpdate {
		t.Errorf("BlockType = %v, want BlockLockedUpdate", entry.BlockType)
	}
	if entry.EndNode != f.EntryNode {
		t.Errorf("EndNode = %v, want singleton block (equal to start)", entry.EndNode)
	}
}

func TestAnalyzeIOMemOpIsSingleton(t *testing.T) {
	// in al, dx ; ret
	code := []byte{0xEC, 0xC3}
	f, err := ir.Build("ioop", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	entry := f.Arena.Get(f.EntryNode)
	if entry.BlockType != ir.BlockBarrierOther && entry.BlockType != ir.BlockIoMemOp {
		t.Errorf("BlockType = %v, want BlockIoMemOp or BlockBarrierOther", entry.BlockType)
	}
}

func TestAnalyzeBlockDescriptorSlotsAndMasks(t *testing.T) {
	// mov rax,[rdi]; ret — one tracked read, per §8 scenario 1.
	code := []byte{0x48, 0x8B, 0x07, 0xC3}
	f, err := ir.Build("readonly", 0x1000, code, insn.Mode64, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := Analyze(f, insn.Mode64); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	entry := f.Arena.Get(f.EntryNode)
	desc := entry.BlockDesc
	if desc == nil {
		t.Fatal("BlockDesc is nil, want populated descriptor")
	}
	if len(desc.Slots) != 1 {
		t.Fatalf("len(Slots) = %d, want 1", len(desc.Slots))
	}
	slot := desc.Slots[0]
	if slot.PC != entry.OrigAddr {
		t.Errorf("Slots[0].PC = %#x, want %#x", slot.PC, entry.OrigAddr)
	}
	if slot.Size != 8 {
		t.Errorf("Slots[0].Size = %d, want 8", slot.Size)
	}
	if slot.Kind != insn.AccessRead {
		t.Errorf("Slots[0].Kind = %v, want AccessRead", slot.Kind)
	}
	if desc.ReadMask != 1 {
		t.Errorf("ReadMask = %#x, want 1", desc.ReadMask)
	}
	if desc.WriteMask != 0 {
		t.Errorf("WriteMask = %#x, want 0", desc.WriteMask)
	}
	if desc.MaxEvents != 16 {
		t.Errorf("MaxEvents = %d, want 16", desc.MaxEvents)
	}
}

func TestAnalyzeLEAIsNotTracked(t *testing.T) {
	// lea eax,[ebx+4]; ret — LEA never accesses memory, so this must not
	// count as a tracked memory access at all.
	code := []byte{0x8D, 0x43, 0x04, 0xC3}
	f, err := ir.Build("lea", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	entry := f.Arena.Get(f.EntryNode)
	if entry.BlockType != ir.BlockCommonNoMemOps {
		t.Errorf("BlockType = %v, want BlockCommonNoMemOps (lea is not a tracked access)", entry.BlockType)
	}
	if entry.BlockDesc != nil {
		t.Error("BlockDesc should be nil for a block with no tracked accesses")
	}
}

func TestAnalyzeBlockSplitsAtSlotCapacity(t *testing.T) {
	// 17 plain memory reads in a row (17 > 16-slot capacity) must split
	// into at least two blocks.
	var code []byte
	for i := 0; i < 17; i++ {
		code = append(code, 0x8B, 0x03) // mov eax,[ebx]
	}
	code = append(code, 0xC3)
	f, err := ir.Build("manyreads", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	blockStarts := 0
	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		if n.BlockStart && n.BlockType == ir.BlockCommon {
			blockStarts++
		}
		return true
	})
	if blockStarts < 2 {
		t.Errorf("blockStarts = %d, want at least 2 once 17 tracked accesses overflow a 16-slot block", blockStarts)
	}
}
