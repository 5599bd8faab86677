package emit

import (
	"testing"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

type nilMem struct{}

func (nilMem) ReadMem(addr uint64, out []byte) error { return nil }

func TestEmitStraightLineRoundTrips(t *testing.T) {
	code := []byte{0x90, 0x90, 0xC3} // nop; nop; ret
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	out, err := Emit(f)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if string(out) != string(code) {
		t.Errorf("Emit() = % x, want % x (untouched straight-line code round-trips)", out, code)
	}
}

func TestEmitDowngradesShortJumpBackToRel8(t *testing.T) {
	// jmp rel8 +2 (skip two nops); nop; nop; ret
	code := []byte{0xEB, 0x02, 0x90, 0x90, 0xC3}
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	out, err := Emit(f)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if string(out) != string(code) {
		t.Errorf("Emit() = % x, want % x (fix-point pass should re-settle on the rel8 form)", out, code)
	}
}

func TestEmitRecordsRIPRelativeRelocation(t *testing.T) {
	// mov eax,[rip+disp], disp chosen so the target lies well outside the
	// function: 8B 05 <disp32>
	code := []byte{0x8B, 0x05, 0x00, 0x00, 0x01, 0x00} // disp = 0x10000
	f, err := ir.Build("f", 0x1000, code, insn.Mode64, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if _, err := Emit(f); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(f.Relocations) != 1 {
		t.Fatalf("len(Relocations) = %d, want 1", len(f.Relocations))
	}
	reloc := f.Relocations[0]
	if reloc.Kind != ir.RelocRIPLike {
		t.Errorf("Kind = %v, want RelocRIPLike", reloc.Kind)
	}
	wantTarget := uint64(0x1000 + 6 + 0x10000)
	if reloc.Target != wantTarget {
		t.Errorf("Target = 0x%x, want 0x%x", reloc.Target, wantTarget)
	}
}
