package block

import (
	"testing"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

func TestSelectBaseRegExcludesScratchAndSP(t *testing.T) {
	// mov ecx,[edx]; ret — eax (scratch) and esp must never be chosen.
	code := []byte{0x8B, 0x0A, 0xC3}
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	reg, err := SelectBaseReg(f, insn.Mode32)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	if reg == insn.RegAX || reg == insn.RegSP {
		t.Errorf("SelectBaseReg() = %v, must never pick a scratch register or SP", reg)
	}
}

func TestSelectBaseRegExcludesStringOpRegisters(t *testing.T) {
	// movsb implicitly uses both ESI and EDI; neither should be picked.
	code := []byte{0xA4, 0xC3}
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	reg, err := SelectBaseReg(f, insn.Mode32)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	if reg == insn.RegSI || reg == insn.RegDI {
		t.Errorf("SelectBaseReg() = %v, must exclude string-op registers", reg)
	}
}

func TestSelectBaseRegPrefersLeastReferenced(t *testing.T) {
	// mov r,r for every candidate register except edx: edx is the only
	// one never referenced, so it must win regardless of tie-breaking
	// order among the rest.
	code := []byte{
		0x89, 0xC0, // mov eax,eax
		0x89, 0xC9, // mov ecx,ecx
		0x89, 0xDB, // mov ebx,ebx
		0x89, 0xE4, // mov esp,esp
		0x89, 0xED, // mov ebp,ebp
		0x89, 0xF6, // mov esi,esi
		0x89, 0xFF, // mov edi,edi
		0xC3,
	}
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	reg, err := SelectBaseReg(f, insn.Mode32)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	if reg != insn.RegDX {
		t.Errorf("SelectBaseReg() = %v, want RegDX (the only register never referenced)", reg)
	}
}

func TestSelectBaseReg64BitModeHasMoreCandidates(t *testing.T) {
	code := []byte{0x48, 0x8B, 0x0A, 0xC3} // rex.w mov rcx,[rdx]; ret
	f, err := ir.Build("f", 0x1000, code, insn.Mode64, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	reg, err := SelectBaseReg(f, insn.Mode64)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	if reg == insn.RegAX || reg == insn.RegSP {
		t.Errorf("SelectBaseReg() = %v, must never pick a scratch register or SP", reg)
	}
}
