package transform

import (
	"testing"

	"github.com/euspectre/kedr-go/internal/block"
	"github.com/euspectre/kedr-go/internal/emit"
	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

type nilMem struct{}

func (nilMem) ReadMem(addr uint64, out []byte) error { return nil }

func testConfig(base insn.Reg, mode insn.Mode) Config {
	return Config{
		BaseReg:      base,
		Mode:         mode,
		FallbackAddr: 0x900000,
		W: Wrappers{
			OnFunctionEntry:  0x800010,
			OnFunctionExit:   0x800020,
			FillCallInfo:     0x800030,
			CallThunk:        0x800040,
			JumpThunkOut:     0x800050,
			OnCommonBlockEnd: 0x800060,
			OnLockedOpPre:    0x800070,
			OnLockedOpPost:   0x800080,
			OnIOMemPre:       0x800090,
			OnIOMemPost:      0x8000A0,
			OnBarrierPre:     0x8000B0,
			OnBarrierPost:    0x8000C0,
		},
	}
}

func TestPhase1EntryPrologueCallsOnFunctionEntry(t *testing.T) {
	// mov ecx,[edx]; ret
	code := []byte{0x8B, 0x0A, 0xC3}
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := block.Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("block.Analyze() error = %v", err)
	}
	base, err := block.SelectBaseReg(f, insn.Mode32)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	cfg := testConfig(base, insn.Mode32)

	if err := Phase1(f, cfg); err != nil {
		t.Fatalf("Phase1() error = %v", err)
	}

	found := false
	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		if n.IPRelAddr == cfg.W.OnFunctionEntry {
			found = true
			return false
		}
		return true
	})
	if !found {
		t.Fatal("Phase1() did not emit a call to OnFunctionEntry in the entry prologue")
	}
}

func TestPhase1ExitCallsOnFunctionExit(t *testing.T) {
	code := []byte{0xC3} // ret
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := block.Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("block.Analyze() error = %v", err)
	}
	base, err := block.SelectBaseReg(f, insn.Mode32)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	cfg := testConfig(base, insn.Mode32)

	if err := Phase1(f, cfg); err != nil {
		t.Fatalf("Phase1() error = %v", err)
	}

	found := false
	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		if n.IPRelAddr == cfg.W.OnFunctionExit {
			found = true
			return false
		}
		return true
	})
	if !found {
		t.Fatal("Phase1() did not emit a call to OnFunctionExit around the RET")
	}
}

func TestPhase1And2ThenEmitProducesNonEmptyCode(t *testing.T) {
	// A straight-line function with one plain memory read, exercising the
	// full Phase1 -> Phase2 -> Emit pipeline without error.
	code := []byte{
		0x8B, 0x0A, // mov ecx,[edx]
		0xC3, // ret
	}
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := block.Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("block.Analyze() error = %v", err)
	}
	base, err := block.SelectBaseReg(f, insn.Mode32)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	cfg := testConfig(base, insn.Mode32)

	if err := Phase1(f, cfg); err != nil {
		t.Fatalf("Phase1() error = %v", err)
	}
	if err := Phase2(f, cfg); err != nil {
		t.Fatalf("Phase2() error = %v", err)
	}

	out, err := emit.Emit(f)
	if err != nil {
		t.Fatalf("emit.Emit() error = %v", err)
	}
	if len(out) <= len(code) {
		t.Errorf("emitted code length %d, want greater than original %d bytes (instrumentation must add code)", len(out), len(code))
	}
}

func TestPhase2LockedUpdateWrappedWithPreAndPost(t *testing.T) {
	// lock add [eax],ebx ; ret
	code := []byte{0xF0, 0x01, 0x18, 0xC3}
	f, err := ir.Build("f", 0x1000, code, insn.Mode32, nilMem{})
	if err != nil {
		t.Fatalf("ir.Build() error = %v", err)
	}
	if err := block.Analyze(f, insn.Mode32); err != nil {
		t.Fatalf("block.Analyze() error = %v", err)
	}
	base, err := block.SelectBaseReg(f, insn.Mode32)
	if err != nil {
		t.Fatalf("SelectBaseReg() error = %v", err)
	}
	cfg := testConfig(base, insn.Mode32)

	if err := Phase1(f, cfg); err != nil {
		t.Fatalf("Phase1() error = %v", err)
	}
	if err := Phase2(f, cfg); err != nil {
		t.Fatalf("Phase2() error = %v", err)
	}

	var gotPre, gotPost bool
	f.Arena.Walk(func(id ir.NodeID, n *ir.Node) bool {
		switch n.IPRelAddr {
		case cfg.W.OnLockedOpPre:
			gotPre = true
		case cfg.W.OnLockedOpPost:
			gotPost = true
		}
		return true
	})
	if !gotPre || !gotPost {
		t.Errorf("locked update missing wrapper calls: pre=%v post=%v", gotPre, gotPost)
	}
}
