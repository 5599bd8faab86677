package fallback

import (
	"encoding/binary"
	"testing"

	"github.com/euspectre/kedr-go/internal/insn"
)

func TestBuildRelocatesOutwardCallRel32(t *testing.T) {
	origAddr := uint64(0x400000)
	target := uint64(0x500000)
	// call rel32 to target, computed from origAddr.
	rel := int32(int64(target) - int64(origAddr) - 5)
	code := make([]byte, 5)
	code[0] = 0xE8
	binary.LittleEndian.PutUint32(code[1:], uint32(rel))

	area, err := Build(code, origAddr, insn.Mode32)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer area.Close()

	gotRel := int32(binary.LittleEndian.Uint32(area.Bytes()[1:5]))
	gotTarget := uint64(int64(area.Addr) + 5 + int64(gotRel))
	if gotTarget != target {
		t.Errorf("relocated call resolves to 0x%x, want 0x%x", gotTarget, target)
	}
}

func TestBuildLeavesInwardJumpUnchanged(t *testing.T) {
	origAddr := uint64(0x400000)
	// jmp rel32 +0, landing back at origAddr itself (inside the copied range).
	rel := int32(int64(origAddr) - int64(origAddr) - 5)
	code := make([]byte, 5)
	code[0] = 0xE9
	binary.LittleEndian.PutUint32(code[1:], uint32(rel))

	area, err := Build(code, origAddr, insn.Mode32)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer area.Close()

	gotRel := int32(binary.LittleEndian.Uint32(area.Bytes()[1:5]))
	if gotRel != rel {
		t.Errorf("in-range jump operand changed: got %d, want unchanged %d", gotRel, rel)
	}
}

func TestBuildRelocatesRIPRelativeIn64BitMode(t *testing.T) {
	origAddr := uint64(0x400000)
	target := uint64(0x700000)
	// mov eax,[rip+disp]: 8B 05 <disp32>, disp computed from origAddr.
	disp := int32(int64(target) - int64(origAddr) - 6)
	code := make([]byte, 6)
	code[0], code[1] = 0x8B, 0x05
	binary.LittleEndian.PutUint32(code[2:], uint32(disp))

	area, err := Build(code, origAddr, insn.Mode64)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer area.Close()

	gotDisp := int32(binary.LittleEndian.Uint32(area.Bytes()[2:6]))
	gotTarget := uint64(int64(area.Addr) + 6 + int64(gotDisp))
	if gotTarget != target {
		t.Errorf("relocated RIP-relative load resolves to 0x%x, want 0x%x", gotTarget, target)
	}
}
