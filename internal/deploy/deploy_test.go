package deploy

import (
	"encoding/binary"
	"testing"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
)

func TestApplyRelocationsRIPLike(t *testing.T) {
	f := ir.NewFunc("f", 0x1000, 16, 4)
	f.InstrumentedAddr = 0x8000
	f.AddReloc(ir.Relocation{Kind: ir.RelocRIPLike, FieldOffset: 4, Target: 0x9000})

	buf := make([]byte, 16)
	if err := applyRelocations(f, buf); err != nil {
		t.Fatalf("applyRelocations: %v", err)
	}
	got := int32(binary.LittleEndian.Uint32(buf[4:]))
	want := int32(int64(0x9000) - int64(0x8000+4) - 4)
	if got != want {
		t.Errorf("disp = %d, want %d", got, want)
	}
}

func TestApplyRelocationsJumpTable(t *testing.T) {
	f := ir.NewFunc("f", 0x1000, 16, 4)
	id := f.Arena.Add(ir.Node{Inst: &insn.Inst{}})
	jt := &ir.JumpTable{InstrumentedAddr: 0xabcd0000}
	f.Arena.Get(id).JumpTable = jt
	f.AddReloc(ir.Relocation{Node: id, Kind: ir.RelocJumpTable, FieldOffset: 2})

	buf := make([]byte, 8)
	if err := applyRelocations(f, buf); err != nil {
		t.Fatalf("applyRelocations: %v", err)
	}
	if got := binary.LittleEndian.Uint32(buf[2:]); got != 0xabcd0000 {
		t.Errorf("jump table addr = 0x%x, want 0xabcd0000", got)
	}
}

func TestApplyRelocationsOutOfRange(t *testing.T) {
	f := ir.NewFunc("f", 0x1000, 16, 4)
	f.AddReloc(ir.Relocation{Kind: ir.RelocRIPLike, FieldOffset: 100, Target: 1})

	buf := make([]byte, 8)
	if err := applyRelocations(f, buf); err == nil {
		t.Fatal("expected out-of-range error, got nil")
	}
}

func TestWithinReach(t *testing.T) {
	cases := []struct {
		hint, addr uint64
		want       bool
	}{
		{0, 0x1000, true},
		{0x100000000, 0x100000000 + reach - 1, true},
		{0x100000000, 0x100000000 + reach + 1, false},
	}
	for _, c := range cases {
		if got := withinReach(c.hint, c.addr); got != c.want {
			t.Errorf("withinReach(0x%x, 0x%x) = %v, want %v", c.hint, c.addr, got, c.want)
		}
	}
}
