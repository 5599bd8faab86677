package discover

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/euspectre/kedr-go/internal/insn"
)

func TestDiscoverSizesBySuccessorDistance(t *testing.T) {
	src := &StaticSymbolSource{
		Syms: []Symbol{
			{Name: "foo", Addr: 0x1000},
			{Name: "bar", Addr: 0x1010},
		},
		Areas: []TextArea{{Name: ".text", Start: 0x1000, End: 0x1020}},
	}
	data := make([]byte, 0x20)
	for i := range data {
		data[i] = 0x90 // nop padding, non-zero so trimming never fires
	}
	mem := &StaticMemReader{Base: 0x1000, Data: data}

	cands := Discover(src, mem, insn.Mode32, log.NewEntry(log.StandardLogger()))
	if len(cands) != 2 {
		t.Fatalf("len(cands) = %d, want 2", len(cands))
	}
	if cands[0].Name != "foo" || cands[0].Size != 0x10 {
		t.Errorf("cands[0] = %+v, want foo sized 0x10", cands[0])
	}
	if cands[1].Name != "bar" || cands[1].Size != 0x10 {
		t.Errorf("cands[1] = %+v, want bar sized 0x10 (to the text area end sentinel)", cands[1])
	}
}

func TestDiscoverDiscardsTooSmallForNearJump(t *testing.T) {
	src := &StaticSymbolSource{
		Syms: []Symbol{
			{Name: "tiny", Addr: 0x1000},
			{Name: "next", Addr: 0x1003}, // only 3 bytes apart, below minNearJumpSize
		},
		Areas: []TextArea{{Name: ".text", Start: 0x1000, End: 0x1010}},
	}
	data := make([]byte, 0x10)
	for i := range data {
		data[i] = 0x90
	}
	mem := &StaticMemReader{Base: 0x1000, Data: data}

	cands := Discover(src, mem, insn.Mode32, log.NewEntry(log.StandardLogger()))
	for _, c := range cands {
		if c.Name == "tiny" {
			t.Fatal("tiny (3 bytes) should have been discarded as too small for a near jump")
		}
	}
}

func TestDiscoverTrimsTrailingZeroPadding(t *testing.T) {
	src := &StaticSymbolSource{
		Syms:  []Symbol{{Name: "padded", Addr: 0x1000}},
		Areas: []TextArea{{Name: ".text", Start: 0x1000, End: 0x1020}},
	}
	// four nops and a ret, then 0x1b bytes of zero padding out to the text
	// area end.
	data := append([]byte{0x90, 0x90, 0x90, 0x90, 0xC3}, make([]byte, 0x1b)...)
	mem := &StaticMemReader{Base: 0x1000, Data: data}

	cands := Discover(src, mem, insn.Mode32, log.NewEntry(log.StandardLogger()))
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	if cands[0].Size != 5 {
		t.Errorf("Size = %d, want 5 (trailing zero padding trimmed)", cands[0].Size)
	}
}

func TestDiscoverReExtendsOverTrimmedRealInstruction(t *testing.T) {
	// mov eax,0 (B8 00 00 00 00) ends in four zero bytes; naive
	// trailing-zero trimming would cut it down to just the opcode byte,
	// so the re-decode pass must restore the full 5-byte size.
	src := &StaticSymbolSource{
		Syms:  []Symbol{{Name: "f", Addr: 0x1000}},
		Areas: []TextArea{{Name: ".text", Start: 0x1000, End: 0x1005}},
	}
	data := []byte{0xB8, 0x00, 0x00, 0x00, 0x00}
	mem := &StaticMemReader{Base: 0x1000, Data: data}

	cands := Discover(src, mem, insn.Mode32, log.NewEntry(log.StandardLogger()))
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	if cands[0].Size != 5 {
		t.Errorf("Size = %d, want 5 (re-decode restores the instruction the zero-trim cut into)", cands[0].Size)
	}
}
