//go:build !appengine

package insn

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// regTo64 maps a Reg to golang-asm's 64-bit register constant. Only the
// registers the transformer ever needs as a base/work/spill register are
// covered; all instructions the pipeline synthesizes operate in 64-bit mode.
var regTo64 = [...]int16{
	x86.REG_AX, x86.REG_CX, x86.REG_DX, x86.REG_BX,
	x86.REG_SP, x86.REG_BP, x86.REG_SI, x86.REG_DI,
	x86.REG_R8, x86.REG_R9, x86.REG_R10, x86.REG_R11,
	x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15,
}

func reg64(r Reg) int16 {
	if int(r) < len(regTo64) {
		return regTo64[r]
	}
	return x86.REG_AX
}

// Assembler accumulates a short instruction sequence via golang-asm and
// assembles it into raw machine code once, the way the teacher's
// AMD64Backend builds instruction sequences out of *obj.Prog values. No
// package in this module calls it: internal/transform hand-encodes the
// prologue/epilogue/thunk sequences of §4.7-§4.8 (see its synth.go).
type Assembler struct {
	b *asm.Builder
}

// NewAssembler creates an Assembler good for up to hint instructions (a
// sizing hint only, the builder grows as needed).
func NewAssembler(hint int) (*Assembler, error) {
	b, err := asm.NewBuilder("amd64", hint)
	if err != nil {
		return nil, fmt.Errorf("insn: new assembler: %w", err)
	}
	return &Assembler{b: b}, nil
}

// Assemble lays out every instruction added so far and returns the encoded
// bytes.
func (a *Assembler) Assemble() []byte { return a.b.Assemble() }

func (a *Assembler) add(p *obj.Prog) { a.b.AddInstruction(p) }

// MovRegReg emits "mov from, to" (64-bit).
func (a *Assembler) MovRegReg(from, to Reg) {
	p := a.b.NewProg()
	p.As = x86.AMOVQ
	p.From.Type, p.From.Reg = obj.TYPE_REG, reg64(from)
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg64(to)
	a.add(p)
}

// LoadMem emits "mov offset(base), to".
func (a *Assembler) LoadMem(base Reg, offset int64, to Reg) {
	p := a.b.NewProg()
	p.As = x86.AMOVQ
	p.From.Type, p.From.Reg, p.From.Offset = obj.TYPE_MEM, reg64(base), offset
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg64(to)
	a.add(p)
}

// StoreMem emits "mov from, offset(base)".
func (a *Assembler) StoreMem(from Reg, base Reg, offset int64) {
	p := a.b.NewProg()
	p.As = x86.AMOVQ
	p.From.Type, p.From.Reg = obj.TYPE_REG, reg64(from)
	p.To.Type, p.To.Reg, p.To.Offset = obj.TYPE_MEM, reg64(base), offset
	a.add(p)
}

// MovImm32 emits "mov $value32, to" (sign-extended on 64-bit, matching the
// entry-prologue's "mov imm32(original_func_addr), %eax" sequence).
func (a *Assembler) MovImm32(value int32, to Reg) {
	p := a.b.NewProg()
	p.As = x86.AMOVQ
	p.From.Type, p.From.Offset = obj.TYPE_CONST, int64(value)
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg64(to)
	a.add(p)
}

// PushReg emits "push reg".
func (a *Assembler) PushReg(reg Reg) {
	p := a.b.NewProg()
	p.As = x86.APUSHQ
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg64(reg)
	a.add(p)
}

// PopReg emits "pop reg".
func (a *Assembler) PopReg(reg Reg) {
	p := a.b.NewProg()
	p.As = x86.APOPQ
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg64(reg)
	a.add(p)
}

// TestRegReg emits "test reg, reg".
func (a *Assembler) TestRegReg(reg Reg) {
	p := a.b.NewProg()
	p.As = x86.ATESTQ
	p.From.Type, p.From.Reg = obj.TYPE_REG, reg64(reg)
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg64(reg)
	a.add(p)
}

// Ret emits "ret".
func (a *Assembler) Ret() {
	p := a.b.NewProg()
	p.As = obj.ARET
	a.add(p)
}

// Calls and jumps to wrapper trampolines, thunks and fallback copies are
// not built through golang-asm: their destinations are only resolved once
// the detour buffer is deployed, so the emitter (internal/emit) writes
// their CALL/JMP rel32 bytes directly and records a relocation, the same
// way §4.9 describes fixing up "iprel_addr" sites at deployment time.
