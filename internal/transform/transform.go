package transform

import (
	log "github.com/sirupsen/logrus"

	"github.com/euspectre/kedr-go/internal/insn"
	"github.com/euspectre/kedr-go/internal/ir"
	"github.com/euspectre/kedr-go/internal/runtime"
)

var logger = log.WithField("pkg", "transform")

// Wrappers collects the absolute entry addresses of the runtime bridge
// functions phase 1/2 sequences call into (internal/runtime's Dispatch*,
// CallThunk and JumpThunkOut functions, which the kedr package's bridge
// resolves before Phase1 runs). Phase1/Phase2 run once per function with
// the addresses the caller supplies; zero means "not resolved".
type Wrappers struct {
	OnFunctionEntry uint64
	OnFunctionExit  uint64
	FillCallInfo    uint64
	CallThunk       uint64
	JumpThunkOut    uint64
	OnCommonBlockEnd uint64
	OnLockedOpPre   uint64
	OnLockedOpPost  uint64
	OnIOMemPre      uint64
	OnIOMemPost     uint64
	OnBarrierPre    uint64
	OnBarrierPost   uint64
}

// Config bundles everything the transform needs beyond the IR itself.
type Config struct {
	BaseReg      insn.Reg
	Mode         insn.Mode
	FallbackAddr uint64
	W            Wrappers
}

// RegisterError reports that no work register is available once the
// base register, the instruction's own operands and any scratch
// requirement are excluded (§7's RegisterPressure).
type RegisterError struct {
	Func string
	Addr uint64
}

func (e *RegisterError) Error() string {
	return "transform: no work register available at 0x" + hex(e.Addr) + " in " + e.Func
}

func hex(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// pickWorkReg chooses a register not used by n's own operands and not the
// base register, preferring RCX/RDX/R10/R11 (caller-clobbered, not used by
// the runtime ABI bridge for argument passing here).
func pickWorkReg(n *ir.Node, base insn.Reg, mode insn.Mode) (insn.Reg, bool) {
	candidates := []insn.Reg{insn.RegCX, insn.RegDX, insn.RegR10, insn.RegR11, insn.RegBX, insn.RegSI, insn.RegDI}
	for _, r := range candidates {
		if mode == insn.Mode32 && r >= insn.RegR8 {
			continue
		}
		if r == base {
			continue
		}
		if n.RegUseMask&r.Mask() != 0 {
			continue
		}
		return r, true
	}
	return insn.RegNone, false
}

// Phase1 performs the §4.7 transformation over f in place.
func Phase1(f *ir.Func, cfg Config) error {
	emitEntryPrologue(f, cfg)

	var funcErr error
	f.Arena.WalkLinked(f.EntryNode, func(id ir.NodeID, n *ir.Node) bool {
		if !n.IsReference() {
			return true
		}
		in := n.Inst
		switch {
		case in.Kind == insn.KindRet, in.Kind == insn.KindIRet, in.Kind == insn.KindUD2, in.Kind == insn.KindJmpFar:
			emitSimpleExit(f, id, cfg)

		case in.Kind == insn.KindCallIndirect:
			if err := emitIndirectCallThunk(f, id, n, cfg); err != nil {
				funcErr = err
				return false
			}

		case in.Kind == insn.KindJmpIndirect && n.JumpTable == nil:
			if err := emitIndirectJumpOutward(f, id, n, cfg); err != nil {
				funcErr = err
				return false
			}

		case in.Kind == insn.KindJmpIndirect && n.JumpTable != nil:
			emitIndirectJumpInner(f, id, n, cfg)

		case (in.Kind == insn.KindCallRel32 || in.Kind == insn.KindJumpRel32 || in.Kind == insn.KindJccRel32) && n.IPRelAddr != 0:
			emitDirectOutwardThunk(f, id, n, cfg)

		case in.Kind == insn.KindPushA:
			emitPushadFixup(f, id, cfg)

		case in.Kind == insn.KindPopA:
			emitPopadFixup(f, id, cfg)

		default:
			if n.RegUseMask&cfg.BaseReg.Mask() != 0 {
				if err := emitGeneralCase(f, id, n, cfg); err != nil {
					funcErr = err
					return false
				}
			}
		}
		return true
	})
	return funcErr
}

// insertBefore decodes code and splices it in immediately before "before",
// returning the new node's id so callers can set DestInner/IPRelAddr on
// control-transfer instructions.
func insertBefore(f *ir.Func, before ir.NodeID, mode insn.Mode, code []byte) ir.NodeID {
	in, err := insn.Decode(code, 0, mode)
	if err != nil {
		panic("transform: synthesized sequence failed to decode: " + err.Error())
	}
	return f.Arena.InsertBefore(before, ir.Node{Inst: in})
}

// emitEntryPrologue prepends §4.7's entry sequence before the function's
// first instruction:
//
//	push %rax
//	mov  imm32(orig_addr), %eax
//	call kedr_on_function_entry
//	test %rax, %rax
//	jz   do_fallback
//	mov  %base, spill(%rax)
//	mov  %rax,  %base
//	pop  %rax
//	jmp  go_on
//  do_fallback:
//	pop  %rax
//	jmp  <fallback>
//  go_on:
func emitEntryPrologue(f *ir.Func, cfg Config) {
	at := f.EntryNode
	mode := cfg.Mode
	base := cfg.BaseReg

	insertBefore(f, at, mode, encPushReg(insn.RegAX))
	insertBefore(f, at, mode, encMovImm32(int32(f.Addr), insn.RegAX))
	callID := insertBefore(f, at, mode, encCallRel32())
	f.Arena.Get(callID).IPRelAddr = cfg.W.OnFunctionEntry
	insertBefore(f, at, mode, encTestRegReg(insn.RegAX))

	jzID := insertBefore(f, at, mode, encJccRel32(ccZ))

	// go_on path: restore base, pop %rax, then jump past the fallback arm.
	insertBefore(f, at, mode, encStoreMem(base, insn.RegAX, int32(spillSlotOffset(base))))
	insertBefore(f, at, mode, encMovRegReg(insn.RegAX, base))
	insertBefore(f, at, mode, encPopReg(insn.RegAX))
	skipFallbackID := insertBefore(f, at, mode, encJmpRel32())

	// do_fallback:
	doFallback := insertBefore(f, at, mode, encPopReg(insn.RegAX))
	f.Arena.Get(jzID).DestInner = doFallback
	jmpFallbackID := insertBefore(f, at, mode, encJmpRel32())
	f.Arena.Get(jmpFallbackID).IPRelAddr = cfg.FallbackAddr

	// go_on: (the function's original first instruction, already at "at")
	f.Arena.Get(skipFallbackID).DestInner = at
}

const ccZ = 0x4 // JZ/JE

// spillSlotOffset is the local storage offset the function's single base
// register is saved to/restored from. A function has exactly one base
// register chosen for its whole body (internal/block.SelectBaseReg), so
// one fixed LocalStorage field covers it regardless of which physical
// register was picked; the parameter is kept for readability at call
// sites that already have base in hand.
func spillSlotOffset(base insn.Reg) int {
	return int(runtime.OffSpillBase)
}
