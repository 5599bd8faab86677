// Package kedr implements a user-space rehosting of KEDR-style dynamic
// binary instrumentation for x86-32/x86-64 functions: decode a function's
// machine code, build an IR, split it into analysis blocks, transform it
// to report memory accesses, locked operations, I/O-memory accesses and
// barriers through an EventHandler, re-emit relocatable machine code, and
// deploy it via a detour buffer plus a near-jump patch at the function's
// original entry point.
//
// A typical caller creates one Session per target, installs an
// EventHandler, and calls Session.InstrumentTarget with a SymbolSource
// and MemReader describing the target's loaded image:
//
//	cfg := kedr.DefaultConfig()
//	sess := kedr.NewSession(cfg, kedr.Mode64, hintAddr).WithHandler(myHandler)
//	err := sess.InstrumentTarget(src, mem)
package kedr

import "github.com/euspectre/kedr-go/internal/insn"

// Mode32/Mode64 re-export internal/insn's decoding modes at the public
// surface, so callers constructing a Session never need to import an
// internal package just to name the target's bitness.
const (
	Mode32 = insn.Mode32
	Mode64 = insn.Mode64
)

// Mode is the target's addressing/operand-size mode, §2's "x86-32 and
// x86-64 are both in scope, selected per target, never mixed within one
// function".
type Mode = insn.Mode
