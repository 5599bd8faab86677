package deploy

import (
	"encoding/binary"
	"fmt"

	"github.com/euspectre/kedr-go/internal/ir"
)

// trampolineSize is the minimum bytes a function must have for the entry
// to be patchable: exactly one 5-byte E9 rel32. Any bytes of the function
// past those 5 are overwritten with 0xCC (§4.10: "pad the rest with
// 0xCC"); a 5-byte function gets no padding.
const trampolineSize = 5

// Deploy places an already-emitted function (internal/emit.Emit's output)
// into the pool, wires up its jump tables and relocations, and overwrites
// the original entry point with a trampoline to the instrumented copy.
// f.FallbackAddr/FallbackSize must already be set (internal/fallback.Build
// having run) before this is called, since the jump-table fixup needs it.
func (p *DetourPool) Deploy(f *ir.Func, code []byte) error {
	if f.Size < trampolineSize {
		return fmt.Errorf("deploy: %s: function too small (%d bytes) to hold a trampoline", f.Name, f.Size)
	}

	addr, err := p.reserve(len(code))
	if err != nil {
		return fmt.Errorf("deploy: %s: %w", f.Name, err)
	}
	buf := bufAt(addr, len(code))
	copy(buf, code)

	f.InstrumentedAddr = addr
	f.InstrumentedSize = len(code)

	if err := p.translateJumpTables(f); err != nil {
		return fmt.Errorf("deploy: %s: %w", f.Name, err)
	}
	if err := p.patchFallbackDispatchers(f); err != nil {
		return fmt.Errorf("deploy: %s: %w", f.Name, err)
	}
	if err := applyRelocations(f, buf); err != nil {
		return fmt.Errorf("deploy: %s: %w", f.Name, err)
	}

	if err := writeTrampoline(f); err != nil {
		return fmt.Errorf("deploy: %s: %w", f.Name, err)
	}

	logger.WithField("func", f.Name).
		WithField("orig", hexAddr(f.Addr)).
		WithField("instrumented", hexAddr(f.InstrumentedAddr)).
		Info("deployed")
	return nil
}

// translateJumpTables implements §4.10's first fixup pass: allocate one
// instrumented-side table per JumpTable, fill it from the offsets
// internal/emit recorded, and point it at f.InstrumentedAddr.
func (p *DetourPool) translateJumpTables(f *ir.Func) error {
	for _, jt := range f.JumpTables {
		if len(jt.Offsets) != len(jt.Entries) {
			return fmt.Errorf("jump table at 0x%x: offsets not populated (internal/emit must run first)", jt.Addr)
		}
		tableBytes := make([]byte, 4*len(jt.Offsets))
		for i, off := range jt.Offsets {
			binary.LittleEndian.PutUint32(tableBytes[i*4:], uint32(f.InstrumentedAddr+uint64(off)))
		}
		taddr, err := p.reserve(len(tableBytes))
		if err != nil {
			return err
		}
		copy(bufAt(taddr, len(tableBytes)), tableBytes)
		jt.InstrumentedAddr = taddr
	}
	return nil
}

// patchFallbackDispatchers implements §4.10's second fixup pass: build a
// fallback-side table (entries resolved against the fallback copy's
// layout, which mirrors the original function's byte offsets exactly —
// internal/fallback never inserts anything) and repoint the fallback
// copy's own dispatch instruction at it, since internal/fallback's own
// relocation pass only rewrites direct jumps and RIP-relative operands,
// not a table-dispatch disp32.
func (p *DetourPool) patchFallbackDispatchers(f *ir.Func) error {
	if f.FallbackAddr == 0 {
		return nil
	}
	fallbackBuf := bufAt(f.FallbackAddr, f.FallbackSize)

	for _, jt := range f.JumpTables {
		tableBytes := make([]byte, 4*len(jt.Entries))
		for i, entryID := range jt.Entries {
			entry := f.Arena.Get(entryID)
			off := int(entry.OrigAddr - f.Addr)
			binary.LittleEndian.PutUint32(tableBytes[i*4:], uint32(f.FallbackAddr+uint64(off)))
		}
		taddr, err := p.reserve(len(tableBytes))
		if err != nil {
			return err
		}
		copy(bufAt(taddr, len(tableBytes)), tableBytes)
		jt.FallbackAddr = taddr

		dispatcher := f.Arena.Get(jt.OrigDispatcher)
		if dispatcher == nil || dispatcher.Inst == nil {
			continue
		}
		fieldOff := int(dispatcher.OrigAddr-f.Addr) + dispatcher.Inst.Len - dispatcher.Inst.ImmSize - 4
		if fieldOff < 0 || fieldOff+4 > len(fallbackBuf) {
			return fmt.Errorf("jump table at 0x%x: dispatcher field offset out of range", jt.Addr)
		}
		binary.LittleEndian.PutUint32(fallbackBuf[fieldOff:], uint32(taddr))
	}
	return nil
}

// applyRelocations patches every pending fixup recorded against buf (the
// instrumented copy's own bytes), per the relocation's kind.
func applyRelocations(f *ir.Func, buf []byte) error {
	for _, r := range f.Relocations {
		if r.FieldOffset < 0 || r.FieldOffset+4 > len(buf) {
			return fmt.Errorf("relocation at node %d: field offset %d out of range", r.Node, r.FieldOffset)
		}
		switch r.Kind {
		case ir.RelocRIPLike:
			fieldAddr := f.InstrumentedAddr + uint64(r.FieldOffset)
			disp := int32(int64(r.Target) - int64(fieldAddr) - 4)
			binary.LittleEndian.PutUint32(buf[r.FieldOffset:], uint32(disp))

		case ir.RelocJumpTable:
			n := f.Arena.Get(r.Node)
			if n == nil || n.JumpTable == nil {
				return fmt.Errorf("relocation at node %d: no jump table attached", r.Node)
			}
			binary.LittleEndian.PutUint32(buf[r.FieldOffset:], uint32(n.JumpTable.InstrumentedAddr))

		default:
			return fmt.Errorf("relocation at node %d: unknown kind %d", r.Node, r.Kind)
		}
	}
	return nil
}

// writeTrampoline implements §4.10's last step: overwrite the function's
// original first bytes with "E9 <rel32 to InstrumentedAddr>" and pad the
// remainder of the function's original size with 0xCC.
func writeTrampoline(f *ir.Func) error {
	if err := makeWritable(f.Addr, f.Size); err != nil {
		return err
	}
	buf := bufAt(f.Addr, f.Size)

	rel := int32(int64(f.InstrumentedAddr) - int64(f.Addr) - 5)
	buf[0] = 0xE9
	binary.LittleEndian.PutUint32(buf[1:], uint32(rel))
	for i := 5; i < len(buf); i++ {
		buf[i] = 0xCC
	}
	f.TrampolineAddr = f.Addr
	return nil
}
