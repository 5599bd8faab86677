package runtime

import "testing"

// recordingSink captures every OnCommonBlockEnd/OnMemoryEvent call so tests
// can assert on exact call counts and arguments. Every other EventSink
// method is a no-op.
type recordingSink struct {
	blockEnds int
	events    []memEvent
}

type memEvent struct {
	pc, addr uint64
	size     int
	kind     AccessKind
}

func (r *recordingSink) OnFunctionEntry(ls *LocalStorage, origAddr uint64) {}
func (r *recordingSink) OnFunctionExit(ls *LocalStorage, origAddr uint64)  {}

func (r *recordingSink) OnCommonBlockEnd(ls *LocalStorage, desc *BlockInfo) {
	r.blockEnds++
}

func (r *recordingSink) OnMemoryEvent(ls *LocalStorage, pc, addr uint64, size int, kind AccessKind) {
	r.events = append(r.events, memEvent{pc, addr, size, kind})
}

func (r *recordingSink) OnLockedOpPre(ls *LocalStorage, pc, addr uint64, size int)  {}
func (r *recordingSink) OnLockedOpPost(ls *LocalStorage, pc, addr uint64, size int) {}
func (r *recordingSink) OnIOMemPre(ls *LocalStorage, pc, addr uint64, size int)     {}
func (r *recordingSink) OnIOMemPost(ls *LocalStorage, pc, addr uint64, size int)    {}
func (r *recordingSink) OnBarrierPre(ls *LocalStorage, pc uint64, kind BarrierKind) {}
func (r *recordingSink) OnBarrierPost(ls *LocalStorage, pc uint64, kind BarrierKind) {}

// TestOnCommonBlockEndFansOutMemoryEvents exercises §8 scenario 1:
// "mov rax, [rdi]; ret" must produce exactly one on_memory_event with
// pc = orig+0, size 8, Read.
func TestOnCommonBlockEndFansOutMemoryEvents(t *testing.T) {
	sink := &recordingSink{}
	w := &Wrappers{Handler: sink}

	ls := &LocalStorage{}
	ls.Values[0] = 0xdeadbeef

	desc := &BlockInfo{
		NumEvents: 1,
	}
	desc.ValueIndex[0] = 0
	desc.EventPCs[0] = 0x1000
	desc.EventSizes[0] = 8
	desc.EventKinds[0] = AccessRead

	w.OnCommonBlockEnd(ls, desc)

	if sink.blockEnds != 1 {
		t.Fatalf("OnCommonBlockEnd calls = %d, want 1", sink.blockEnds)
	}
	if len(sink.events) != 1 {
		t.Fatalf("OnMemoryEvent calls = %d, want 1", len(sink.events))
	}
	got := sink.events[0]
	want := memEvent{pc: 0x1000, addr: 0xdeadbeef, size: 8, kind: AccessRead}
	if got != want {
		t.Errorf("event = %+v, want %+v", got, want)
	}
	if ls.WriteMask != 0 || ls.Temp != 0 || ls.Temp1 != 0 {
		t.Errorf("staging state not cleared: WriteMask=%d Temp=%d Temp1=%d", ls.WriteMask, ls.Temp, ls.Temp1)
	}
}

// TestOnCommonBlockEndMultipleEvents confirms the fan-out preserves order
// and reads each event's address from its own value slot.
func TestOnCommonBlockEndMultipleEvents(t *testing.T) {
	sink := &recordingSink{}
	w := &Wrappers{Handler: sink}

	ls := &LocalStorage{}
	ls.Values[0] = 0x100
	ls.Values[1] = 0x200

	desc := &BlockInfo{NumEvents: 2}
	desc.ValueIndex[0], desc.EventPCs[0], desc.EventSizes[0], desc.EventKinds[0] = 0, 0x2000, 4, AccessRead
	desc.ValueIndex[1], desc.EventPCs[1], desc.EventSizes[1], desc.EventKinds[1] = 1, 0x2004, 4, AccessWrite

	w.OnCommonBlockEnd(ls, desc)

	if len(sink.events) != 2 {
		t.Fatalf("OnMemoryEvent calls = %d, want 2", len(sink.events))
	}
	if sink.events[0].addr != 0x100 || sink.events[1].addr != 0x200 {
		t.Errorf("events out of order or wrong addr: %+v", sink.events)
	}
}

// TestOnCommonBlockEndNoHandlerIsNoop confirms a nil Handler does not panic.
func TestOnCommonBlockEndNoHandlerIsNoop(t *testing.T) {
	w := &Wrappers{}
	ls := &LocalStorage{}
	desc := &BlockInfo{NumEvents: 1}
	w.OnCommonBlockEnd(ls, desc)
}
