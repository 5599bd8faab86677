package runtime

// EventSink is the narrow slice of kedr.EventHandler's method set the
// wrapper functions below call directly. kedr.EventHandler satisfies this
// interface structurally (Go interfaces compose by method set, not by
// declared relationship), so a *kedr.Session can hand its configured
// handler straight to a Wrappers value without either package importing
// the other.
type EventSink interface {
	OnFunctionEntry(ls *LocalStorage, origAddr uint64)
	OnFunctionExit(ls *LocalStorage, origAddr uint64)
	OnCommonBlockEnd(ls *LocalStorage, desc *BlockInfo)
	OnMemoryEvent(ls *LocalStorage, pc, addr uint64, size int, kind AccessKind)
	OnLockedOpPre(ls *LocalStorage, pc, addr uint64, size int)
	OnLockedOpPost(ls *LocalStorage, pc, addr uint64, size int)
	OnIOMemPre(ls *LocalStorage, pc, addr uint64, size int)
	OnIOMemPost(ls *LocalStorage, pc, addr uint64, size int)
	OnBarrierPre(ls *LocalStorage, pc uint64, kind BarrierKind)
	OnBarrierPost(ls *LocalStorage, pc uint64, kind BarrierKind)
}

// BarrierKind mirrors insn.BarrierKind without internal/runtime importing
// internal/insn, since the wrapper ABI only needs the three-way
// classification, not the decoder's internal representation.
type BarrierKind int

const (
	BarrierNone BarrierKind = iota
	BarrierFull
	BarrierLoad
	BarrierStore
)

// AccessKind mirrors insn.AccessKind without internal/runtime importing
// internal/insn, for the same structural reason as BarrierKind.
type AccessKind int

const (
	AccessNone AccessKind = iota
	AccessRead
	AccessWrite
	AccessUpdate
)

// BlockInfo is the subset of a block descriptor the block-end wrapper
// needs: which value slots are populated, their widths, and the per-event
// (pc, size, kind) records and value-slot index to read the captured
// address from, per §3's block descriptor data model.
type BlockInfo struct {
	PC        uint64
	NumValues int
	Widths    [maxValueSlots]int // 1, 2 or 4 bytes-classification per the block's slot layout (§4.5)

	// NumEvents is the count of populated entries below.
	NumEvents int
	// ValueIndex[i] is the index into ls.Values holding event i's
	// effective address.
	ValueIndex [maxValueSlots]int
	EventPCs   [maxValueSlots]uint64
	EventSizes [maxValueSlots]int
	EventKinds [maxValueSlots]AccessKind
}

// Allocator is the local-storage allocator contract of §6, duplicated
// narrowly here for the same structural-typing reason as EventSink.
type Allocator interface {
	Alloc() *LocalStorage
	Free(ls *LocalStorage)
}

// Wrappers bridges the detour buffer's injected-code calling convention
// (single argument in %rax/%eax, every other scratch register and EFLAGS
// preserved — enforced by the assembly stub the deployer writes around
// each of these, not by Go itself) to the ordinary Go calling convention,
// per §4.11.
type Wrappers struct {
	Handler   EventSink
	Allocator Allocator

	ProcessStackAccesses bool
	SamplingRate         uint32

	threadSlots [256]uint32 // per-thread-index sampling counters, racy by design (§5)
}

// OnFunctionEntry allocates a LocalStorage record, stamps thread identity,
// notifies the event handler, and runs the per-function pre handler if
// one is registered. Returning nil tells the caller (the entry prologue)
// to take the fallback path.
func (w *Wrappers) OnFunctionEntry(origAddr uint64, fi *FuncInfo) *LocalStorage {
	ls := w.Allocator.Alloc()
	ls.TID = ThreadID()
	ls.FuncInfo = addrOfFuncInfo(fi)
	if w.SamplingRate != 0 {
		ls.TIndex = w.nextThreadIndex()
	}
	if w.Handler != nil {
		w.Handler.OnFunctionEntry(ls, origAddr)
	}
	if fi != nil {
		if pre := fi.OnInitPost(); pre != nil {
			pre()
		}
	}
	return ls
}

// OnFunctionExit mirrors OnFunctionEntry: notifies the handler, runs any
// registered post hook, and frees the record.
func (w *Wrappers) OnFunctionExit(ls *LocalStorage, origAddr uint64, fi *FuncInfo) {
	if w.Handler != nil {
		w.Handler.OnFunctionExit(ls, origAddr)
	}
	if fi != nil {
		if post := fi.OnExitPre(); post != nil {
			post()
		}
	}
	w.Allocator.Free(ls)
}

// FillCallInfo records the call's target in ci and points ls.CallInfo at
// ci, per §4.7's "Indirect call" sequence. It does not look up or change
// ci's Pre/Post/Replace slots; the thunk uses them as they already are.
func (w *Wrappers) FillCallInfo(ls *LocalStorage, ci *CallInfo, target uint64) {
	ci.Target = target
	ls.CallInfo = addrOfCallInfo(ci)
}

// OnCommonBlockEnd dispatches the captured memory-event notifications for
// one block and clears the staging state (write mask, temp fields) the
// instrumented code accumulated in ls.
func (w *Wrappers) OnCommonBlockEnd(ls *LocalStorage, desc *BlockInfo) {
	if w.Handler != nil {
		w.Handler.OnCommonBlockEnd(ls, desc)
		for i := 0; i < desc.NumEvents; i++ {
			addr := ls.Values[desc.ValueIndex[i]]
			w.Handler.OnMemoryEvent(ls, desc.EventPCs[i], addr, desc.EventSizes[i], desc.EventKinds[i])
		}
	}
	ls.WriteMask = 0
	ls.Temp, ls.Temp1 = 0, 0
}

func (w *Wrappers) OnLockedOpPre(ls *LocalStorage, pc, addr uint64, size int) {
	if w.Handler != nil {
		w.Handler.OnLockedOpPre(ls, pc, addr, size)
	}
}

func (w *Wrappers) OnLockedOpPost(ls *LocalStorage, pc, addr uint64, size int) {
	if w.Handler != nil {
		w.Handler.OnLockedOpPost(ls, pc, addr, size)
	}
}

func (w *Wrappers) OnIOMemPre(ls *LocalStorage, pc, addr uint64, size int) {
	if w.Handler != nil {
		w.Handler.OnIOMemPre(ls, pc, addr, size)
	}
}

func (w *Wrappers) OnIOMemPost(ls *LocalStorage, pc, addr uint64, size int) {
	if w.Handler != nil {
		w.Handler.OnIOMemPost(ls, pc, addr, size)
	}
}

// OnBarrierPre/Post run for barriers that do not themselves access memory;
// the kind was pre-staged into ls.Temp by the emitted sequence ahead of
// the call, per handlers.h.
func (w *Wrappers) OnBarrierPre(ls *LocalStorage, pc uint64) {
	if w.Handler != nil {
		w.Handler.OnBarrierPre(ls, pc, BarrierKind(ls.Temp))
	}
}

func (w *Wrappers) OnBarrierPost(ls *LocalStorage, pc uint64) {
	if w.Handler != nil {
		w.Handler.OnBarrierPost(ls, pc, BarrierKind(ls.Temp))
	}
}

// nextThreadIndex advances this thread's sampling counter with a racy,
// unsynchronized read-modify-write — the "skip N of M" scheme §5 accepts
// as inaccurate in exchange for a lock-free fast path — and returns the
// resulting slot value mod SamplingRate.
func (w *Wrappers) nextThreadIndex() uint32 {
	idx := uint32(ThreadID()) % uint32(len(w.threadSlots))
	w.threadSlots[idx]++
	return w.threadSlots[idx] % w.SamplingRate
}
