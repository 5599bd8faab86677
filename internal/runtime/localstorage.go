// Package runtime provides the fixed-layout local storage record, thread
// identification, per-function handler publish/subscribe, the default
// wrapper functions the detour buffer calls into, and a lock-free slab
// allocator (§4.11).
package runtime

import (
	"sync/atomic"
	"unsafe"
)

// maxValueSlots mirrors internal/block's block value-slot capacity: each
// instrumented block's captured accesses land in this array.
const maxValueSlots = 16

// LocalStorage is the per-call record the instrumented code threads
// through %base: thread identity, the active function/call descriptors,
// captured access values and small scratch fields, reconstructed from the
// field list documented in original_source/sources/core/handlers.h (tid,
// tindex, fi, info, values[], write_mask, temp, temp1, dest_addr) plus the
// spill slot spec.md §4.7 requires for the base register's original value.
type LocalStorage struct {
	TID    uint64 // current thread's id, from ThreadID()
	TIndex uint32 // sampling thread-slot index, 0 if sampling disabled

	FuncInfo uintptr // *FuncInfo of the function currently executing
	CallInfo uintptr // *CallInfo of the call site currently being resolved

	Values    [maxValueSlots]uint64
	WriteMask uint32 // one bit per populated Values slot that is a write

	Temp  uint64 // barrier-kind / locked-op staging
	Temp1 uint64

	DestAddr uint64 // effective address most recently computed by lea <expr>, wreg

	SpillBase uint64 // saved logical value of %base across calls into wrappers
}

// Offsets into LocalStorage the emitter encodes into spill/load
// instructions, derived once from the struct layout itself rather than
// hand-computed, so they can never drift from an edit to the field list
// above.
const (
	OffTID       = unsafe.Offsetof(LocalStorage{}.TID)
	OffTIndex    = unsafe.Offsetof(LocalStorage{}.TIndex)
	OffFuncInfo  = unsafe.Offsetof(LocalStorage{}.FuncInfo)
	OffCallInfo  = unsafe.Offsetof(LocalStorage{}.CallInfo)
	OffValues    = unsafe.Offsetof(LocalStorage{}.Values)
	OffWriteMask = unsafe.Offsetof(LocalStorage{}.WriteMask)
	OffTemp      = unsafe.Offsetof(LocalStorage{}.Temp)
	OffTemp1     = unsafe.Offsetof(LocalStorage{}.Temp1)
	OffDestAddr  = unsafe.Offsetof(LocalStorage{}.DestAddr)
	OffSpillBase = unsafe.Offsetof(LocalStorage{}.SpillBase)
)

// FuncInfo is the per-target-function record a deployed function's
// LocalStorage.FuncInfo points at: the original address (for wrapper
// lookups), the base register chosen for it, and the sequence-consistent
// on-init/on-exit hook slots §5 describes.
type FuncInfo struct {
	OrigAddr uint64
	BaseReg  uint8

	onInitPost atomic.Pointer[func()]
	onExitPre  atomic.Pointer[func()]
}

// PublishOnInitPost installs (or replaces) the on-init-post callback with
// a sequence-consistent publish: the write is visible to any reader that
// observes the new pointer before the instrumented init function returns.
func (fi *FuncInfo) PublishOnInitPost(fn func()) { fi.onInitPost.Store(&fn) }

// OnInitPost returns the currently published callback, or nil.
func (fi *FuncInfo) OnInitPost() func() {
	p := fi.onInitPost.Load()
	if p == nil {
		return nil
	}
	return *p
}

// PublishOnExitPre installs (or replaces) the on-exit-pre callback.
func (fi *FuncInfo) PublishOnExitPre(fn func()) { fi.onExitPre.Store(&fn) }

// OnExitPre returns the currently published callback, or nil.
func (fi *FuncInfo) OnExitPre() func() {
	p := fi.onExitPre.Load()
	if p == nil {
		return nil
	}
	return *p
}

// CallInfo is the per-call-site descriptor an indirect/direct outward
// call's thunk consults: the resolved target, and the pre/post/replacement
// handlers a function-handler plugin registered for it.
type CallInfo struct {
	Target  uint64
	Pre     func(ls *LocalStorage)
	Post    func(ls *LocalStorage)
	Replace func(ls *LocalStorage)
}
