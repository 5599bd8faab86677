package kedr

import "github.com/euspectre/kedr-go/internal/runtime"

// BarrierKind classifies a memory barrier instruction for OnBarrierPre/Post,
// re-exported from internal/runtime so callers outside this module never
// need to import an internal package.
type BarrierKind = runtime.BarrierKind

const (
	BarrierNone  = runtime.BarrierNone
	BarrierFull  = runtime.BarrierFull
	BarrierLoad  = runtime.BarrierLoad
	BarrierStore = runtime.BarrierStore
)

// AccessKind classifies a memory event reported by OnMemoryEvent,
// re-exported from internal/runtime for the same reason as BarrierKind.
type AccessKind = runtime.AccessKind

const (
	AccessNone   = runtime.AccessNone
	AccessRead   = runtime.AccessRead
	AccessWrite  = runtime.AccessWrite
	AccessUpdate = runtime.AccessUpdate
)

// LocalStorage is the per-call record every event callback receives,
// re-exported from internal/runtime (§3's "local storage" data model).
type LocalStorage = runtime.LocalStorage

// BlockInfo describes the block a OnCommonBlockEnd notification closes.
type BlockInfo = runtime.BlockInfo

// EventHandler is the external collaborator spec.md §6 calls a "handler
// plugin": one method per callback family the instrumentation core emits.
// A no-op BaseEventHandler is provided so a real handler only needs to
// embed it and override the methods it cares about, the same minimal-
// interface precedent as the teacher's single-method ResolveFunc.
type EventHandler interface {
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
	OnCallPre(ls *LocalStorage, pc, target uint64)
	OnCallPost(ls *LocalStorage, pc, target uint64)
}

// BaseEventHandler implements every EventHandler method as a no-op, so a
// caller only overrides the events it needs.
type BaseEventHandler struct{}

func (BaseEventHandler) OnFunctionEntry(*LocalStorage, uint64)                        {}
func (BaseEventHandler) OnFunctionExit(*LocalStorage, uint64)                         {}
func (BaseEventHandler) OnCommonBlockEnd(*LocalStorage, *BlockInfo)                    {}
func (BaseEventHandler) OnMemoryEvent(*LocalStorage, uint64, uint64, int, AccessKind)  {}
func (BaseEventHandler) OnLockedOpPre(*LocalStorage, uint64, uint64, int)              {}
func (BaseEventHandler) OnLockedOpPost(*LocalStorage, uint64, uint64, int)             {}
func (BaseEventHandler) OnIOMemPre(*LocalStorage, uint64, uint64, int)                 {}
func (BaseEventHandler) OnIOMemPost(*LocalStorage, uint64, uint64, int)                {}
func (BaseEventHandler) OnBarrierPre(*LocalStorage, uint64, BarrierKind)               {}
func (BaseEventHandler) OnBarrierPost(*LocalStorage, uint64, BarrierKind)              {}
func (BaseEventHandler) OnCallPre(*LocalStorage, uint64, uint64)                       {}
func (BaseEventHandler) OnCallPost(*LocalStorage, uint64, uint64)                      {}

// This assertion checks that every EventHandler satisfies
// runtime.EventSink's method set (OnCallPre/Post aren't part of the wrapper
// ABI §4.11 dispatches — call-site handlers are resolved through
// FunctionHandlerTable/CallInfo instead), so Session hands an EventHandler
// to runtime.Wrappers directly with no adapter type in between.
var _ runtime.EventSink = EventHandler(nil)
