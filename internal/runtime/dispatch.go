package runtime

import "unsafe"

// active is the single Wrappers instance backing whatever session is
// currently deployed (exactly one target is instrumented by a session at
// a time, per §5/§9). It is published once by SetActive before any
// instrumented code can run, and read (never written) from instrumented
// code's call sites afterward.
var active *Wrappers

// SetActive installs w as the Wrappers every dispatch function below
// forwards to. The dispatch functions are kept as ordinary, closure-free
// top-level funcs — rather than bound methods on a per-session value —
// specifically so each has a single stable entry address: that address
// is what internal/deploy bakes into every CALL rel32 site the transform
// phases synthesize, so it must exist independent of any particular
// Wrappers value.
func SetActive(w *Wrappers) { active = w }

// DispatchFunctionEntry backs cfg.W.OnFunctionEntry.
func DispatchFunctionEntry(origAddr uint64, fiAddr uintptr) uintptr {
	return addrOfLocalStorage(active.OnFunctionEntry(origAddr, ptrFuncInfo(fiAddr)))
}

// DispatchFunctionExit backs cfg.W.OnFunctionExit.
func DispatchFunctionExit(lsAddr uintptr, origAddr uint64, fiAddr uintptr) {
	active.OnFunctionExit(ptrLocalStorage(lsAddr), origAddr, ptrFuncInfo(fiAddr))
}

// DispatchFillCallInfo backs cfg.W.FillCallInfo.
func DispatchFillCallInfo(lsAddr uintptr, ciAddr uintptr, target uint64) {
	active.FillCallInfo(ptrLocalStorage(lsAddr), ptrCallInfo(ciAddr), target)
}

// DispatchCommonBlockEnd backs cfg.W.OnCommonBlockEnd.
func DispatchCommonBlockEnd(lsAddr uintptr, descAddr uintptr) {
	active.OnCommonBlockEnd(ptrLocalStorage(lsAddr), ptrBlockInfo(descAddr))
}

// DispatchLockedOpPre/Post back cfg.W.OnLockedOpPre/Post.
func DispatchLockedOpPre(lsAddr uintptr, pc, addr uint64, size int) {
	active.OnLockedOpPre(ptrLocalStorage(lsAddr), pc, addr, size)
}

func DispatchLockedOpPost(lsAddr uintptr, pc, addr uint64, size int) {
	active.OnLockedOpPost(ptrLocalStorage(lsAddr), pc, addr, size)
}

// DispatchIOMemPre/Post back cfg.W.OnIOMemPre/Post.
func DispatchIOMemPre(lsAddr uintptr, pc, addr uint64, size int) {
	active.OnIOMemPre(ptrLocalStorage(lsAddr), pc, addr, size)
}

func DispatchIOMemPost(lsAddr uintptr, pc, addr uint64, size int) {
	active.OnIOMemPost(ptrLocalStorage(lsAddr), pc, addr, size)
}

// DispatchBarrierPre/Post back cfg.W.OnBarrierPre/Post.
func DispatchBarrierPre(lsAddr uintptr, pc uint64) {
	active.OnBarrierPre(ptrLocalStorage(lsAddr), pc)
}

func DispatchBarrierPost(lsAddr uintptr, pc uint64) {
	active.OnBarrierPost(ptrLocalStorage(lsAddr), pc)
}

func addrOfLocalStorage(ls *LocalStorage) uintptr {
	if ls == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(ls))
}
