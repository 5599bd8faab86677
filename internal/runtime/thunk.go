package runtime

// CallThunk and JumpThunkOut are the two generic trampolines every
// indirect or direct outward call/jump site is redirected through by
// internal/transform (§4.7's "CALL thunk" / "JMP thunk"): the injected
// CALL rel32 lands here with the local-storage pointer in %rax, which is
// also where Go's register-based ABI places a function's first integer
// argument, so these are ordinary top-level Go functions rather than
// hand-assembled stubs. Each runs the call descriptor's Pre hook,
// transfers control to its Replacement (if a function-handler plugin
// registered one) or the original target, then runs Post.
//
// Both thunks resolve the descriptor the same way: CallThunk's caller
// already wrote LocalStorage.CallInfo via FillCallInfo before the CALL
// landed here, and JumpThunkOut's caller did the same for the outward
// jump case, per emitDirectOutwardThunk's comment on why the descriptor
// travels through local storage rather than the stack.
func CallThunk(lsAddr uintptr) {
	runThunk(lsAddr)
}

// JumpThunkOut converts what was a tail jump in the original code into a
// call-then-return here: the return address already on the stack belongs
// to the original function's own caller, so returning from this Go call
// reproduces the same control flow the original JMP would have, once the
// target itself returns.
func JumpThunkOut(lsAddr uintptr) {
	runThunk(lsAddr)
}

func runThunk(lsAddr uintptr) {
	ls := ptrLocalStorage(lsAddr)
	if ls == nil {
		return
	}
	ci := ptrCallInfo(ls.CallInfo)
	if ci == nil {
		return
	}
	if ci.Pre != nil {
		ci.Pre(ls)
	}
	if ci.Replace != nil {
		ci.Replace(ls)
	} else if ci.Target != 0 {
		callAddr(ci.Target)
	}
	if ci.Post != nil {
		ci.Post(ls)
	}
}
