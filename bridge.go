package kedr

import (
	"reflect"

	"github.com/euspectre/kedr-go/internal/runtime"
	"github.com/euspectre/kedr-go/internal/transform"
)

// bridge owns the runtime.Wrappers backing one Session and resolves its
// dispatch functions to the stable addresses transform.Config.W records
// against every synthesized call site (§4.11). funcAddr only works
// because internal/runtime's Dispatch* functions are top-level and
// closure-free: a bound method value's address isn't a directly callable
// entry point the way a plain function's is.
type bridge struct {
	w *runtime.Wrappers
}

func newBridge(handler EventHandler, alloc LocalStorageAllocator, processStack bool, samplingRate uint32) *bridge {
	w := &runtime.Wrappers{
		Handler:              handler,
		Allocator:            alloc,
		ProcessStackAccesses: processStack,
		SamplingRate:         samplingRate,
	}
	runtime.SetActive(w)
	return &bridge{w: w}
}

func (b *bridge) wrappers() transform.Wrappers {
	return transform.Wrappers{
		OnFunctionEntry:  funcAddr(runtime.DispatchFunctionEntry),
		OnFunctionExit:   funcAddr(runtime.DispatchFunctionExit),
		FillCallInfo:     funcAddr(runtime.DispatchFillCallInfo),
		CallThunk:        funcAddr(runtime.CallThunk),
		JumpThunkOut:     funcAddr(runtime.JumpThunkOut),
		OnCommonBlockEnd: funcAddr(runtime.DispatchCommonBlockEnd),
		OnLockedOpPre:    funcAddr(runtime.DispatchLockedOpPre),
		OnLockedOpPost:   funcAddr(runtime.DispatchLockedOpPost),
		OnIOMemPre:       funcAddr(runtime.DispatchIOMemPre),
		OnIOMemPost:      funcAddr(runtime.DispatchIOMemPost),
		OnBarrierPre:     funcAddr(runtime.DispatchBarrierPre),
		OnBarrierPost:    funcAddr(runtime.DispatchBarrierPost),
	}
}

func funcAddr(fn any) uint64 {
	return uint64(reflect.ValueOf(fn).Pointer())
}
