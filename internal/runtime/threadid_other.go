//go:build !linux

package runtime

import (
	goruntime "runtime"
	"unsafe"
)

// threadID approximates an OS-thread id on platforms without Gettid: pin
// the calling goroutine to its OS thread and use the address of a local
// variable as a stable-enough per-thread value for the lifetime of the
// call. Good enough for the sampling/diagnostics use handlers.h documents;
// never used for correctness-critical dispatch.
func threadID() uint64 {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	var marker byte
	return uint64(uintptr(unsafe.Pointer(&marker)))
}
