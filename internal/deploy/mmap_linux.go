//go:build linux

package deploy

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapNear maps an anonymous RWX region of size bytes, passing hint as the
// mmap address argument so the kernel tries to place it nearby (it is
// never combined with MAP_FIXED, so a busy hint just falls back to the
// kernel's normal placement instead of failing outright) — the same
// address-hint trick detour-style JIT allocators use to stay within a
// rel32 displacement of existing code, grounded on golang.org/x/sys/unix's
// raw syscall access (the pack's representative low-level syscall
// dependency; mmap-go's portable MapRegion has no address-hint parameter).
func mapNear(hint uint64, size int) (*region, error) {
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		uintptr(hintCandidate(hint)),
		uintptr(size),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON,
		^uintptr(0), // fd = -1
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("mmap: %w", errno)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &region{mem: mem, base: uint64(addr)}, nil
}

// hintCandidate biases the hint a little below the target so growth (the
// pool allocates sequentially) tends to stay on the near side of it.
func hintCandidate(hint uint64) uint64 {
	if hint == 0 {
		return 0
	}
	const bias = 64 << 20 // 64MiB
	if hint > bias {
		return hint - bias
	}
	return 0
}
