package fallback

import "unsafe"

// addrOf returns the absolute address of a mapped buffer's first byte, so
// relocation math can compute PC-relative displacements against it. mmap-go
// guarantees the mapping does not move (it is not Go-GC-managed memory).
func addrOf(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}
