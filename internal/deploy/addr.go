package deploy

import "unsafe"

// addrOf returns the absolute address of a mapped buffer's first byte.
func addrOf(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

// bufAt reinterprets the size bytes starting at addr (inside one of the
// pool's own regions) as a []byte, so the deployer can write into them
// directly.
func bufAt(addr uint64, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}
