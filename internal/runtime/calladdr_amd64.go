//go:build amd64

package runtime

// callAddr transfers control to an arbitrary absolute address and
// returns once that address's own code executes a RET, implemented in
// calladdr_amd64.s. Go has no portable way to call a function pointer
// that wasn't resolved at compile or link time, so this fills the same
// role cgo's generated stubs play for calling through a C function
// pointer.
func callAddr(addr uint64)
