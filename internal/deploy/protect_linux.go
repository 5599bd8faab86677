//go:build linux

package deploy

import (
	"golang.org/x/sys/unix"
)

const pageSize = 4096

// makeWritable temporarily (and permanently, for simplicity — the entry
// point is never written to again after the trampoline) opens up
// PROT_READ|PROT_WRITE|PROT_EXEC on the page(s) covering [addr, addr+size),
// so the trampoline bytes can be written into memory that was originally
// mapped read/execute-only.
func makeWritable(addr uint64, size int) error {
	pageStart := addr &^ (pageSize - 1)
	end := addr + uint64(size)
	span := end - pageStart
	mem := bufAt(pageStart, int(span))
	return unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC)
}
