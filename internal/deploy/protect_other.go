//go:build !linux

package deploy

import "fmt"

// makeWritable has no portable implementation outside the unix mprotect
// family; the detour pipeline targets x86 Linux kernels in practice (per
// spec.md's scope), so this only needs to exist for the package to build
// on a development machine running the rest of the test suite.
func makeWritable(addr uint64, size int) error {
	return fmt.Errorf("deploy: patching a live code page is only supported on linux")
}
