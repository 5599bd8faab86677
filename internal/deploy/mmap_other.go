//go:build !linux

package deploy

import (
	mmap "github.com/edsrzf/mmap-go"
)

// mapNear falls back to mmap-go's portable, unhinted anonymous mapping on
// non-Linux targets: there is no portable address-hint parameter in
// mmap-go's MapRegion, so the resulting region may land outside ±2GiB of
// hint (reserve logs a warning when that happens). The detour
// pipeline itself is x86-only regardless, so this path only matters for
// running the test suite on a non-Linux development machine.
func mapNear(hint uint64, size int) (*region, error) {
	m, err := mmap.MapRegion(nil, size, mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
	if err != nil {
		return nil, err
	}
	return &region{mem: m, base: addrOf(m)}, nil
}
