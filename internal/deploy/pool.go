// Package deploy implements §4.10: allocating the detour buffer within
// ±2GiB of the target's own code, copying each transformed function's
// emitted bytes into it, translating jump tables, applying relocations,
// and overwriting the original entry point with a near jump plus 0xCC
// padding.
package deploy

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("pkg", "deploy")

const (
	regionSize = 1 << 16 // 64KiB per region; grown on demand
	align      = 16
	reach      = 1 << 31 // rel32 reach, ±2GiB
)

// region is one mapped RWX buffer, bump-allocated from the front.
type region struct {
	mem  []byte
	base uint64
	used int
}

func (r *region) fit(size int) (int, bool) {
	start := (r.used + align - 1) &^ (align - 1)
	if start+size > len(r.mem) {
		return 0, false
	}
	r.used = start + size
	return start, true
}

// DetourPool is a bump allocator over one or more RWX regions kept within
// rel32 reach of hintAddr (normally the target's own code base), so every
// outward call/jmp thunk §4.7/§4.9 synthesizes can reach its destination
// with a plain rel32 displacement. One pool per kedr.Session (§9).
type DetourPool struct {
	mu      sync.Mutex
	hint    uint64
	regions []*region
}

// NewDetourPool creates a pool that will try to keep every allocation
// within ±2GiB of hintAddr.
func NewDetourPool(hintAddr uint64) *DetourPool {
	return &DetourPool{hint: hintAddr}
}

// reserve returns the address of size bytes of fresh, 16-byte-aligned RWX
// memory, allocating a new region if none of the existing ones have room.
func (p *DetourPool) reserve(size int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.regions {
		if off, ok := r.fit(size); ok {
			return r.base + uint64(off), nil
		}
	}

	need := size
	if need < regionSize {
		need = regionSize
	}
	r, err := mapNear(p.hint, need)
	if err != nil {
		return 0, fmt.Errorf("deploy: mapping detour region: %w", err)
	}
	if !withinReach(p.hint, r.base) {
		logger.WithField("base", hexAddr(r.base)).WithField("hint", hexAddr(p.hint)).
			Warn("detour region landed outside rel32 reach of target code; outward thunks to it will fail to link")
	}
	p.regions = append(p.regions, r)
	off, ok := r.fit(size)
	if !ok {
		return 0, fmt.Errorf("deploy: freshly mapped %d-byte region too small for %d-byte request", need, size)
	}
	return r.base + uint64(off), nil
}

func withinReach(hint, addr uint64) bool {
	if hint == 0 {
		return true
	}
	d := int64(addr) - int64(hint)
	if d < 0 {
		d = -d
	}
	return uint64(d) < reach
}

func hexAddr(v uint64) string { return fmt.Sprintf("0x%x", v) }
