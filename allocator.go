package kedr

import "github.com/euspectre/kedr-go/internal/runtime"

// LocalStorageAllocator is §6's allocator contract: Alloc/Free must be
// callable from instrumented code running in atomic context, so a real
// implementation must never block on the heap allocator's slow path.
type LocalStorageAllocator interface {
	Alloc() *LocalStorage
	Free(ls *LocalStorage)
}

// NewDefaultAllocator returns the sync.Pool-backed slab allocator
// internal/runtime provides, suitable whenever a caller doesn't need a
// custom allocation strategy.
func NewDefaultAllocator() LocalStorageAllocator {
	return runtime.NewSlabAllocator()
}
