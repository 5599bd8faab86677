package runtime

import "sync"

// SlabAllocator is the default kedr.LocalStorageAllocator: a sync.Pool of
// LocalStorage records so Alloc/Free never walk the heap allocator's slow
// path from instrumented code running in atomic context, matching §6's
// "must be callable in atomic context" constraint.
type SlabAllocator struct {
	pool sync.Pool
}

// NewSlabAllocator returns a ready-to-use SlabAllocator.
func NewSlabAllocator() *SlabAllocator {
	return &SlabAllocator{pool: sync.Pool{New: func() any { return new(LocalStorage) }}}
}

// Alloc returns a zeroed LocalStorage record.
func (a *SlabAllocator) Alloc() *LocalStorage {
	ls := a.pool.Get().(*LocalStorage)
	*ls = LocalStorage{}
	return ls
}

// Free returns ls to the pool.
func (a *SlabAllocator) Free(ls *LocalStorage) { a.pool.Put(ls) }
