package runtime

import "sync/atomic"

// HandlerPair is the (pre, post) function-handler-plugin slot for one
// call descriptor, published as a unit so readers never observe a pre from
// one registration paired with a post from another.
type HandlerPair struct {
	Pre  func(ls *LocalStorage)
	Post func(ls *LocalStorage)
}

// HandlerSlot holds the current HandlerPair for one function, published
// and subscribed without a lock on the read path per §5's "no lock on the
// fast path" requirement. Slow-path updates (registration/deregistration)
// still serialize through whatever mutex the caller already holds
// (kedr.Session.mu); HandlerSlot itself only guarantees the publish is
// atomic and visible.
type HandlerSlot struct {
	p atomic.Pointer[HandlerPair]
}

// Publish installs pair as the current handlers, visible to any
// subsequent Load on any goroutine (sequence-consistent per the Go memory
// model's guarantee for atomic.Pointer).
func (s *HandlerSlot) Publish(pair *HandlerPair) { s.p.Store(pair) }

// Load returns the current handlers, or nil if none are registered.
func (s *HandlerSlot) Load() *HandlerPair { return s.p.Load() }

// Clear removes any registered handlers.
func (s *HandlerSlot) Clear() { s.p.Store(nil) }
