package runtime

// ThreadID returns a cheap identifier for the calling OS thread, the
// user-space analogue of "the id of the current thread" handlers.h
// documents. See threadid_linux.go / threadid_other.go for the two
// implementations.
func ThreadID() uint64 { return threadID() }
