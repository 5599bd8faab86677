package ir

// Arena owns the nodes of a single function's IR in a flat, index-stable
// slice. Unlike the original's intrusive doubly-linked list (kedr_ir_node's
// first/last/dest_inner raw pointers), nodes are referenced by NodeID so
// that the IR can be serialized, copied and walked without pointer-chasing.
//
// Nodes are appended in final instruction order during the single build
// pass (including any short-form expansion); nothing past that pass
// inserts into the middle of the arena, so indices never need renumbering.
// A node can still be marked deleted (e.g. an instruction folded away by a
// later transform) without shifting anything after it — Walk skips
// tombstones.
type Arena struct {
	nodes []Node
}

// NewArena allocates an Arena with room for capacity nodes.
func NewArena(capacity int) *Arena {
	return &Arena{nodes: make([]Node, 0, capacity)}
}

// Add appends n and returns its NodeID.
func (a *Arena) Add(n Node) NodeID {
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	return id
}

// Get returns a pointer to the node at id. The pointer is valid until the
// next Add (which may reallocate the backing slice).
func (a *Arena) Get(id NodeID) *Node {
	if id == NoNode {
		return nil
	}
	return &a.nodes[id]
}

// Len returns the number of nodes, including tombstones.
func (a *Arena) Len() int { return len(a.nodes) }

// Delete marks id as removed. Its slot remains allocated (indices of every
// other node stay stable) but Walk skips it.
func (a *Arena) Delete(id NodeID) { a.nodes[id].deleted = true }

// Deleted reports whether id has been removed.
func (a *Arena) Deleted(id NodeID) bool { return a.nodes[id].deleted }

// Walk calls fn for every live (non-deleted) node in index order, stopping
// early if fn returns false.
func (a *Arena) Walk(fn func(id NodeID, n *Node) bool) {
	for i := range a.nodes {
		if a.nodes[i].deleted {
			continue
		}
		if !fn(NodeID(i), &a.nodes[i]) {
			return
		}
	}
}

// Next returns the next live node after id, or NoNode at the end.
func (a *Arena) Next(id NodeID) NodeID {
	for i := int(id) + 1; i < len(a.nodes); i++ {
		if !a.nodes[i].deleted {
			return NodeID(i)
		}
	}
	return NoNode
}

// Prev returns the previous live node before id, or NoNode at the start.
func (a *Arena) Prev(id NodeID) NodeID {
	for i := int(id) - 1; i >= 0; i-- {
		if !a.nodes[i].deleted {
			return NodeID(i)
		}
	}
	return NoNode
}

// First returns the first live node, or NoNode if the arena is empty.
func (a *Arena) First() NodeID { return a.Next(-1) }

// Last returns the last live node, or NoNode if the arena is empty.
func (a *Arena) Last() NodeID { return a.Prev(NodeID(len(a.nodes))) }

// LinkSequential initializes every node's Next/Prev to match plain index
// (build) order. Called once after Build finishes appending nodes and
// before any transform-time insertion begins.
func (a *Arena) LinkSequential() {
	prev := NoNode
	for i := range a.nodes {
		if a.nodes[i].deleted {
			continue
		}
		id := NodeID(i)
		a.nodes[i].Prev = prev
		if prev != NoNode {
			a.nodes[prev].Next = id
		}
		prev = id
	}
	if prev != NoNode {
		a.nodes[prev].Next = NoNode
	}
}

// The linked list has no head/tail fields: WalkLinked starts from a node
// the caller supplies, and InsertAfter/InsertBefore only rewire the
// Next/Prev links of the new node's neighbours.

// WalkLinked calls fn for every node in actual instruction order
// (following Next), the order transform and emit must use once insertions
// have happened. Stops early if fn returns false.
func (a *Arena) WalkLinked(start NodeID, fn func(id NodeID, n *Node) bool) {
	for id := start; id != NoNode; id = a.nodes[id].Next {
		if a.nodes[id].deleted {
			continue
		}
		if !fn(id, &a.nodes[id]) {
			return
		}
	}
}

// InsertAfter appends n as a new node linked immediately after "after" in
// instruction order, and returns its NodeID. The underlying slice only
// ever grows by append; no existing NodeID's meaning changes.
func (a *Arena) InsertAfter(after NodeID, n Node) NodeID {
	nextID := a.nodes[after].Next
	n.Prev, n.Next = after, nextID
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	a.nodes[after].Next = id
	if nextID != NoNode {
		a.nodes[nextID].Prev = id
	}
	return id
}

// InsertBefore appends n as a new node linked immediately before "before"
// in instruction order, and returns its NodeID.
func (a *Arena) InsertBefore(before NodeID, n Node) NodeID {
	prevID := a.nodes[before].Prev
	n.Prev, n.Next = prevID, before
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	a.nodes[before].Prev = id
	if prevID != NoNode {
		a.nodes[prevID].Next = id
	}
	return id
}

// Unlink marks id deleted and splices it out of the Next/Prev chain so
// WalkLinked skips it without needing to check Deleted itself.
func (a *Arena) Unlink(id NodeID) {
	n := &a.nodes[id]
	n.deleted = true
	if n.Prev != NoNode {
		a.nodes[n.Prev].Next = n.Next
	}
	if n.Next != NoNode {
		a.nodes[n.Next].Prev = n.Prev
	}
}
