package kedr

import (
	"fmt"
	"sort"

	"github.com/euspectre/kedr-go/internal/runtime"
)

// FunctionHandlerEntry is one (OriginalAddress, Pre, Post, Replacement)
// registration a function-handler plugin contributes, per spec.md §6.
type FunctionHandlerEntry struct {
	OriginalAddress uint64
	Pre             func(ls *LocalStorage)
	Post            func(ls *LocalStorage)
	Replacement     func(ls *LocalStorage)
}

// FunctionHandlerTable is a binary-searchable-by-address table of call-site
// handlers, built once per plugin registration and merged across plugins
// with MergeFunctionHandlerTables.
type FunctionHandlerTable struct {
	entries []FunctionHandlerEntry
}

// NewFunctionHandlerTable builds a table from entries, sorted by address.
func NewFunctionHandlerTable(entries []FunctionHandlerEntry) *FunctionHandlerTable {
	sorted := append([]FunctionHandlerEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OriginalAddress < sorted[j].OriginalAddress })
	return &FunctionHandlerTable{entries: sorted}
}

// Lookup finds the entry for addr, if any, via sort.Search per spec.md §6.
func (t *FunctionHandlerTable) Lookup(addr uint64) (FunctionHandlerEntry, bool) {
	if t == nil {
		return FunctionHandlerEntry{}, false
	}
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].OriginalAddress >= addr })
	if i < len(t.entries) && t.entries[i].OriginalAddress == addr {
		return t.entries[i], true
	}
	return FunctionHandlerEntry{}, false
}

// ErrDuplicateHandler reports that two tables being merged both claim the
// same original address.
type ErrDuplicateHandler struct {
	Address uint64
}

func (e *ErrDuplicateHandler) Error() string {
	return fmt.Sprintf("kedr: duplicate function handler registration for address 0x%x", e.Address)
}

// MergeFunctionHandlerTables concatenates tables and re-sorts by address,
// erroring if two entries claim the same OriginalAddress.
func MergeFunctionHandlerTables(tables ...*FunctionHandlerTable) (*FunctionHandlerTable, error) {
	var all []FunctionHandlerEntry
	for _, t := range tables {
		if t == nil {
			continue
		}
		all = append(all, t.entries...)
	}
	merged := NewFunctionHandlerTable(all)
	for i := 1; i < len(merged.entries); i++ {
		if merged.entries[i].OriginalAddress == merged.entries[i-1].OriginalAddress {
			return nil, &ErrDuplicateHandler{Address: merged.entries[i].OriginalAddress}
		}
	}
	return merged, nil
}

// toCallInfo adapts an entry into the runtime.CallInfo a thunk resolves,
// used by Session when it fills a call site's descriptor.
func (e FunctionHandlerEntry) toCallInfo() *runtime.CallInfo {
	return &runtime.CallInfo{Target: e.OriginalAddress, Pre: e.Pre, Post: e.Post, Replace: e.Replacement}
}
