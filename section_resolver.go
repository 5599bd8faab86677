package kedr

import (
	"github.com/euspectre/kedr-go/internal/discover"
	"github.com/euspectre/kedr-go/internal/discover/umh"
)

// SectionResolver wraps the user-mode-helper contract of spec.md §6:
// given a module name, resolve its named sections to addresses.
type SectionResolver interface {
	Resolve(moduleName string) (map[string]uint64, error)
}

// TextArea mirrors internal/discover.TextArea at the public surface so
// callers configuring a SectionResolver don't need to import an internal
// package.
type TextArea struct {
	Name  string
	Start uint64
	End   uint64
}

// NewUMHSectionResolver returns a SectionResolver backed by a debugfs-style
// control file at dir/"sections", validating every resolved address
// against validRanges (original_source/sections.c's precondition,
// supplemented per SPEC_FULL).
func NewUMHSectionResolver(dir string, validRanges []TextArea) SectionResolver {
	areas := make([]discover.TextArea, len(validRanges))
	for i, a := range validRanges {
		areas[i] = discover.TextArea(a)
	}
	return &umh.Resolver{Path: dir + "/sections", ValidRanges: areas}
}

// StaticSectionResolver is an in-process SectionResolver for tests: a
// fixed module-name-to-sections map supplied directly, no debugfs file
// involved.
type StaticSectionResolver map[string]map[string]uint64

func (r StaticSectionResolver) Resolve(moduleName string) (map[string]uint64, error) {
	sections, ok := r[moduleName]
	if !ok {
		return nil, newError(ErrInvalidSection, moduleName, errUnknownModule(moduleName))
	}
	return sections, nil
}

type errUnknownModule string

func (e errUnknownModule) Error() string { return "kedr: unknown module " + string(e) }
