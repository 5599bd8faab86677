// Package umh implements kedr.SectionResolver against a debugfs-style
// control file: write the target's module name, then read back
// whitespace-separated "section address" pairs, the same request/response
// shape spec.md §6 describes for the user-mode helper.
package umh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/euspectre/kedr-go/internal/discover"
)

// Resolver talks to a debugfs control file at Path. Request writes the
// module name; the file is then read back for the resolved sections.
type Resolver struct {
	Path string

	// ValidRanges restricts which addresses Resolve will accept,
	// supplementing spec.md §6 with the original's sections.c
	// precondition that every resolved section address actually lies
	// inside the target's init/core range.
	ValidRanges []discover.TextArea
}

// ErrInvalidSection is returned when a resolved address falls outside
// every configured valid range.
type ErrInvalidSection struct {
	Section string
	Addr    uint64
}

func (e *ErrInvalidSection) Error() string {
	return fmt.Sprintf("umh: resolved section %q at 0x%x lies outside the target's text ranges", e.Section, e.Addr)
}

// Resolve writes moduleName to the control file and parses the response: one
// "name address" pair per line, address in hex with a leading 0x.
func (r *Resolver) Resolve(moduleName string) (map[string]uint64, error) {
	f, err := os.OpenFile(r.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("umh: open %s: %w", r.Path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, moduleName); err != nil {
		return nil, fmt.Errorf("umh: write request: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("umh: rewind: %w", err)
	}

	out := make(map[string]uint64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("umh: parse address for %q: %w", fields[0], err)
		}
		if !r.validate(addr) {
			return nil, &ErrInvalidSection{Section: fields[0], Addr: addr}
		}
		out[fields[0]] = addr
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("umh: read response: %w", err)
	}
	return out, nil
}

func (r *Resolver) validate(addr uint64) bool {
	if len(r.ValidRanges) == 0 {
		return true
	}
	for _, area := range r.ValidRanges {
		if addr >= area.Start && addr < area.End {
			return true
		}
	}
	return false
}
