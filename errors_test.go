package kedr

import (
	"errors"
	"strings"
	"testing"
)

func TestErrKindStringAndErrno(t *testing.T) {
	cases := []struct {
		kind      ErrKind
		wantStr   string
		wantErrno string
	}{
		{ErrDecode, "decode", "EILSEQ"},
		{ErrOutOfMemory, "out_of_memory", "ENOMEM"},
		{ErrLifecycleConflict, "lifecycle_conflict", "EBUSY"},
		{ErrInvalidSection, "invalid_section", "EFAULT"},
		{ErrKind(99), "unknown", "EINVAL"},
	}
	for _, c := range cases {
		if got := c.kind.String(); got != c.wantStr {
			t.Errorf("%v.String() = %q, want %q", c.kind, got, c.wantStr)
		}
		if got := c.kind.Errno(); got != c.wantErrno {
			t.Errorf("%v.Errno() = %q, want %q", c.kind, got, c.wantErrno)
		}
	}
}

func TestErrorWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("bad opcode")
	err := newError(ErrDecode, "foo", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true (Unwrap must expose the cause)")
	}
	if !strings.Contains(err.Error(), "foo") || !strings.Contains(err.Error(), "decode") {
		t.Errorf("Error() = %q, want it to mention the function name and kind", err.Error())
	}
	if err.Errno() != "EILSEQ" {
		t.Errorf("Errno() = %q, want EILSEQ", err.Errno())
	}
}

func TestErrorWithoutFuncNameOmitsIt(t *testing.T) {
	err := &Error{Kind: ErrOutOfMemory, Err: errors.New("no space")}
	if strings.Contains(err.Error(), ": : ") {
		t.Errorf("Error() = %q, want no empty function-name segment", err.Error())
	}
}
