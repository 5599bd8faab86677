package kedr

import (
	"testing"

	"github.com/euspectre/kedr-go/internal/insn"
)

func TestPinProviderUnpinProvider(t *testing.T) {
	sess := NewSession(DefaultConfig(), insn.Mode64, 0x400000)

	if got := sess.PinProvider(); got != 1 {
		t.Errorf("PinProvider() = %d, want 1", got)
	}
	if got := sess.PinProvider(); got != 2 {
		t.Errorf("PinProvider() = %d, want 2", got)
	}
	if got := sess.UnpinProvider(); got != 1 {
		t.Errorf("UnpinProvider() = %d, want 1", got)
	}
}

func TestSetPluginDataAndPluginData(t *testing.T) {
	sess := NewSession(DefaultConfig(), insn.Mode64, 0x400000)

	if _, ok := sess.PluginData("absent"); ok {
		t.Error("PluginData(\"absent\") = true, want false before any Set")
	}

	sess.SetPluginData("key", 42)
	v, ok := sess.PluginData("key")
	if !ok {
		t.Fatal("PluginData(\"key\") = false after SetPluginData, want true")
	}
	if v.(int) != 42 {
		t.Errorf("PluginData(\"key\") = %v, want 42", v)
	}
}

func TestWithHandlerRebuildsBridge(t *testing.T) {
	sess := NewSession(DefaultConfig(), insn.Mode64, 0x400000)
	before := sess.bridge.wrappers()

	sess.WithHandler(BaseEventHandler{})
	after := sess.bridge.wrappers()

	// Both resolve to the same package-level dispatch functions regardless
	// of which handler is installed, since dispatch goes through the active
	// runtime.Wrappers rather than through addresses baked per-handler.
	if before.OnFunctionEntry != after.OnFunctionEntry {
		t.Error("wrappers() address changed after WithHandler, want it stable")
	}
}

func TestNewSessionStartsWithEmptySkippedFuncs(t *testing.T) {
	sess := NewSession(DefaultConfig(), insn.Mode64, 0x400000)
	if len(sess.SkippedFuncs) != 0 {
		t.Errorf("len(SkippedFuncs) = %d, want 0 on a fresh Session", len(sess.SkippedFuncs))
	}
}
