package kedr

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasNoSampling(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SamplingRate != 0 {
		t.Errorf("SamplingRate = %d, want 0 (no sampling by default)", cfg.SamplingRate)
	}
	if cfg.ProcessStackAccesses {
		t.Error("ProcessStackAccesses = true, want false by default")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kedr.conf")
	body := `target_name = "mymodule"
umh_dir = "/sys/kernel/debug/kedr"
process_stack_accesses = false
sampling_rate = 4
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if cfg.TargetName != "mymodule" {
		t.Errorf("TargetName = %q, want mymodule", cfg.TargetName)
	}
	if cfg.SamplingRate != 4 {
		t.Errorf("SamplingRate = %d, want 4", cfg.SamplingRate)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kedr.conf")
	body := `target_name = "frombase"
sampling_rate = 4
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := LoadConfig(path, fs, []string{"-target-name", "fromflag", "-sampling-rate", "10"})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TargetName != "fromflag" {
		t.Errorf("TargetName = %q, want fromflag (CLI flag must override the file)", cfg.TargetName)
	}
	if cfg.SamplingRate != 10 {
		t.Errorf("SamplingRate = %d, want 10", cfg.SamplingRate)
	}
}

func TestLoadConfigMissingFileIsNotAnError(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.conf"), fs, nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil for a missing optional file", err)
	}
	if cfg.SamplingRate != 0 {
		t.Errorf("SamplingRate = %d, want 0 (defaults since the file doesn't exist)", cfg.SamplingRate)
	}
}
