package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
	if cfg.MaxRotationRetries != 5 {
		t.Errorf("MaxRotationRetries = %d", cfg.MaxRotationRetries)
	}
	if cfg.DefaultDailyLimit != 1 {
		t.Errorf("DefaultDailyLimit = %d", cfg.DefaultDailyLimit)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Error("empty path should return defaults")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enrolld.yaml")
	content := "addr: \":9090\"\nconcurrency: 8\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Concurrency != 8 || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	// Untouched fields keep defaults.
	if cfg.MaxRotationRetries != 5 {
		t.Errorf("MaxRotationRetries = %d, want default 5", cfg.MaxRotationRetries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
