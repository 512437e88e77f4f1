package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/care/screenshare/internal/config"
)

func TestDefaultValues(t *testing.T) {
	cfg := config.Default()
	if cfg.Capture.Backend != "mock" {
		t.Errorf("Backend = %q, want mock", cfg.Capture.Backend)
	}
	if cfg.Listener.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Listener.Port)
	}
	if cfg.ShutdownTimeout() != 5 {
		t.Errorf("ShutdownTimeout() = %d, want 5", cfg.ShutdownTimeout())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screenshare.yaml")
	yaml := "listener:\n  address: \"0.0.0.0\"\n  port: 9000\ncapture:\n  backend: \"x11\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() err = %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if cfg.Listener.Address != "0.0.0.0" || cfg.Listener.Port != 9000 {
		t.Errorf("Listener = %+v, want {0.0.0.0 9000}", cfg.Listener)
	}
	if cfg.Capture.Backend != "x11" {
		t.Errorf("Backend = %q, want x11", cfg.Capture.Backend)
	}
	if cfg.Health.Port != "8080" {
		t.Errorf("Health.Port = %q, want unchanged default 8080", cfg.Health.Port)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() on missing file: want error, got nil")
	}
}
