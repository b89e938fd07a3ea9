package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
	if cfg.Store.Type != "file" || cfg.Store.Dir != "results" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Batch.TargetRowsPerDay != 50000 || cfg.Batch.MaxSize != 250 {
		t.Errorf("Batch = %+v", cfg.Batch)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  listen: ":9090"
store:
  type: sqlite
  path: /var/lib/spdata/jobs.db
batch:
  size: 10
limits:
  rpm:
    "gemini:gemini-2.5-flash": 5
log:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
	if cfg.Store.Type != "sqlite" || cfg.Store.Path != "/var/lib/spdata/jobs.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Batch.Size != 10 {
		t.Errorf("Batch.Size = %d", cfg.Batch.Size)
	}
	if got := cfg.Limits.RPM["gemini:gemini-2.5-flash"]; got != 5 {
		t.Errorf("Limits.RPM = %v", cfg.Limits.RPM)
	}
	if !cfg.Log.JSON || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	// Unset keys keep defaults
	if cfg.Data.DatasetDir != "data" {
		t.Errorf("Data.DatasetDir = %q", cfg.Data.DatasetDir)
	}
}

func TestLoadMalformedSearchedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)

	if _, err := Load(""); err == nil {
		t.Fatal("Load() should surface a malformed config.yaml found on the search path")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() expected error for missing explicit config file")
	}
}
