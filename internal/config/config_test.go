package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.Enabled {
		t.Error("sync enabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.DBPath != filepath.Join(dir, "questlink.db") {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
	if cfg.Relay.Port != 8080 {
		t.Errorf("relay.port = %d", cfg.Relay.Port)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
parent_id: p1
log_level: debug
sync:
  enabled: true
  server_url: http://relay.example:9000
  read_ttl_seconds: 30
relay:
  port: 9000
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ParentID != "p1" {
		t.Errorf("parent_id = %q", cfg.ParentID)
	}
	if !cfg.Sync.Enabled || cfg.Sync.ServerURL != "http://relay.example:9000" {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if got := cfg.Sync.ReadTTL().Seconds(); got != 30 {
		t.Errorf("read ttl = %vs", got)
	}
	if cfg.Relay.Port != 9000 {
		t.Errorf("relay.port = %d", cfg.Relay.Port)
	}
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sync: [oops"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("want error for malformed yaml")
	}
}
