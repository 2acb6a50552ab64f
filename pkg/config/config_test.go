package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.Outbox.BatchSize != 100 {
		t.Fatalf("expected default batch size 100, got %d", cfg.Outbox.BatchSize)
	}
	if cfg.Graph.GraphName != "default" {
		t.Fatalf("expected default graph name, got %q", cfg.Graph.GraphName)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("outbox:\n  batch_size: 250\n  max_retries: 3\ngraph:\n  graph_name: tenants\n")
	if err := os.WriteFile(path, yaml, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Outbox.BatchSize != 250 {
		t.Fatalf("expected overridden batch size 250, got %d", cfg.Outbox.BatchSize)
	}
	if cfg.Outbox.MaxRetries != 3 {
		t.Fatalf("expected overridden max retries 3, got %d", cfg.Outbox.MaxRetries)
	}
	if cfg.Graph.GraphName != "tenants" {
		t.Fatalf("expected overridden graph name, got %q", cfg.Graph.GraphName)
	}
}

func TestApplyDatabaseURLOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@host/db")
	cfg := New()
	applyDatabaseURLOverride(cfg)
	if cfg.Database.DSN != "postgres://u:p@host/db" {
		t.Fatalf("expected DSN override, got %q", cfg.Database.DSN)
	}
}
