package kafka

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Fatalf("brokers = %v", cfg.Brokers)
	}
	if cfg.GroupID != "tributary" || cfg.Version != "3.6.0" {
		t.Fatalf("group/version = %q/%q", cfg.GroupID, cfg.Version)
	}
	if cfg.MaxWait != 250*time.Millisecond {
		t.Fatalf("max_wait = %v, want 250ms", cfg.MaxWait)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v1
brokers: [broker-1:9092, broker-2:9092]
group_id: orders-consumer
version: 3.8.0
max_wait: 1s
`)
	path := filepath.Join(dir, "kafka_source.yml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "broker-2:9092" {
		t.Fatalf("brokers = %v", cfg.Brokers)
	}
	if cfg.GroupID != "orders-consumer" || cfg.Version != "3.8.0" {
		t.Fatalf("group/version = %q/%q", cfg.GroupID, cfg.Version)
	}
	if cfg.MaxWait != time.Second {
		t.Fatalf("max_wait = %v, want 1s", cfg.MaxWait)
	}
}

func TestLoadConfigRejectsUnknownSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kafka_source.yml")
	if err := os.WriteFile(path, []byte("schema_version: v2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported schema_version")
	}
}
