package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaults verifies loading without a file yields the development
// defaults.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Search.K1 != 1.2 || cfg.Search.B != 0.75 {
		t.Errorf("ranking params = %f/%f", cfg.Search.K1, cfg.Search.B)
	}
	if cfg.Kafka.Topics.PublicationIngest != "publication-ingest" {
		t.Errorf("ingest topic = %q", cfg.Kafka.Topics.PublicationIngest)
	}
	if cfg.Postgres.Enabled {
		t.Error("postgres enabled by default")
	}
}

// TestLoadFile verifies YAML values override defaults while unset fields
// keep them.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
indexer:
  checkpointInterval: 2m
search:
  fieldBoosts:
    title: 2.0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Indexer.CheckpointInterval != 2*time.Minute {
		t.Errorf("CheckpointInterval = %v", cfg.Indexer.CheckpointInterval)
	}
	if got := cfg.Search.Boost("title"); got != 2.0 {
		t.Errorf("title boost = %f, want 2.0", got)
	}
	// Unset fields keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
}

// TestLoadMissingFile verifies a bad path is an error rather than silent
// defaults.
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() succeeded on missing file")
	}
}

// TestEnvOverrides verifies PF_* variables win over file values.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("PF_SERVER_PORT", "7070")
	t.Setenv("PF_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PF_INDEXER_DATA_DIR", "/var/lib/pubfinder")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Indexer.DataDir != "/var/lib/pubfinder" {
		t.Errorf("Indexer.DataDir = %q", cfg.Indexer.DataDir)
	}
}

// TestBoostDefault verifies fields absent from the boost table weigh 1.0.
func TestBoostDefault(t *testing.T) {
	cfg := SearchConfig{FieldBoosts: map[string]float64{"title": 1.3}}
	if got := cfg.Boost("abstract"); got != 1.0 {
		t.Errorf("Boost(abstract) = %f, want 1.0", got)
	}
	if got := cfg.Boost("title"); got != 1.3 {
		t.Errorf("Boost(title) = %f, want 1.3", got)
	}
}
