package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/basket/taskqueue/internal/config"
)

func withHome(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("TASKQUEUE_HOME", dir)
}

func TestLoad_NeedsGenesisWhenConfigMissing(t *testing.T) {
	withHome(t, t.TempDir())
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.NeedsGenesis {
		t.Fatal("expected NeedsGenesis to be true for a fresh home dir")
	}
	if cfg.Store.Addr != "127.0.0.1:6379" {
		t.Fatalf("store.addr = %q, want default", cfg.Store.Addr)
	}
	if cfg.Engine.MaxWorkers != 5 {
		t.Fatalf("max_workers = %d, want default 5", cfg.Engine.MaxWorkers)
	}
}

func TestLoad_ReadsYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)
	yaml := `
store:
  addr: redis.internal:6380
  prefix: myapp:tasks
engine:
  channels: ["emails", "reports"]
  max_workers: 20
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NeedsGenesis {
		t.Fatal("expected NeedsGenesis to be false when config.yaml exists")
	}
	if cfg.Store.Addr != "redis.internal:6380" {
		t.Fatalf("store.addr = %q", cfg.Store.Addr)
	}
	if cfg.Store.Prefix != "myapp:tasks" {
		t.Fatalf("store.prefix = %q", cfg.Store.Prefix)
	}
	if len(cfg.Engine.Channels) != 2 || cfg.Engine.Channels[0] != "emails" {
		t.Fatalf("channels = %v", cfg.Engine.Channels)
	}
	if cfg.Engine.MaxWorkers != 20 {
		t.Fatalf("max_workers = %d, want 20", cfg.Engine.MaxWorkers)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)
	yaml := `store:
  addr: yaml-configured:6379
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKQUEUE_REDIS_ADDR", "env-configured:6379")

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Addr != "env-configured:6379" {
		t.Fatalf("store.addr = %q, want env override to win", cfg.Store.Addr)
	}
}

func TestEngineConfig_DurationHelpers(t *testing.T) {
	e := config.EngineConfig{
		HeartbeatIntervalSeconds: 15,
		LivenessThresholdSeconds: 60,
		StaleThresholdSeconds:    120,
		DrainTimeoutSeconds:      30,
	}
	if e.HeartbeatInterval().Seconds() != 15 {
		t.Fatalf("HeartbeatInterval = %v", e.HeartbeatInterval())
	}
	if e.LivenessThreshold().Seconds() != 60 {
		t.Fatalf("LivenessThreshold = %v", e.LivenessThreshold())
	}
	if e.StaleThreshold().Seconds() != 120 {
		t.Fatalf("StaleThreshold = %v", e.StaleThreshold())
	}
	if e.DrainTimeout().Seconds() != 30 {
		t.Fatalf("DrainTimeout = %v", e.DrainTimeout())
	}
}
