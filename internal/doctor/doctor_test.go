package doctor

import (
	"context"
	"testing"

	"github.com/basket/taskqueue/internal/config"
	"github.com/basket/taskqueue/internal/store"
)

func TestCheckConfig_NilConfig(t *testing.T) {
	result := checkConfig(nil)
	if result.Status != "FAIL" {
		t.Fatalf("expected FAIL for nil config, got %s", result.Status)
	}
}

func TestCheckConfig_NeedsGenesis(t *testing.T) {
	cfg := &config.Config{NeedsGenesis: true, Engine: config.EngineConfig{Channels: []string{"default"}}}
	result := checkConfig(cfg)
	if result.Status != "WARN" {
		t.Fatalf("expected WARN, got %s", result.Status)
	}
}

func TestCheckConfig_NoChannels(t *testing.T) {
	cfg := &config.Config{}
	result := checkConfig(cfg)
	if result.Status != "FAIL" {
		t.Fatalf("expected FAIL for no channels, got %s", result.Status)
	}
}

func TestCheckConfig_Healthy(t *testing.T) {
	cfg := &config.Config{HomeDir: "/tmp/x", Engine: config.EngineConfig{Channels: []string{"default"}}}
	result := checkConfig(cfg)
	if result.Status != "PASS" {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckStore_NilStore(t *testing.T) {
	result := checkStore(context.Background(), nil)
	if result.Status != "SKIP" {
		t.Fatalf("expected SKIP for nil store, got %s", result.Status)
	}
}

func TestCheckStore_RoundTripSucceeds(t *testing.T) {
	s := store.NewMemStore()
	result := checkStore(context.Background(), s)
	if result.Status != "PASS" {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestRun_AggregatesResults(t *testing.T) {
	cfg := &config.Config{HomeDir: t.TempDir(), Engine: config.EngineConfig{Channels: []string{"default"}}}
	s := store.NewMemStore()

	d := Run(context.Background(), cfg, s, "test-version")
	if len(d.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(d.Results))
	}
	if d.System.Version != "test-version" {
		t.Fatalf("version = %q", d.System.Version)
	}
}
