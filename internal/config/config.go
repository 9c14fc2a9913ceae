// Package config loads and hot-reloads the task queue's YAML configuration:
// the store connection, the default channel set, worker pool sizing, and
// the heartbeat/liveness timings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig describes how to reach the backing Redis-compatible store.
type StoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// EngineConfig controls a single runner process's worker pool and liveness
// cadence.
type EngineConfig struct {
	Channels                 []string `yaml:"channels"`
	MaxWorkers               int      `yaml:"max_workers"`
	HeartbeatIntervalSeconds int      `yaml:"heartbeat_interval_seconds"`
	LivenessThresholdSeconds int      `yaml:"liveness_threshold_seconds"`
	StaleThresholdSeconds    int      `yaml:"stale_threshold_seconds"`
	DrainTimeoutSeconds      int      `yaml:"drain_timeout_seconds"`
}

// Config is the task queue's full on-disk configuration.
type Config struct {
	Store        StoreConfig  `yaml:"store"`
	Engine       EngineConfig `yaml:"engine"`
	LogLevel     string       `yaml:"log_level"`
	DefaultTaskExpiresSeconds int `yaml:"default_task_expires_seconds"`

	// HomeDir and NeedsGenesis are populated by Load and never read from YAML.
	HomeDir      string `yaml:"-"`
	NeedsGenesis bool   `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Addr:   "127.0.0.1:6379",
			Prefix: "taskqueue:tasks",
		},
		Engine: EngineConfig{
			Channels:                 []string{"default"},
			MaxWorkers:               5,
			HeartbeatIntervalSeconds: 15,
			LivenessThresholdSeconds: 60,
			StaleThresholdSeconds:    120,
			DrainTimeoutSeconds:      30,
		},
		LogLevel:                 "info",
		DefaultTaskExpiresSeconds: int((30 * time.Minute).Seconds()),
	}
}

// HomeDir returns the directory the task queue keeps its config and logs
// under, honoring TASKQUEUE_HOME.
func HomeDir() string {
	if override := os.Getenv("TASKQUEUE_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".taskqueue")
}

// ConfigPath returns the config.yaml path under homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from HomeDir(), applying defaults for anything
// unset and environment overrides on top. A missing config file is not an
// error: NeedsGenesis is set and defaults are used as-is.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create taskqueue home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.NeedsGenesis = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Store.Prefix == "" {
		cfg.Store.Prefix = "taskqueue:tasks"
	}
	if cfg.Store.Addr == "" {
		cfg.Store.Addr = "127.0.0.1:6379"
	}
	if len(cfg.Engine.Channels) == 0 {
		cfg.Engine.Channels = []string{"default"}
	}
	if cfg.Engine.MaxWorkers <= 0 {
		cfg.Engine.MaxWorkers = 5
	}
	if cfg.Engine.HeartbeatIntervalSeconds <= 0 {
		cfg.Engine.HeartbeatIntervalSeconds = 15
	}
	if cfg.Engine.LivenessThresholdSeconds <= 0 {
		cfg.Engine.LivenessThresholdSeconds = 60
	}
	if cfg.Engine.StaleThresholdSeconds <= 0 {
		cfg.Engine.StaleThresholdSeconds = 120
	}
	if cfg.Engine.DrainTimeoutSeconds <= 0 {
		cfg.Engine.DrainTimeoutSeconds = 30
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultTaskExpiresSeconds <= 0 {
		cfg.DefaultTaskExpiresSeconds = int((30 * time.Minute).Seconds())
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKQUEUE_REDIS_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("TASKQUEUE_REDIS_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("TASKQUEUE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// HeartbeatInterval is EngineConfig.HeartbeatIntervalSeconds as a Duration.
func (e EngineConfig) HeartbeatInterval() time.Duration {
	return time.Duration(e.HeartbeatIntervalSeconds) * time.Second
}

// LivenessThreshold is EngineConfig.LivenessThresholdSeconds as a Duration.
func (e EngineConfig) LivenessThreshold() time.Duration {
	return time.Duration(e.LivenessThresholdSeconds) * time.Second
}

// StaleThreshold is EngineConfig.StaleThresholdSeconds as a Duration.
func (e EngineConfig) StaleThreshold() time.Duration {
	return time.Duration(e.StaleThresholdSeconds) * time.Second
}

// DrainTimeout is EngineConfig.DrainTimeoutSeconds as a Duration.
func (e EngineConfig) DrainTimeout() time.Duration {
	return time.Duration(e.DrainTimeoutSeconds) * time.Second
}

// DefaultTaskExpires is Config.DefaultTaskExpiresSeconds as a Duration.
func (c Config) DefaultTaskExpires() time.Duration {
	return time.Duration(c.DefaultTaskExpiresSeconds) * time.Second
}
