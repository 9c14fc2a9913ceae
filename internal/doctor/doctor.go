// Package doctor runs a small set of startup diagnostics against the
// configured store and filesystem, surfaced via the status CLI.
package doctor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/basket/taskqueue/internal/config"
	"github.com/basket/taskqueue/internal/store"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Run executes all diagnostic checks against cfg, optionally exercising an
// already-constructed Store (pass nil to skip the store round-trip check).
func Run(ctx context.Context, cfg *config.Config, s store.Store, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	d.Results = append(d.Results,
		checkConfig(cfg),
		checkStore(ctx, s),
		checkHomeDirWritable(cfg),
	)
	return d
}

func checkConfig(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "configuration not loaded"}
	}
	if cfg.NeedsGenesis {
		return CheckResult{Name: "Config", Status: "WARN", Message: "config.yaml missing, running on defaults"}
	}
	if len(cfg.Engine.Channels) == 0 {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "no channels configured"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("loaded from %s", cfg.HomeDir)}
}

// checkStore issues a round-trip Set/Get/Del against s to confirm the store
// is reachable and behaves as expected. A nil Store skips the check.
func checkStore(ctx context.Context, s store.Store) CheckResult {
	if s == nil {
		return CheckResult{Name: "Store", Status: "SKIP", Message: "no store configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const probeKey = "taskqueue:doctor:probe"
	if err := s.Set(checkCtx, probeKey, []byte("ok"), 10*time.Second); err != nil {
		return CheckResult{Name: "Store", Status: "FAIL", Message: fmt.Sprintf("write probe failed: %v", err)}
	}
	val, err := s.Get(checkCtx, probeKey)
	if err != nil {
		return CheckResult{Name: "Store", Status: "FAIL", Message: fmt.Sprintf("read probe failed: %v", err)}
	}
	_ = s.Del(checkCtx, probeKey)

	if string(val) != "ok" {
		return CheckResult{Name: "Store", Status: "FAIL", Message: "probe value mismatch"}
	}
	return CheckResult{Name: "Store", Status: "PASS", Message: "connection and round-trip OK"}
}

func checkHomeDirWritable(cfg *config.Config) CheckResult {
	if cfg == nil || cfg.HomeDir == "" {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "config missing"}
	}

	testFile := fmt.Sprintf("%s/.write_test", cfg.HomeDir)
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("home dir unwritable: %v", err)}
	}
	_ = os.Remove(testFile)

	return CheckResult{Name: "Permissions", Status: "PASS", Message: "home directory writable"}
}
