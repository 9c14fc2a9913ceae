package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/basket/taskqueue/internal/adminapi"
	"github.com/basket/taskqueue/internal/audit"
	"github.com/basket/taskqueue/internal/config"
	"github.com/basket/taskqueue/internal/engine"
	"github.com/basket/taskqueue/internal/manager"
	otelPkg "github.com/basket/taskqueue/internal/otel"
	"github.com/basket/taskqueue/internal/registry"
	"github.com/basket/taskqueue/internal/store"
	"github.com/basket/taskqueue/internal/task"
	"github.com/basket/taskqueue/internal/telemetry"
)

func runRunCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	channelsFlag := fs.String("channels", "", "comma-separated channels to subscribe to (default: config.yaml)")
	maxWorkers := fs.Int("max-workers", 0, "worker pool size (default: config.yaml)")
	bindAddr := fs.String("bind", "127.0.0.1:8799", "address for the admin HTTP surface")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quietLogs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		return 1
	}
	defer closer.Close()

	if err := audit.Init(cfg.HomeDir); err != nil {
		logger.Warn("audit init failed", "error", err)
	}
	defer audit.Close()

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{Enabled: false})
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel init: %v\n", err)
		return 1
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics init: %v\n", err)
		return 1
	}

	s := store.NewRedisStoreWithPassword(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB, logger)
	defer s.Close()

	mgr := manager.New(s, manager.WithPrefix(cfg.Store.Prefix), manager.WithDefaultExpires(cfg.DefaultTaskExpires()))

	reg := registry.New()
	registerBuiltins(reg)

	channels := cfg.Engine.Channels
	if *channelsFlag != "" {
		channels = strings.Split(*channelsFlag, ",")
	}
	workers := cfg.Engine.MaxWorkers
	if *maxWorkers > 0 {
		workers = *maxWorkers
	}

	eng := engine.New(mgr, reg, engine.Config{
		Channels:          channels,
		MaxWorkers:        workers,
		HeartbeatInterval: cfg.Engine.HeartbeatInterval(),
		LivenessThreshold: cfg.Engine.LivenessThreshold(),
		StaleThreshold:    cfg.Engine.StaleThreshold(),
		DrainTimeout:      cfg.Engine.DrainTimeout(),
		Metrics:           metrics,
	}, logger)

	if err := eng.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "engine start: %v\n", err)
		return 1
	}
	logger.Info("engine started", "channels", channels, "max_workers", workers)

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start; hot-reload disabled", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				newCfg, err := config.Load()
				if err != nil {
					logger.Warn("config reload failed", "error", err)
					continue
				}
				eng.Reconfigure(newCfg.Engine.MaxWorkers, newCfg.Engine.HeartbeatInterval())
			}
		}()
	}

	admin := adminapi.NewServer(mgr, eng)
	httpServer := &http.Server{Addr: *bindAddr, Handler: admin.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()

	eng.Drain(context.Background(), cfg.Engine.DrainTimeout())
	return 0
}

// registerBuiltins registers the small set of functions shipped with the
// binary itself, useful for smoke-testing a fresh deployment without first
// wiring an application-specific registry.
func registerBuiltins(reg *registry.Registry) {
	reg.MustRegister("taskqueue.echo", func(ctx context.Context, data task.Data) (string, error) {
		if msg, ok := data.Kwargs["message"].(string); ok {
			return msg, nil
		}
		return "", nil
	})
}
