// Package engine is the task queue's control plane: one Engine runs per
// worker process, subscribing to its configured channels, dispatching
// incoming task ids to a bounded worker pool, and tracking its own liveness
// in the runners registry.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/taskqueue/internal/audit"
	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/otel"
	"github.com/basket/taskqueue/internal/registry"
	"github.com/basket/taskqueue/internal/shared"
	"github.com/basket/taskqueue/internal/task"
)

// Config controls worker pool size and the heartbeat/liveness cadence.
type Config struct {
	Channels          []string
	MaxWorkers        int
	Hostname          string // defaults to os.Hostname()
	HeartbeatInterval time.Duration
	LivenessThreshold time.Duration
	StaleThreshold    time.Duration
	DrainTimeout      time.Duration
	// Metrics is optional; a nil value disables instrument emission.
	Metrics *otel.Metrics
}

// Status is a point-in-time snapshot of the engine, exposed via the
// status/admin API.
type Status struct {
	Hostname    string `json:"hostname"`
	State       string `json:"state"` // starting, running, draining, stopped
	MaxWorkers  int     `json:"max_workers"`
	ActiveTasks int32   `json:"active_tasks"`
	LastError   string  `json:"last_error,omitempty"`
}

// Engine is one worker process's control plane over a Manager.
type Engine struct {
	mgr      *manager.Manager
	registry *registry.Registry
	config   Config
	logger   *slog.Logger

	sem     *dynSemaphore
	metrics *otel.Metrics

	once sync.Once
	wg   sync.WaitGroup

	cancelMu sync.RWMutex
	cancels  map[string]context.CancelFunc

	activeTasks       atomic.Int32
	lastError         atomic.Pointer[string]
	state             atomic.Value // string
	startedAt         int64
	maxWorkers        atomic.Int32
	heartbeatInterval atomic.Int64 // nanoseconds
}

// New creates an Engine. mgr and reg must not be nil.
func New(mgr *manager.Manager, reg *registry.Registry, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	if cfg.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		} else {
			cfg.Hostname = "unknown-host"
		}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.LivenessThreshold <= 0 {
		cfg.LivenessThreshold = 60 * time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 120 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		mgr:      mgr,
		registry: reg,
		config:   cfg,
		logger:   logger,
		sem:      newDynSemaphore(cfg.MaxWorkers),
		metrics:  cfg.Metrics,
		cancels:  map[string]context.CancelFunc{},
	}
	e.maxWorkers.Store(int32(cfg.MaxWorkers))
	e.heartbeatInterval.Store(int64(cfg.HeartbeatInterval))
	e.state.Store("starting")
	return e
}

// MaxWorkers returns the worker pool's current capacity, reflecting any
// Reconfigure call made after Start.
func (e *Engine) MaxWorkers() int {
	return int(e.maxWorkers.Load())
}

// HeartbeatInterval returns the current heartbeat cadence, reflecting any
// Reconfigure call made after Start.
func (e *Engine) HeartbeatInterval() time.Duration {
	return time.Duration(e.heartbeatInterval.Load())
}

// Reconfigure applies a live config change: it resizes the worker pool
// semaphore and updates the heartbeat cadence the running heartbeat loop
// picks up on its next tick. A zero or negative value leaves that setting
// unchanged.
func (e *Engine) Reconfigure(maxWorkers int, heartbeatInterval time.Duration) {
	if maxWorkers > 0 {
		e.sem.resize(maxWorkers)
		e.maxWorkers.Store(int32(maxWorkers))
	}
	if heartbeatInterval > 0 {
		e.heartbeatInterval.Store(int64(heartbeatInterval))
	}
	e.logger.Info("engine reconfigured", "max_workers", e.MaxWorkers(), "heartbeat_interval", e.HeartbeatInterval())
}

// Start registers the runner, recovers its own orphaned work, subscribes to
// its channels plus the broadcast and private topics, and launches the
// heartbeat loop. It runs at most once per Engine.
func (e *Engine) Start(ctx context.Context) error {
	var startErr error
	e.once.Do(func() {
		startedAt := time.Now().Unix()
		e.startedAt = startedAt
		if err := e.mgr.SaveRunner(ctx, manager.RunnerDescriptor{
			Hostname:   e.config.Hostname,
			Status:     "active",
			StartedAt:  startedAt,
			LastPing:   startedAt,
			MaxWorkers: e.MaxWorkers(),
			Channels:   e.config.Channels,
		}); err != nil {
			startErr = fmt.Errorf("engine: register runner: %w", err)
			return
		}

		if n, err := e.mgr.TakeOutTheDead(ctx); err != nil {
			e.logger.Error("take_out_the_dead failed on startup", "error", err)
		} else if n > 0 {
			e.logger.Info("recovered orphaned tasks on startup", "count", n)
			audit.Record(audit.EventOrphanRecovered, "", "", "", e.config.Hostname, fmt.Sprintf("take_out_the_dead recovered %d tasks", n))
			if e.metrics != nil {
				e.metrics.OrphansRecovered.Add(ctx, int64(n))
			}
		}
		if n, err := e.mgr.ResetRunningTasks(ctx, e.config.Hostname); err != nil {
			e.logger.Error("reset_running_tasks failed on startup", "error", err)
		} else if n > 0 {
			e.logger.Info("recovered own in-flight tasks from a prior crash", "count", n)
			audit.Record(audit.EventOrphanRecovered, "", "", "", e.config.Hostname, fmt.Sprintf("reset_running_tasks recovered %d own tasks", n))
			if e.metrics != nil {
				e.metrics.OrphansRecovered.Add(ctx, int64(n))
			}
		}

		topics := make([]string, 0, len(e.config.Channels)+2)
		for _, ch := range e.config.Channels {
			topics = append(topics, e.mgr.ChannelTopic(ch))
		}
		topics = append(topics, e.mgr.RunnerTopic(e.config.Hostname), e.mgr.BroadcastTopic())

		sub, err := e.mgr.Subscribe(ctx, topics...)
		if err != nil {
			startErr = fmt.Errorf("engine: subscribe: %w", err)
			return
		}

		e.state.Store("running")

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.dispatchLoop(ctx, sub)
		}()

		hb := newHeartbeatManager(e)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			hb.run(ctx)
		}()

		e.queuePendingTasks(ctx)
	})
	return startErr
}

// queuePendingTasks scans each subscribed channel's pending list and submits
// every id found, so a runner starting after a publish outage (or a cold
// restart with nothing left subscribed) still picks up existing backlog.
func (e *Engine) queuePendingTasks(ctx context.Context) {
	for _, ch := range e.config.Channels {
		ids, err := e.mgr.GetPendingIDs(ctx, ch)
		if err != nil {
			e.logger.Warn("queue pending tasks: list pending", "channel", ch, "error", err)
			continue
		}
		for _, id := range ids {
			e.queueTask(ctx, id)
		}
	}
}

// Wait blocks until every worker goroutine spawned by Start has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Drain stops accepting new dispatch, waits up to timeout for in-flight
// tasks to finish, then unregisters the runner. Work still outstanding past
// the deadline is abandoned to the next TakeOutTheDead pass.
func (e *Engine) Drain(ctx context.Context, timeout time.Duration) {
	e.state.Store("draining")
	if timeout <= 0 {
		timeout = e.config.DrainTimeout
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine drained cleanly", "hostname", e.config.Hostname)
	case <-time.After(timeout):
		e.logger.Warn("engine drain timeout; abandoning in-flight tasks to recovery", "timeout", timeout, "hostname", e.config.Hostname)
	}

	if err := e.mgr.RemoveRunner(context.Background(), e.config.Hostname); err != nil {
		e.logger.Warn("failed to unregister runner on shutdown", "error", err)
	}
	e.state.Store("stopped")
}

func (e *Engine) setLastError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	e.lastError.Store(&msg)
}

// AbortTask cooperatively cancels an in-flight task's context if this
// engine currently owns it. It does not interrupt work the task function
// does not itself observe ctx.Done() for.
func (e *Engine) AbortTask(taskID string) bool {
	e.cancelMu.RLock()
	cancel, ok := e.cancels[taskID]
	e.cancelMu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Status returns a snapshot of this engine's current state.
func (e *Engine) Status() Status {
	s := Status{
		Hostname:    e.config.Hostname,
		MaxWorkers:  e.MaxWorkers(),
		ActiveTasks: e.activeTasks.Load(),
	}
	if v, ok := e.state.Load().(string); ok {
		s.State = v
	}
	if ptr := e.lastError.Load(); ptr != nil {
		s.LastError = *ptr
	}
	return s
}

// marshalControlMessage and traceFields are small shared helpers used by
// dispatch.go and heartbeat.go.

func marshalControlMessage(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func traceFields(ctx context.Context, t *task.Task) []any {
	return []any{"task_id", t.ID, "channel", t.Channel, "trace_id", shared.TraceID(ctx)}
}

func nowUnix() int64 {
	return time.Now().Unix()
}
