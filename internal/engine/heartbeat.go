package engine

import (
	"context"
	"time"

	"github.com/basket/taskqueue/internal/manager"
)

// heartbeatManager runs the engine's periodic liveness duties: refreshing
// its own last_ping, pinging every other known-active runner, and purging
// runner entries that have gone stale.
type heartbeatManager struct {
	engine *Engine
}

func newHeartbeatManager(e *Engine) *heartbeatManager {
	return &heartbeatManager{engine: e}
}

func (h *heartbeatManager) run(ctx context.Context) {
	ticker := time.NewTicker(h.engine.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
			// Reconfigure may have changed the interval since the ticker
			// was last armed; pick up the current value every tick.
			ticker.Reset(h.engine.HeartbeatInterval())
		}
	}
}

func (h *heartbeatManager) tick(ctx context.Context) {
	e := h.engine

	if err := e.mgr.SaveRunner(ctx, e.runnerDescriptor()); err != nil {
		e.logger.Warn("heartbeat: failed to refresh own last_ping", "error", err)
	}

	if err := h.pingActiveRunners(ctx); err != nil {
		e.logger.Warn("heartbeat: failed to ping active runners", "error", err)
	}

	if _, err := e.mgr.ClearRunners(ctx, e.config.StaleThreshold); err != nil {
		e.logger.Warn("heartbeat: failed to clean up stale runners", "error", err)
	}
}

func (h *heartbeatManager) pingActiveRunners(ctx context.Context) error {
	e := h.engine
	runners, err := e.mgr.GetActiveRunnersWithThreshold(ctx, e.config.LivenessThreshold)
	if err != nil {
		return err
	}
	ping := controlMessage{
		Type:      "ping",
		From:      e.config.Hostname,
		Timestamp: nowUnix(),
	}
	b := marshalControlMessage(ping)
	if b == nil {
		return nil
	}
	for hostname, d := range runners {
		if hostname == e.config.Hostname || d.Status == "timeout" {
			continue
		}
		if err := e.mgr.PublishRaw(ctx, e.mgr.RunnerTopic(hostname), b); err != nil {
			e.logger.Warn("heartbeat: failed to ping runner", "target", hostname, "error", err)
		}
	}
	return nil
}

// runnerDescriptor builds this engine's current descriptor for the runners
// hash, refreshing last_ping to now.
func (e *Engine) runnerDescriptor() manager.RunnerDescriptor {
	status := e.Status()
	return manager.RunnerDescriptor{
		Hostname:    e.config.Hostname,
		Status:      status.State,
		StartedAt:   e.startedAt,
		LastPing:    nowUnix(),
		MaxWorkers:  e.MaxWorkers(),
		Channels:    e.config.Channels,
		ActiveTasks: int(status.ActiveTasks),
	}
}
