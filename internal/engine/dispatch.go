package engine

import (
	"context"
	"encoding/json"

	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/store"
)

// controlMessage is the shape of ping/ping_response payloads. A plain task
// id does not parse as JSON (or parses without a "type" field), so the
// dispatch loop tells the two apart by attempting this decode first.
type controlMessage struct {
	Type      string                    `json:"type"`
	From      string                    `json:"from"`
	To        string                    `json:"to,omitempty"`
	Timestamp int64                     `json:"timestamp"`
	Status    *pingResponseStatusFields `json:"status,omitempty"`
}

type pingResponseStatusFields struct {
	Hostname    string   `json:"hostname"`
	Status      string   `json:"status"`
	StartedAt   int64    `json:"started_at"`
	LastPing    int64    `json:"last_ping"`
	MaxWorkers  int      `json:"max_workers"`
	Channels    []string `json:"channels"`
	ActiveTasks int      `json:"active_tasks"`
}

func (e *Engine) dispatchLoop(ctx context.Context, sub store.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			e.handleMessage(ctx, msg.Payload)
		}
	}
}

func (e *Engine) handleMessage(ctx context.Context, payload []byte) {
	var ctrl controlMessage
	if err := json.Unmarshal(payload, &ctrl); err == nil && ctrl.Type != "" {
		switch ctrl.Type {
		case "ping":
			e.handlePingRequest(ctx, ctrl)
		case "ping_response":
			e.handlePingResponse(ctx, ctrl)
		default:
			e.logger.Warn("unrecognized control message type", "type", ctrl.Type)
		}
		return
	}
	// Not a recognized control message: treat the raw payload as a task id.
	e.queueTask(ctx, string(payload))
}

// queueTask submits id to the worker pool. Acquiring a pool slot happens in
// its own goroutine so a full pool never blocks the dispatch loop from
// receiving further messages — the "queue" is simply the set of
// outstanding acquire-goroutines.
func (e *Engine) queueTask(ctx context.Context, id string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if !e.sem.acquire(ctx) {
			return
		}
		defer e.sem.release()
		e.onRunTask(ctx, id)
	}()
}

func (e *Engine) handlePingRequest(ctx context.Context, ctrl controlMessage) {
	status := e.Status()
	resp := controlMessage{
		Type:      "ping_response",
		From:      e.config.Hostname,
		To:        ctrl.From,
		Timestamp: nowUnix(),
		Status: &pingResponseStatusFields{
			Hostname:    e.config.Hostname,
			Status:      status.State,
			MaxWorkers:  status.MaxWorkers,
			Channels:    e.config.Channels,
			ActiveTasks: int(status.ActiveTasks),
		},
	}
	b := marshalControlMessage(resp)
	if b == nil {
		return
	}
	if err := e.mgr.PublishRaw(ctx, e.mgr.RunnerTopic(ctrl.From), b); err != nil {
		e.logger.Warn("failed to answer ping", "from", ctrl.From, "error", err)
	}
}

func (e *Engine) handlePingResponse(ctx context.Context, ctrl controlMessage) {
	if ctrl.Status == nil {
		return
	}
	s := ctrl.Status
	desc := manager.RunnerDescriptor{
		Hostname:    s.Hostname,
		Status:      s.Status,
		StartedAt:   s.StartedAt,
		LastPing:    nowUnix(),
		MaxWorkers:  s.MaxWorkers,
		Channels:    s.Channels,
		ActiveTasks: s.ActiveTasks,
	}
	if err := e.mgr.SaveRunner(ctx, desc); err != nil {
		e.logger.Warn("failed to record ping response", "from", ctrl.From, "error", err)
	}
}
