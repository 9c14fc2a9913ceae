// Package publisher is the thin façade client code uses to enqueue work onto
// the task queue. It knows nothing about claiming, execution, or recovery —
// that is the engine's job. It only ever writes a pending Task Record.
package publisher

import (
	"context"
	"time"

	"github.com/basket/taskqueue/internal/audit"
	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/registry"
	"github.com/basket/taskqueue/internal/task"
)

// Publisher wraps a Manager with the channel/expiry defaults most callers
// want to set once rather than repeat at every call site.
type Publisher struct {
	mgr *manager.Manager
}

// New returns a Publisher backed by mgr.
func New(mgr *manager.Manager) *Publisher {
	return &Publisher{mgr: mgr}
}

// Publish enqueues function on channel with the given data, returning the
// new task's id. expires of zero uses the manager's configured default.
func (p *Publisher) Publish(ctx context.Context, channel, function string, data task.Data, expires time.Duration) (string, error) {
	id, err := p.mgr.Publish(ctx, function, data, channel, expires)
	if err != nil {
		return "", err
	}
	audit.Record(audit.EventPublished, id, channel, function, "", "")
	return id, nil
}

// TaskHandle binds a channel, expiry, and a function already known to the
// function registry by its dotted name, so repeated publishes of the same
// kind of work don't repeat those three arguments.
type TaskHandle struct {
	pub      *Publisher
	channel  string
	expires  time.Duration
	funcName string
}

// Task returns a builder for publishing calls to fn (registered under
// funcName) on channel, using expires as the default TTL.
func (p *Publisher) Task(channel string, expires time.Duration, funcName string) *TaskHandle {
	return &TaskHandle{pub: p, channel: channel, expires: expires, funcName: funcName}
}

// Publish enqueues a call to the bound function with the given positional
// args and keyword args, returning the new task's id.
func (h *TaskHandle) Publish(ctx context.Context, args []any, kwargs map[string]any) (string, error) {
	data := task.Data{Args: args, Kwargs: kwargs}
	return h.pub.Publish(ctx, h.channel, h.funcName, data, h.expires)
}

// InvokeDirect resolves t.Function in reg and calls it synchronously,
// bypassing the queue entirely. It does not touch the store: no claim, no
// status transition, no audit record. This is the explicit in-process
// escape hatch a caller reaches for when it already holds the task record
// and wants the function's result immediately rather than via polling.
func InvokeDirect(ctx context.Context, reg *registry.Registry, t *task.Task) (string, error) {
	fn, err := reg.Resolve(t.Function)
	if err != nil {
		return "", err
	}
	return fn(ctx, t.Data)
}
