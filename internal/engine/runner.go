package engine

import (
	"context"
	"fmt"

	"github.com/basket/taskqueue/internal/audit"
	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/publisher"
	"github.com/basket/taskqueue/internal/shared"
	"github.com/basket/taskqueue/internal/task"
)

// onRunTask claims, executes, and finalizes a single task id. It is safe to
// call even when another runner has already claimed the same id: the
// RemoveFromPending call below is the atomic arbiter, and a loser simply
// returns without side effects.
func (e *Engine) onRunTask(ctx context.Context, id string) {
	t, err := e.mgr.GetTask(ctx, id)
	if err != nil {
		if err != manager.ErrNotFound {
			e.logger.Warn("failed to load task", "task_id", id, "error", err)
		}
		return
	}
	if t.Terminal() {
		return
	}
	if t.Expired(nowUnix()) {
		e.logger.Warn("dropping expired task", "task_id", id, "channel", t.Channel)
		return
	}

	claimed, err := e.mgr.RemoveFromPending(ctx, id, t.Channel)
	if err != nil {
		e.logger.Warn("failed to claim task", "task_id", id, "error", err)
		return
	}
	if !claimed {
		// Another runner already removed it from pending.
		return
	}

	if err := e.mgr.AddToRunning(ctx, id, t.Channel); err != nil {
		e.logger.Warn("failed to mark task running", "task_id", id, "error", err)
		return
	}
	startedAt := nowUnix()
	t.Status = task.StatusRunning
	t.StartedAt = &startedAt
	t.Runner = e.config.Hostname
	if err := e.mgr.SaveTask(ctx, t); err != nil {
		e.logger.Warn("failed to persist running task", "task_id", id, "error", err)
		return
	}

	traceID := shared.NewTraceID()
	taskCtx := shared.WithTraceID(ctx, traceID)

	e.activeTasks.Add(1)
	defer e.activeTasks.Add(-1)

	runCtx, cancel := context.WithCancel(taskCtx)
	e.cancelMu.Lock()
	e.cancels[id] = cancel
	e.cancelMu.Unlock()
	defer func() {
		cancel()
		e.cancelMu.Lock()
		delete(e.cancels, id)
		e.cancelMu.Unlock()
	}()

	e.logger.Info("task started", append(traceFields(runCtx, t), "function", t.Function)...)
	audit.Record(audit.EventStarted, t.ID, t.Channel, t.Function, e.config.Hostname, "")

	result, err := e.invoke(runCtx, t)
	if err != nil {
		e.finishWithError(ctx, t, err.Error())
		return
	}

	e.finishWithSuccess(ctx, t, result)
}

// invoke calls t's registered function through publisher.InvokeDirect,
// recovering any panic the callable raises and turning it into a plain
// error so one misbehaving task can't take down the whole engine process.
func (e *Engine) invoke(ctx context.Context, t *task.Task) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task function %s: %v", t.Function, r)
		}
	}()
	return publisher.InvokeDirect(ctx, e.registry, t)
}

// finishWithSuccess and finishWithError use the un-cancelled background-
// derived ctx (not runCtx) for the final store write, so a task that
// completes exactly as its context is cancelled still gets its terminal
// state recorded.
func (e *Engine) finishWithSuccess(ctx context.Context, t *task.Task, result string) {
	if _, err := e.mgr.RemoveFromRunning(ctx, t.ID, t.Channel); err != nil {
		e.logger.Warn("failed to remove task from running", "task_id", t.ID, "error", err)
	}
	if err := e.mgr.AddToCompleted(ctx, t); err != nil {
		e.logger.Error("failed to complete task", "task_id", t.ID, "error", err)
		return
	}
	e.logger.Info("task completed", "task_id", t.ID, "channel", t.Channel, "result_len", len(result))
	audit.Record(audit.EventCompleted, t.ID, t.Channel, t.Function, e.config.Hostname, "")
	if e.metrics != nil {
		e.metrics.TasksCompleted.Add(ctx, 1)
	}
}

func (e *Engine) finishWithError(ctx context.Context, t *task.Task, msg string) {
	if _, err := e.mgr.RemoveFromRunning(ctx, t.ID, t.Channel); err != nil {
		e.logger.Warn("failed to remove task from running", "task_id", t.ID, "error", err)
	}
	if err := e.mgr.AddToErrors(ctx, t, msg); err != nil {
		e.logger.Error("failed to record task error", "task_id", t.ID, "error", err)
		return
	}
	e.logger.Warn("task failed", "task_id", t.ID, "channel", t.Channel, "error", msg)
	e.setLastError(fmt.Errorf("task %s: %s", t.ID, msg))
	audit.Record(audit.EventError, t.ID, t.Channel, t.Function, e.config.Hostname, msg)
	if e.metrics != nil {
		e.metrics.TasksFailed.Add(ctx, 1)
	}
}
