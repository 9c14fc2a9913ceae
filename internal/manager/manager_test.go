package manager

import (
	"context"
	"testing"
	"time"

	"github.com/basket/taskqueue/internal/store"
	"github.com/basket/taskqueue/internal/task"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(store.NewMemStore())
}

func TestPublishThenGetTask(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, err := m.Publish(ctx, "pkg.quick_task", task.Data{Kwargs: map[string]any{"x": float64(1)}}, "test", 0)
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusPending || got.Channel != "test" || got.Function != "pkg.quick_task" {
		t.Fatalf("unexpected task: %+v", got)
	}

	pending, err := m.GetPendingIDs(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0] != id {
		t.Fatalf("pending = %v, want [%s]", pending, id)
	}
}

func TestLifecycleNeverDoubleListed(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, err := m.Publish(ctx, "pkg.fn", task.Data{}, "ch", 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.RemoveFromPending(ctx, id, "ch"); err != nil {
		t.Fatal(err)
	}
	if err := m.AddToRunning(ctx, id, "ch"); err != nil {
		t.Fatal(err)
	}

	tsk, _ := m.GetTask(ctx, id)
	if err := m.AddToCompleted(ctx, tsk); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RemoveFromRunning(ctx, id, "ch"); err != nil {
		t.Fatal(err)
	}

	pending, _ := m.GetPendingIDs(ctx, "ch")
	running, _ := m.GetRunningIDs(ctx, "ch")
	completed, _ := m.GetCompletedIDs(ctx, "ch")
	if len(pending) != 0 || len(running) != 0 {
		t.Fatalf("pending=%v running=%v, want both empty", pending, running)
	}
	if len(completed) != 1 || completed[0] != id {
		t.Fatalf("completed = %v, want [%s]", completed, id)
	}

	final, err := m.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != task.StatusCompleted || final.CompletedAt == nil {
		t.Fatalf("final task = %+v", final)
	}
}

func TestTakeOutTheDeadRecoversOrphans(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, err := m.Publish(ctx, "pkg.fn", task.Data{}, "ch", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.RemoveFromPending(ctx, id, "ch"); err != nil {
		t.Fatal(err)
	}
	if err := m.AddToRunning(ctx, id, "ch"); err != nil {
		t.Fatal(err)
	}
	tsk, _ := m.GetTask(ctx, id)
	tsk.Status = task.StatusRunning
	tsk.Runner = "dead-host"
	if err := m.SaveTask(ctx, tsk); err != nil {
		t.Fatal(err)
	}
	// dead-host never registers in the runners hash, so it's never "active".

	recovered, err := m.TakeOutTheDead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}

	pending, _ := m.GetPendingIDs(ctx, "ch")
	running, _ := m.GetRunningIDs(ctx, "ch")
	if len(running) != 0 {
		t.Fatalf("running = %v, want empty", running)
	}
	if len(pending) != 1 || pending[0] != id {
		t.Fatalf("pending = %v, want [%s]", pending, id)
	}
}

func TestCancelPendingTask(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, err := m.Publish(ctx, "pkg.fn", task.Data{}, "ch", 0)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := m.CancelTask(ctx, id)
	if err != nil || !ok {
		t.Fatalf("CancelTask = %v, %v, want true, nil", ok, err)
	}

	got, err := m.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusCancelled {
		t.Fatalf("status = %v, want cancelled", got.Status)
	}

	pending, _ := m.GetPendingIDs(ctx, "ch")
	if len(pending) != 0 {
		t.Fatalf("pending = %v, want empty", pending)
	}

	// Cancelling a running/terminal task is a no-op.
	ok, err = m.CancelTask(ctx, id)
	if err != nil || ok {
		t.Fatalf("second CancelTask = %v, %v, want false, nil", ok, err)
	}
}

func TestGetStatusSumsChannels(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Publish(ctx, "pkg.fn", task.Data{}, "ch1", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Publish(ctx, "pkg.fn", task.Data{}, "ch2", 0); err != nil {
		t.Fatal(err)
	}

	status, err := m.GetStatus(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if status.Pending != 2 {
		t.Fatalf("pending = %d, want 2", status.Pending)
	}
	var summed int
	for _, cs := range status.Channels {
		summed += cs.Pending
	}
	if summed != status.Pending {
		t.Fatalf("channel sum = %d, want %d", summed, status.Pending)
	}
}

func TestRemoveTaskDeletesEverywhere(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, err := m.Publish(ctx, "pkg.fn", task.Data{}, "ch", 0)
	if err != nil {
		t.Fatal(err)
	}

	removed, err := m.RemoveTask(ctx, id)
	if err != nil || !removed {
		t.Fatalf("RemoveTask = %v, %v", removed, err)
	}

	if _, err := m.GetTask(ctx, id); err != ErrNotFound {
		t.Fatalf("GetTask after remove = %v, want ErrNotFound", err)
	}
	pending, _ := m.GetPendingIDs(ctx, "ch")
	if len(pending) != 0 {
		t.Fatalf("pending = %v, want empty", pending)
	}

	// Idempotent.
	removed, err = m.RemoveTask(ctx, id)
	if err != nil || removed {
		t.Fatalf("second RemoveTask = %v, %v, want false, nil", removed, err)
	}
}

func TestActiveRunnersMarksTimeout(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	stale := RunnerDescriptor{Hostname: "stale-host", Status: "active", LastPing: time.Now().Add(-2 * time.Minute).Unix()}
	fresh := RunnerDescriptor{Hostname: "fresh-host", Status: "active", LastPing: time.Now().Unix()}
	if err := m.SaveRunner(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveRunner(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	runners, err := m.GetActiveRunnersWithThreshold(ctx, 60*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if runners["stale-host"].Status != "timeout" {
		t.Fatalf("stale-host status = %v, want timeout", runners["stale-host"].Status)
	}
	if runners["fresh-host"].Status != "active" {
		t.Fatalf("fresh-host status = %v, want active", runners["fresh-host"].Status)
	}
}
