package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/basket/taskqueue/internal/manager"
	"github.com/basket/taskqueue/internal/registry"
	"github.com/basket/taskqueue/internal/store"
	"github.com/basket/taskqueue/internal/task"
)

func TestPublisher_Publish(t *testing.T) {
	mgr := manager.New(store.NewMemStore())
	p := New(mgr)
	ctx := context.Background()

	id, err := p.Publish(ctx, "emails", "pkg.send_email", task.Data{Kwargs: map[string]any{"to": "a@b.com"}}, 0)
	if err != nil {
		t.Fatal(err)
	}

	got, err := mgr.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Channel != "emails" || got.Function != "pkg.send_email" {
		t.Fatalf("task = %+v, want channel=emails function=pkg.send_email", got)
	}
}

func TestTaskHandle_Publish(t *testing.T) {
	mgr := manager.New(store.NewMemStore())
	p := New(mgr)
	ctx := context.Background()

	h := p.Task("reports", 10*time.Minute, "pkg.build_report")
	id, err := h.Publish(ctx, []any{"q3"}, map[string]any{"format": "pdf"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := mgr.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Channel != "reports" {
		t.Fatalf("channel = %q, want reports", got.Channel)
	}
	if len(got.Data.Args) != 1 || got.Data.Args[0] != "q3" {
		t.Fatalf("args = %v", got.Data.Args)
	}
	if got.Data.Kwargs["format"] != "pdf" {
		t.Fatalf("kwargs = %v", got.Data.Kwargs)
	}
}

func TestInvokeDirect(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("pkg.echo", func(ctx context.Context, data task.Data) (string, error) {
		return "echoed", nil
	})

	t1 := &task.Task{ID: "x", Function: "pkg.echo", Data: task.Data{}}
	result, err := InvokeDirect(context.Background(), reg, t1)
	if err != nil {
		t.Fatal(err)
	}
	if result != "echoed" {
		t.Fatalf("result = %q, want echoed", result)
	}
}

func TestInvokeDirect_UnknownFunction(t *testing.T) {
	reg := registry.New()
	t1 := &task.Task{ID: "x", Function: "pkg.missing", Data: task.Data{}}
	if _, err := InvokeDirect(context.Background(), reg, t1); err != registry.ErrFunctionNotFound {
		t.Fatalf("err = %v, want ErrFunctionNotFound", err)
	}
}
