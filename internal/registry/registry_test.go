package registry

import (
	"context"
	"testing"

	"github.com/basket/taskqueue/internal/task"
)

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	called := false
	fn := func(ctx context.Context, data task.Data) (string, error) {
		called = true
		return "ok", nil
	}
	if err := r.Register("pkg.fn", fn); err != nil {
		t.Fatal(err)
	}

	resolved, err := r.Resolve("pkg.fn")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := resolved(context.Background(), task.Data{}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("resolved function was not the registered one")
	}
}

func TestResolveUnknownReturnsErrFunctionNotFound(t *testing.T) {
	r := New()
	if _, err := r.Resolve("missing.fn"); err != ErrFunctionNotFound {
		t.Fatalf("err = %v, want ErrFunctionNotFound", err)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	fn := func(ctx context.Context, data task.Data) (string, error) { return "", nil }
	if err := r.Register("pkg.fn", fn); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("pkg.fn", fn); err != ErrAlreadyRegistered {
		t.Fatalf("err = %v, want ErrAlreadyRegistered", err)
	}
}
