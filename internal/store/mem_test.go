package store

import (
	"context"
	"testing"
	"time"
)

func TestMemStore_ListMoveIsAtomicClaim(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.ListPush(ctx, "p:ch", "task-1"); err != nil {
		t.Fatal(err)
	}

	moved, err := s.Move(ctx, "p:ch", "r:ch", "task-1")
	if err != nil || !moved {
		t.Fatalf("Move() = %v, %v, want true, nil", moved, err)
	}

	moved, err = s.Move(ctx, "p:ch", "r:ch", "task-1")
	if err != nil || moved {
		t.Fatalf("second Move() = %v, %v, want false, nil (already claimed)", moved, err)
	}

	pending, _ := s.ListRange(ctx, "p:ch")
	running, _ := s.ListRange(ctx, "r:ch")
	if len(pending) != 0 {
		t.Fatalf("pending = %v, want empty", pending)
	}
	if len(running) != 1 || running[0] != "task-1" {
		t.Fatalf("running = %v, want [task-1]", running)
	}
}

func TestMemStore_SetTTLExpires(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Set(ctx, "t:x", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "t:x"); err != nil {
		t.Fatalf("Get() immediately after Set = %v, want nil", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, "t:x"); err != ErrNilValue {
		t.Fatalf("Get() after TTL expiry = %v, want ErrNilValue", err)
	}
}

func TestMemStore_PubSub(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "c:ch1", "c:ch2")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if err := s.Publish(ctx, "c:ch1", []byte("task-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Publish(ctx, "c:other", []byte("ignored")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Topic != "c:ch1" || string(msg.Payload) != "task-1" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected second message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemStore_HashRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.HashSet(ctx, "runners", "host-a", []byte(`{"status":"active"}`)); err != nil {
		t.Fatal(err)
	}
	all, err := s.HashGetAll(ctx, "runners")
	if err != nil {
		t.Fatal(err)
	}
	if string(all["host-a"]) != `{"status":"active"}` {
		t.Fatalf("got %v", all)
	}
	if err := s.HashDel(ctx, "runners", "host-a"); err != nil {
		t.Fatal(err)
	}
	all, _ = s.HashGetAll(ctx, "runners")
	if len(all) != 0 {
		t.Fatalf("expected empty hash after del, got %v", all)
	}
}
