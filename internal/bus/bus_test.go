package bus

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("c:test")
	defer sub.Close()

	b.Publish("c:test", []byte("hello"))

	select {
	case msg := <-sub.Ch():
		if msg.Topic != "c:test" {
			t.Fatalf("topic = %q, want %q", msg.Topic, "c:test")
		}
		if string(msg.Payload) != "hello" {
			t.Fatalf("payload = %q, want %q", msg.Payload, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestBus_MultiTopicSubscription(t *testing.T) {
	b := New()
	sub := b.Subscribe("c:ch1", "c:ch3")
	defer sub.Close()

	b.Publish("c:ch1", []byte("a"))
	b.Publish("c:ch2", []byte("b"))
	b.Publish("c:ch3", []byte("c"))

	received := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.Ch():
			received[msg.Topic] = string(msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
	if received["c:ch1"] != "a" || received["c:ch3"] != "c" {
		t.Fatalf("unexpected deliveries: %v", received)
	}
	select {
	case msg := <-sub.Ch():
		t.Fatalf("unexpected extra message: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_NonBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe("c:test")
	defer sub.Close()

	for i := 0; i < defaultBufferSize+10; i++ {
		b.Publish("c:test", []byte("x"))
	}

	count := 0
	for {
		select {
		case <-sub.Ch():
			count++
		default:
			goto done
		}
	}
done:
	if count != defaultBufferSize {
		t.Fatalf("received %d messages, expected %d (buffer size)", count, defaultBufferSize)
	}
	if b.DroppedEventCount() != 10 {
		t.Fatalf("dropped = %d, want 10", b.DroppedEventCount())
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("c:test")
	sub.Close()

	if _, ok := <-sub.Ch(); ok {
		t.Fatal("expected channel to be closed after Close")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0", b.SubscriberCount())
	}
}
