// Package store wraps the shared key-value/pub-sub backend the task queue is
// built on. It exposes exactly the primitives the manager and engine need —
// keyed values with TTL, lists, sets, hashes, and topic pub/sub — and no
// queue-level semantics of its own.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNilValue is returned by Get when the key does not exist.
var ErrNilValue = errors.New("store: key does not exist")

// Message is a single pub/sub delivery.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription is a live stream of messages for a fixed set of topics.
type Subscription interface {
	// Channel returns the delivery stream. It is closed when the
	// subscription is closed or the underlying connection is permanently
	// lost (after exhausting reconnect attempts).
	Channel() <-chan Message
	Close() error
}

// Store is the full set of primitives the task queue is built from.
type Store interface {
	// Key/value with TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// Lists (used for per-channel queue membership).
	ListPush(ctx context.Context, key string, value string) error
	ListRemove(ctx context.Context, key string, value string) (bool, error)
	ListRange(ctx context.Context, key string) ([]string, error)
	ListLen(ctx context.Context, key string) (int64, error)

	// Sets (used for the channels registry).
	SetAdd(ctx context.Context, key string, member string) error
	SetRemove(ctx context.Context, key string, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Hashes (used for the runners registry).
	HashSet(ctx context.Context, key, field string, value []byte) error
	HashGet(ctx context.Context, key, field string) ([]byte, error)
	HashDel(ctx context.Context, key, field string) error
	HashGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// Pub/sub.
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)

	// Move atomically removes value from fromList and pushes it onto
	// toList in a single round-trip where the backend supports it. It
	// returns false without error if value was not present in fromList
	// (another claimant already moved it).
	Move(ctx context.Context, fromList, toList, value string) (bool, error)

	Close() error
}
