package store

import (
	"context"
	"sync"
	"time"

	"github.com/basket/taskqueue/internal/bus"
)

// MemStore is a single-process Store backed by plain Go maps/slices and the
// in-process bus for pub/sub. It exists so the manager/engine state machine
// can be exercised in tests without a live Redis instance.
type MemStore struct {
	mu     sync.Mutex
	values map[string]memValue
	lists  map[string][]string
	sets   map[string]map[string]struct{}
	hashes map[string]map[string][]byte
	bus    *bus.Bus
}

type memValue struct {
	data    []byte
	expires time.Time // zero means no expiry
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		values: make(map[string]memValue),
		lists:  make(map[string][]string),
		sets:   make(map[string]map[string]struct{}),
		hashes: make(map[string]map[string][]byte),
		bus:    bus.New(),
	}
}

func (m *MemStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := memValue{data: append([]byte(nil), value...)}
	if ttl > 0 {
		v.expires = time.Now().Add(ttl)
	}
	m.values[key] = v
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok || m.expired(v) {
		return nil, ErrNilValue
	}
	return append([]byte(nil), v.data...), nil
}

func (m *MemStore) expired(v memValue) bool {
	return !v.expires.IsZero() && time.Now().After(v.expires)
}

func (m *MemStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok || v.expires.IsZero() || m.expired(v) {
		return 0, false, nil
	}
	return time.Until(v.expires), true, nil
}

func (m *MemStore) ListPush(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	return nil
}

func (m *MemStore) ListRemove(_ context.Context, key string, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeFromListLocked(key, value), nil
}

func (m *MemStore) removeFromListLocked(key, value string) bool {
	list := m.lists[key]
	for i, v := range list {
		if v == value {
			m.lists[key] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (m *MemStore) ListRange(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lists[key]))
	copy(out, m.lists[key])
	return out, nil
}

func (m *MemStore) ListLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *MemStore) SetAdd(_ context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *MemStore) SetRemove(_ context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[key], member)
	return nil
}

func (m *MemStore) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemStore) HashSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[key] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

func (m *MemStore) HashGet(_ context.Context, key, field string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.hashes[key][field]
	if !ok {
		return nil, ErrNilValue
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) HashDel(_ context.Context, key, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes[key], field)
	return nil
}

func (m *MemStore) HashGetAll(_ context.Context, key string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *MemStore) Publish(_ context.Context, topic string, payload []byte) error {
	m.bus.Publish(topic, payload)
	return nil
}

func (m *MemStore) Subscribe(_ context.Context, topics ...string) (Subscription, error) {
	sub := m.bus.Subscribe(topics...)
	return &memSubscription{sub: sub}, nil
}

func (m *MemStore) Move(_ context.Context, fromList, toList, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.removeFromListLocked(fromList, value) {
		return false, nil
	}
	m.lists[toList] = append(m.lists[toList], value)
	return true, nil
}

func (m *MemStore) Close() error {
	return nil
}

type memSubscription struct {
	sub  *bus.Subscription
	once sync.Once
	out  chan Message
}

func (s *memSubscription) Channel() <-chan Message {
	s.once.Do(func() {
		s.out = make(chan Message)
		go func() {
			defer close(s.out)
			for msg := range s.sub.Ch() {
				s.out <- Message{Topic: msg.Topic, Payload: msg.Payload}
			}
		}()
	})
	return s.out
}

func (s *memSubscription) Close() error {
	s.sub.Close()
	return nil
}
