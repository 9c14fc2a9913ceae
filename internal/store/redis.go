package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store backed by a Redis (or Redis-compatible)
// server via go-redis.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore dials addr/db with the given client and wraps it.
func NewRedisStore(addr string, db int, logger *slog.Logger) *RedisStore {
	return NewRedisStoreWithPassword(addr, "", db, logger)
}

// NewRedisStoreWithPassword is NewRedisStore plus AUTH, for deployments that
// require a password on the Redis (or Redis-compatible) server.
func NewRedisStoreWithPassword(addr, password string, db int, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNilValue
	}
	return b, err
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

func (s *RedisStore) ListPush(ctx context.Context, key string, value string) error {
	return s.client.RPush(ctx, key, value).Err()
}

func (s *RedisStore) ListRemove(ctx context.Context, key string, value string) (bool, error) {
	n, err := s.client.LRem(ctx, key, 1, value).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) ListRange(ctx context.Context, key string) ([]string, error) {
	return s.client.LRange(ctx, key, 0, -1).Result()
}

func (s *RedisStore) ListLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

func (s *RedisStore) SetAdd(ctx context.Context, key string, member string) error {
	return s.client.SAdd(ctx, key, member).Err()
}

func (s *RedisStore) SetRemove(ctx context.Context, key string, member string) error {
	return s.client.SRem(ctx, key, member).Err()
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) HashSet(ctx context.Context, key, field string, value []byte) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HashGet(ctx context.Context, key, field string) ([]byte, error) {
	b, err := s.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNilValue
	}
	return b, err
}

func (s *RedisStore) HashDel(ctx context.Context, key, field string) error {
	return s.client.HDel(ctx, key, field).Err()
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(res))
	for k, v := range res {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.client.Publish(ctx, topic, payload).Err()
}

func (s *RedisStore) Move(ctx context.Context, fromList, toList, value string) (bool, error) {
	pipe := s.client.TxPipeline()
	remCmd := pipe.LRem(ctx, fromList, 1, value)
	pipe.RPush(ctx, toList, value)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return remCmd.Val() > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisSubscription wraps *redis.PubSub and adds a reconnecting read loop
// that resumes the same topic set with exponential backoff on connection
// loss, so a transient outage is invisible to the engine's dispatch loop.
type redisSubscription struct {
	store  *RedisStore
	topics []string
	out    chan Message
	cancel context.CancelFunc
}

func (s *RedisStore) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		store:  s,
		topics: topics,
		out:    make(chan Message, 256),
		cancel: cancel,
	}
	go sub.run(subCtx)
	return sub, nil
}

func (r *redisSubscription) Channel() <-chan Message {
	return r.out
}

func (r *redisSubscription) Close() error {
	r.cancel()
	return nil
}

func (r *redisSubscription) run(ctx context.Context) {
	defer close(r.out)

	b := backoff.NewExponentialBackOff()
	for {
		if ctx.Err() != nil {
			return
		}
		ps := r.store.client.Subscribe(ctx, r.topics...)
		if err := r.drain(ctx, ps); err != nil {
			r.store.logger.Warn("redis subscription lost, reconnecting", "error", err)
			delay, bErr := b.NextBackOff()
			if bErr != nil {
				return
			}
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case <-time.After(delay):
			}
			continue
		}
		return
	}
}

// drain forwards messages until the context is cancelled or the
// subscription's channel closes (connection lost).
func (r *redisSubscription) drain(ctx context.Context, ps *redis.PubSub) error {
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errConnectionLost
			}
			select {
			case r.out <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

var errConnectionLost = errors.New("redis: subscription channel closed")
