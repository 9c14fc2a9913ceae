// Package manager implements the task queue's data plane: every operation
// that reads or mutates a Task Record or its queue-list membership. It never
// executes a task itself — that is the engine's job — so it has no notion
// of workers, pools, or in-process state beyond the store it was given.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basket/taskqueue/internal/store"
	"github.com/basket/taskqueue/internal/task"
	"github.com/google/uuid"
)

// Manager is the data-plane API over a shared Store.
type Manager struct {
	store          store.Store
	prefix         string
	defaultExpires time.Duration
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithPrefix overrides the default key-namespace prefix ("taskqueue:tasks").
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithDefaultExpires overrides the default task TTL (30 minutes) applied
// when a publisher does not specify one.
func WithDefaultExpires(d time.Duration) Option {
	return func(m *Manager) { m.defaultExpires = d }
}

// New creates a Manager over the given Store.
func New(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:          s,
		prefix:         defaultPrefix,
		defaultExpires: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func now() int64 { return time.Now().Unix() }

// Publish creates a pending Task Record, enqueues it on the channel's
// pending list, registers the channel, and announces the id on the
// channel's pub/sub topic. If channel is empty the default channel is used;
// if expires is zero the manager's default TTL applies.
func (m *Manager) Publish(ctx context.Context, function string, data task.Data, channel string, expires time.Duration) (string, error) {
	if channel == "" {
		channel = defaultChannel
	}
	if expires <= 0 {
		expires = m.defaultExpires
	}

	id := uuid.NewString()
	expiresAt := now() + int64(expires/time.Second)
	t := task.Task{
		ID:        id,
		Function:  function,
		Data:      data,
		Channel:   channel,
		Status:    task.StatusPending,
		CreatedAt: now(),
		Expires:   &expiresAt,
	}

	if err := m.SaveTask(ctx, &t, expires); err != nil {
		return "", fmt.Errorf("manager: publish save task: %w", err)
	}
	if err := m.store.ListPush(ctx, m.pendingKey(channel), id); err != nil {
		return "", fmt.Errorf("manager: publish enqueue: %w", err)
	}
	if err := m.AddChannel(ctx, channel); err != nil {
		return "", fmt.Errorf("manager: publish register channel: %w", err)
	}
	if err := m.store.Publish(ctx, m.channelTopic(channel), []byte(id)); err != nil {
		return "", fmt.Errorf("manager: publish announce: %w", err)
	}
	return id, nil
}

// SaveTask upserts a Task Record, setting a TTL. A zero/negative expires
// argument applies the manager's default TTL; pass a nonzero value to
// override it for this single save.
func (m *Manager) SaveTask(ctx context.Context, t *task.Task, expires ...time.Duration) error {
	ttl := m.defaultExpires
	if len(expires) > 0 && expires[0] > 0 {
		ttl = expires[0]
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("manager: marshal task: %w", err)
	}
	return m.store.Set(ctx, m.taskKey(t.ID), b, ttl)
}

// GetTask returns the Task Record for id, or ErrNotFound if absent.
func (m *Manager) GetTask(ctx context.Context, id string) (*task.Task, error) {
	b, err := m.store.Get(ctx, m.taskKey(id))
	if err != nil {
		if err == store.ErrNilValue {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var t task.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("manager: unmarshal task %s: %w", id, err)
	}
	return &t, nil
}

// GetKeyExpiration reports the remaining TTL on a Task Record's key.
func (m *Manager) GetKeyExpiration(ctx context.Context, id string) (time.Duration, bool, error) {
	return m.store.TTL(ctx, m.taskKey(id))
}

func (m *Manager) addTo(ctx context.Context, kind listKind, id, channel string) error {
	return m.store.ListPush(ctx, m.listKeyFor(kind, channel), id)
}

func (m *Manager) removeFrom(ctx context.Context, kind listKind, id, channel string) (bool, error) {
	return m.store.ListRemove(ctx, m.listKeyFor(kind, channel), id)
}

func (m *Manager) AddToPending(ctx context.Context, id, channel string) error {
	return m.addTo(ctx, listPending, id, channel)
}

func (m *Manager) RemoveFromPending(ctx context.Context, id, channel string) (bool, error) {
	return m.removeFrom(ctx, listPending, id, channel)
}

func (m *Manager) AddToRunning(ctx context.Context, id, channel string) error {
	return m.addTo(ctx, listRunning, id, channel)
}

func (m *Manager) RemoveFromRunning(ctx context.Context, id, channel string) (bool, error) {
	return m.removeFrom(ctx, listRunning, id, channel)
}

// AddToCompleted transitions t to completed, persists it, and enqueues its
// id onto the channel's completed list. It is one of only two operations
// (with AddToErrors) that mutate a Task Record's terminal state.
func (m *Manager) AddToCompleted(ctx context.Context, t *task.Task) error {
	ts := now()
	t.Status = task.StatusCompleted
	t.CompletedAt = &ts
	if err := m.SaveTask(ctx, t); err != nil {
		return err
	}
	return m.addTo(ctx, listCompleted, t.ID, t.Channel)
}

// AddToErrors transitions t to error with errMsg, persists it, and enqueues
// its id onto the channel's error list.
func (m *Manager) AddToErrors(ctx context.Context, t *task.Task, errMsg string) error {
	ts := now()
	t.Status = task.StatusError
	t.CompletedAt = &ts
	t.Error = errMsg
	if err := m.SaveTask(ctx, t); err != nil {
		return err
	}
	return m.addTo(ctx, listError, t.ID, t.Channel)
}

// CancelTask removes a still-pending task from its pending list and marks it
// cancelled. It returns false without effect if the task is not pending
// (already claimed by a runner, or already terminal) — cancellation is
// best-effort and may race with a runner that is already pulling the task.
func (m *Manager) CancelTask(ctx context.Context, id string) (bool, error) {
	t, err := m.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status != task.StatusPending {
		return false, nil
	}
	removed, err := m.RemoveFromPending(ctx, id, t.Channel)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	t.Status = task.StatusCancelled
	ts := now()
	t.CompletedAt = &ts
	if err := m.SaveTask(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveTask deletes a Task Record and scrubs its id from every channel
// list it might be in. Idempotent: removing an unknown id is not an error.
func (m *Manager) RemoveTask(ctx context.Context, id string) (bool, error) {
	t, err := m.GetTask(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	for _, kind := range allListKinds {
		if _, err := m.removeFrom(ctx, kind, id, t.Channel); err != nil {
			return false, err
		}
	}
	if err := m.store.Del(ctx, m.taskKey(id)); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) idsFor(ctx context.Context, kind listKind, channel string) ([]string, error) {
	return m.store.ListRange(ctx, m.listKeyFor(kind, channel))
}

func (m *Manager) GetPendingIDs(ctx context.Context, channel string) ([]string, error) {
	return m.idsFor(ctx, listPending, channel)
}

func (m *Manager) GetRunningIDs(ctx context.Context, channel string) ([]string, error) {
	return m.idsFor(ctx, listRunning, channel)
}

func (m *Manager) GetCompletedIDs(ctx context.Context, channel string) ([]string, error) {
	return m.idsFor(ctx, listCompleted, channel)
}

func (m *Manager) GetErrorIDs(ctx context.Context, channel string) ([]string, error) {
	return m.idsFor(ctx, listError, channel)
}

func (m *Manager) resolveTasks(ctx context.Context, ids []string, includeData bool) ([]task.Task, error) {
	out := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := m.GetTask(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		if !includeData {
			t.Data = task.Data{}
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *Manager) GetPending(ctx context.Context, channel string, includeData bool) ([]task.Task, error) {
	ids, err := m.GetPendingIDs(ctx, channel)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

func (m *Manager) GetRunning(ctx context.Context, channel string, includeData bool) ([]task.Task, error) {
	ids, err := m.GetRunningIDs(ctx, channel)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

func (m *Manager) GetCompleted(ctx context.Context, channel string, includeData bool) ([]task.Task, error) {
	ids, err := m.GetCompletedIDs(ctx, channel)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

func (m *Manager) GetErrors(ctx context.Context, channel string, includeData bool) ([]task.Task, error) {
	ids, err := m.GetErrorIDs(ctx, channel)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

// Channels returns every channel name the channels registry knows about.
func (m *Manager) Channels(ctx context.Context) ([]string, error) {
	return m.store.SetMembers(ctx, m.channelsSetKey())
}

func (m *Manager) allIDsFor(ctx context.Context, kind listKind) ([]string, error) {
	channels, err := m.Channels(ctx)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, ch := range channels {
		ids, err := m.idsFor(ctx, kind, ch)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return all, nil
}

func (m *Manager) GetAllPending(ctx context.Context, includeData bool) ([]task.Task, error) {
	ids, err := m.allIDsFor(ctx, listPending)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

func (m *Manager) GetAllRunning(ctx context.Context, includeData bool) ([]task.Task, error) {
	ids, err := m.allIDsFor(ctx, listRunning)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

func (m *Manager) GetAllCompleted(ctx context.Context, includeData bool) ([]task.Task, error) {
	ids, err := m.allIDsFor(ctx, listCompleted)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

func (m *Manager) GetAllErrors(ctx context.Context, includeData bool) ([]task.Task, error) {
	ids, err := m.allIDsFor(ctx, listError)
	if err != nil {
		return nil, err
	}
	return m.resolveTasks(ctx, ids, includeData)
}

// GetChannelStatus returns queue-depth counts for a single channel.
func (m *Manager) GetChannelStatus(ctx context.Context, channel string) (ChannelStatus, error) {
	pending, err := m.store.ListLen(ctx, m.pendingKey(channel))
	if err != nil {
		return ChannelStatus{}, err
	}
	running, err := m.store.ListLen(ctx, m.runningKey(channel))
	if err != nil {
		return ChannelStatus{}, err
	}
	completed, err := m.store.ListLen(ctx, m.completedKey(channel))
	if err != nil {
		return ChannelStatus{}, err
	}
	errs, err := m.store.ListLen(ctx, m.errorKey(channel))
	if err != nil {
		return ChannelStatus{}, err
	}
	return ChannelStatus{
		Channel:   channel,
		Pending:   int(pending),
		Running:   int(running),
		Completed: int(completed),
		Errors:    int(errs),
	}, nil
}

// GetStatus aggregates queue depth across the whole fleet. When simple is
// true the per-channel breakdown and runner detail are omitted.
func (m *Manager) GetStatus(ctx context.Context, simple bool) (Status, error) {
	channels, err := m.Channels(ctx)
	if err != nil {
		return Status{}, err
	}
	var s Status
	for _, ch := range channels {
		cs, err := m.GetChannelStatus(ctx, ch)
		if err != nil {
			return Status{}, err
		}
		s.Pending += cs.Pending
		s.Running += cs.Running
		s.Completed += cs.Completed
		s.Errors += cs.Errors
		if !simple {
			s.Channels = append(s.Channels, cs)
		}
	}
	if !simple {
		runners, err := m.GetActiveRunners(ctx)
		if err != nil {
			return Status{}, err
		}
		s.Runners = runners
	}
	return s, nil
}

// GetActiveRunners reads the runners hash and relabels any runner whose last
// heartbeat is older than livenessThreshold as "timeout".
func (m *Manager) GetActiveRunners(ctx context.Context) (map[string]RunnerDescriptor, error) {
	return m.getRunners(ctx, defaultLivenessThreshold)
}

// GetActiveRunnersWithThreshold is GetActiveRunners with a caller-supplied
// liveness threshold, used by the engine which knows its configured value.
func (m *Manager) GetActiveRunnersWithThreshold(ctx context.Context, livenessThreshold time.Duration) (map[string]RunnerDescriptor, error) {
	return m.getRunners(ctx, livenessThreshold)
}

func (m *Manager) getRunners(ctx context.Context, livenessThreshold time.Duration) (map[string]RunnerDescriptor, error) {
	raw, err := m.store.HashGetAll(ctx, m.runnersHashKey())
	if err != nil {
		return nil, err
	}
	out := make(map[string]RunnerDescriptor, len(raw))
	for hostname, b := range raw {
		var d RunnerDescriptor
		if err := json.Unmarshal(b, &d); err != nil {
			continue
		}
		age := now() - d.LastPing
		d.PingAge = age
		if time.Duration(age)*time.Second > livenessThreshold {
			d.Status = "timeout"
		}
		out[hostname] = d
	}
	return out, nil
}

// SaveRunner upserts a runner's descriptor into the runners hash.
func (m *Manager) SaveRunner(ctx context.Context, d RunnerDescriptor) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return m.store.HashSet(ctx, m.runnersHashKey(), d.Hostname, b)
}

// RemoveRunner removes a runner's descriptor, typically on clean shutdown.
func (m *Manager) RemoveRunner(ctx context.Context, hostname string) error {
	return m.store.HashDel(ctx, m.runnersHashKey(), hostname)
}

// TakeOutTheDead scans every channel's running list and moves back to
// pending any id whose owning runner is not currently active. It returns
// the number of ids recovered.
func (m *Manager) TakeOutTheDead(ctx context.Context) (int, error) {
	channels, err := m.Channels(ctx)
	if err != nil {
		return 0, err
	}
	active, err := m.GetActiveRunners(ctx)
	if err != nil {
		return 0, err
	}
	isAlive := func(hostname string) bool {
		d, ok := active[hostname]
		return ok && d.Status != "timeout"
	}

	recovered := 0
	for _, ch := range channels {
		ids, err := m.GetRunningIDs(ctx, ch)
		if err != nil {
			return recovered, err
		}
		for _, id := range ids {
			t, err := m.GetTask(ctx, id)
			if err != nil {
				continue
			}
			if t.Runner != "" && isAlive(t.Runner) {
				continue
			}
			if _, err := m.RemoveFromRunning(ctx, id, ch); err != nil {
				return recovered, err
			}
			t.Status = task.StatusPending
			t.Runner = ""
			t.StartedAt = nil
			if err := m.SaveTask(ctx, t); err != nil {
				return recovered, err
			}
			if err := m.AddToPending(ctx, id, ch); err != nil {
				return recovered, err
			}
			recovered++
		}
	}
	return recovered, nil
}

// ResetRunningTasks moves back to pending every id in hostname's running
// lists, for use by a runner reclaiming its own orphaned work on restart
// (a restarted runner shares the old hostname, so TakeOutTheDead alone
// would not recover ids it owned before the crash).
func (m *Manager) ResetRunningTasks(ctx context.Context, hostname string) (int, error) {
	channels, err := m.Channels(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, ch := range channels {
		ids, err := m.GetRunningIDs(ctx, ch)
		if err != nil {
			return recovered, err
		}
		for _, id := range ids {
			t, err := m.GetTask(ctx, id)
			if err != nil || t.Runner != hostname {
				continue
			}
			if _, err := m.RemoveFromRunning(ctx, id, ch); err != nil {
				return recovered, err
			}
			t.Status = task.StatusPending
			t.Runner = ""
			t.StartedAt = nil
			if err := m.SaveTask(ctx, t); err != nil {
				return recovered, err
			}
			if err := m.AddToPending(ctx, id, ch); err != nil {
				return recovered, err
			}
			recovered++
		}
	}
	return recovered, nil
}

// ClearChannel removes every list key for channel. Task Records themselves
// are left to expire via their own TTL.
func (m *Manager) ClearChannel(ctx context.Context, channel string) error {
	for _, kind := range allListKinds {
		if err := m.store.Del(ctx, m.listKeyFor(kind, channel)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveChannel clears a channel's lists and drops it from the channels set.
func (m *Manager) RemoveChannel(ctx context.Context, channel string) error {
	if err := m.ClearChannel(ctx, channel); err != nil {
		return err
	}
	return m.store.SetRemove(ctx, m.channelsSetKey(), channel)
}

// RemoveAllChannels tears down every known channel.
func (m *Manager) RemoveAllChannels(ctx context.Context) error {
	channels, err := m.Channels(ctx)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if err := m.RemoveChannel(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

// AddChannel registers channel in the global channels set if not present.
func (m *Manager) AddChannel(ctx context.Context, channel string) error {
	return m.store.SetAdd(ctx, m.channelsSetKey(), channel)
}

// ClearRunners purges runner entries whose last heartbeat is older than
// pingAge.
func (m *Manager) ClearRunners(ctx context.Context, pingAge time.Duration) (int, error) {
	raw, err := m.store.HashGetAll(ctx, m.runnersHashKey())
	if err != nil {
		return 0, err
	}
	cleared := 0
	for hostname, b := range raw {
		var d RunnerDescriptor
		if err := json.Unmarshal(b, &d); err != nil {
			continue
		}
		if time.Duration(now()-d.LastPing)*time.Second > pingAge {
			if err := m.RemoveRunner(ctx, hostname); err != nil {
				return cleared, err
			}
			cleared++
		}
	}
	return cleared, nil
}

// ChannelTopic, RunnerTopic and BroadcastTopic expose the pub/sub topic
// names the engine subscribes to and publishes control messages on.
func (m *Manager) ChannelTopic(channel string) string { return m.channelTopic(channel) }
func (m *Manager) RunnerTopic(hostname string) string { return m.runnerTopic(hostname) }
func (m *Manager) BroadcastTopic() string              { return m.broadcastTopic() }

// Subscribe opens a live subscription to the given topics via the
// underlying store.
func (m *Manager) Subscribe(ctx context.Context, topics ...string) (store.Subscription, error) {
	return m.store.Subscribe(ctx, topics...)
}

// Publish emits a raw message on topic, used by the engine for ping/
// ping_response control messages.
func (m *Manager) PublishRaw(ctx context.Context, topic string, payload []byte) error {
	return m.store.Publish(ctx, topic, payload)
}

const defaultLivenessThreshold = 60 * time.Second
