// Package task defines the value type describing a unit of work and its
// lifecycle state as it moves through the queue.
package task

import "encoding/json"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Data is the structured payload passed to a function. When the publisher
// supplies positional/keyword arguments they are carried in Args/Kwargs;
// otherwise Raw holds the opaque JSON the publisher submitted.
type Data struct {
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// MarshalJSON emits Raw verbatim when set, otherwise the args/kwargs form.
func (d Data) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	type alias struct {
		Args   []any          `json:"args,omitempty"`
		Kwargs map[string]any `json:"kwargs,omitempty"`
	}
	return json.Marshal(alias{Args: d.Args, Kwargs: d.Kwargs})
}

// UnmarshalJSON accepts either an {args,kwargs} object or arbitrary JSON,
// which is preserved unmodified in Raw.
func (d *Data) UnmarshalJSON(b []byte) error {
	var probe struct {
		Args   []any          `json:"args"`
		Kwargs map[string]any `json:"kwargs"`
	}
	if err := json.Unmarshal(b, &probe); err == nil && (probe.Args != nil || probe.Kwargs != nil) {
		d.Args = probe.Args
		d.Kwargs = probe.Kwargs
		return nil
	}
	raw := make(json.RawMessage, len(b))
	copy(raw, b)
	d.Raw = raw
	return nil
}

// Task is the single serialized unit stored under the store's task key.
type Task struct {
	ID          string  `json:"id"`
	Function    string  `json:"function"`
	Data        Data    `json:"data"`
	Channel     string  `json:"channel"`
	Status      Status  `json:"status"`
	CreatedAt   int64   `json:"created_at"`
	StartedAt   *int64  `json:"started_at,omitempty"`
	CompletedAt *int64  `json:"completed_at,omitempty"`
	Expires     *int64  `json:"expires,omitempty"`
	Error       string  `json:"error,omitempty"`
	Runner      string  `json:"runner,omitempty"`
}

// Terminal reports whether the task has reached a state from which it will
// never transition again.
func (t *Task) Terminal() bool {
	switch t.Status {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Expired reports whether the task's expiration timestamp is in the past
// relative to now (unix seconds). A task with no expiration never expires.
func (t *Task) Expired(now int64) bool {
	return t.Expires != nil && *t.Expires < now
}
